package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

func GetConfig() Config {
	cfg := Config{
		LogLevel:      GetStringEnv("LOGLEVEL", DefaultLogLevel),
		ServerCfg:     GetServerConfig(),
		ControllerCfg: GetControllerConfig(),
		MapperCfg:     GetMapperConfig(),
		PublishCfg:    GetPublishConfig(),
		CommandCfg:    GetCommandConfig(),
		DriveCfg:      GetDriveConfig(),
		SpeakerCfg:    GetSpeakerConfig(),
		HudCfg:        GetHudConfig(),
	}

	log.Printf("app Config: \n%+v\n", cfg)
	return cfg
}

func GetServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:        GetBoolEnv("SERVERENABLED", DefaultServerEnabled),
		Server:         GetRawStringEnv("SERVER", DefaultServer),
		Key:            GetRawStringEnv("ROBOTKEY", DefaultRobotKey),
		Password:       GetRawStringEnv("ROBOTPASSWORD", DefaultPassword),
		SilentStart:    GetBoolEnv("SILENTSTART", DefaultSilentStart),
		SilentShutdown: GetBoolEnv("SILENTSHUTDOWN", DefaultSilentShutdown),
		SilentConnect:  GetBoolEnv("SILENTCONNECT", DefaultSilentConnect),
		HealthInterval: GetPositiveDurationEnv("HEALTHINTERVAL", DefaultHealthInterval),
	}
}

func GetControllerConfig() ControllerConfig {
	return ControllerConfig{
		DeviceGlob:          GetRawStringEnv("DEVICEGLOB", DefaultDeviceGlob),
		MatchNames:          GetStringListEnv("MATCHNAMES", DefaultMatchNames),
		NotFoundBackoff:     GetPositiveDurationEnv("NOTFOUNDBACKOFF", DefaultNotFoundBackoff),
		FaultBackoff:        GetPositiveDurationEnv("FAULTBACKOFF", DefaultFaultBackoff),
		Grab:                GetBoolEnv("GRAB", DefaultGrab),
		HotplugWake:         GetBoolEnv("HOTPLUGWAKE", DefaultHotplugWake),
		HotplugPath:         GetRawStringEnv("HOTPLUGPATH", DefaultHotplugPath),
		ReleaseOnDisconnect: GetBoolEnv("RELEASEONDISCONNECT", DefaultReleaseOnDisconnect),
	}
}

func GetMapperConfig() MapperConfig {
	linear := SpeedConfig{
		Default: GetFloatEnv("LINEAR_SPEED", DefaultLinearSpeed),
		Min:     GetFloatEnv("LINEAR_MIN", DefaultLinearSpeedMin),
		Max:     GetFloatEnv("LINEAR_MAX", DefaultLinearSpeedMax),
		Step:    GetFloatEnv("LINEAR_STEP", DefaultLinearStep),
	}
	angular := SpeedConfig{
		Default: GetFloatEnv("ANGULAR_SPEED", DefaultAngularSpeed),
		Min:     GetFloatEnv("ANGULAR_MIN", DefaultAngularSpeedMin),
		Max:     GetFloatEnv("ANGULAR_MAX", DefaultAngularSpeedMax),
		Step:    GetFloatEnv("ANGULAR_STEP", DefaultAngularStep),
	}

	return MapperConfig{
		Linear: checkSpeedConfig("LINEAR", linear, SpeedConfig{
			Default: DefaultLinearSpeed,
			Min:     DefaultLinearSpeedMin,
			Max:     DefaultLinearSpeedMax,
			Step:    DefaultLinearStep,
		}),
		Angular: checkSpeedConfig("ANGULAR", angular, SpeedConfig{
			Default: DefaultAngularSpeed,
			Min:     DefaultAngularSpeedMin,
			Max:     DefaultAngularSpeedMax,
			Step:    DefaultAngularStep,
		}),
	}
}

// checkSpeedConfig falls back to the defaults for the whole axis when its bounds cannot be clamped against.
func checkSpeedConfig(name string, cfg SpeedConfig, defaults SpeedConfig) SpeedConfig {
	for _, value := range []float64{cfg.Default, cfg.Min, cfg.Max, cfg.Step} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			log.Warnf("warning:%s speed config has a non-finite value, using defaults\n", name)
			return defaults
		}
	}
	if cfg.Min < 0 || cfg.Min > cfg.Max || cfg.Step <= 0 {
		log.Warnf("warning:%s speed config invalid (min %.2f max %.2f step %.2f), using defaults\n", name, cfg.Min, cfg.Max, cfg.Step)
		return defaults
	}
	return cfg
}

func GetPublishConfig() PublishConfig {
	return PublishConfig{
		Interval: GetPositiveDurationEnv("PUBLISHINTERVAL", DefaultPublishInterval),
		Sinks:    GetStringListEnv("SINKS", DefaultSinks),
	}
}

func GetCommandConfig() CommandConfig {
	commandCfg := CommandConfig{
		CommandDriver: GetStringEnv("SERVODRIVER", DefaultCommandDriver),
		Address:       DefaultAddress,
		I2CDevice:     GetRawStringEnv("I2CDEVICE", DefaultI2CDevice),
		ServoCfgs:     make([]ServoConfig, 0, MaxSupportedServos),
	}

	for i := 0; i < MaxSupportedServos; i++ {
		envPrefix := fmt.Sprintf("SERVO%d_", i)
		servoCfg := ServoConfig{
			Name:     GetStringEnv(envPrefix+"NAME", ""),
			Channel:  GetIntEnv(envPrefix+"CHANNEL", i),
			MaxPulse: float64(GetIntEnv(envPrefix+"MAXPULSE", DefaultMaxPulse)),
			MinPulse: float64(GetIntEnv(envPrefix+"MINPULSE", DefaultMinPulse)),
			Inverted: GetBoolEnv(envPrefix+"INVERTED", DefaultInverted),
			Offset:   GetIntEnv(envPrefix+"MIDOFFSET", DefaultOffset),
		}

		if servoCfg.Name != "" {
			log.Printf("found config for servo: %s\n", servoCfg.Name)
			commandCfg.ServoCfgs = append(commandCfg.ServoCfgs, servoCfg)
		}
	}
	return commandCfg
}

func GetDriveConfig() DriveConfig {
	return DriveConfig{
		TrackWidth:    GetFloatEnv("TRACKWIDTH", DefaultTrackWidth),
		MaxWheelSpeed: GetPositiveFloatEnv("MAXWHEELSPEED", DefaultMaxWheelSpeed),
	}
}

func GetSpeakerConfig() SpeakerConfig {
	return SpeakerConfig{
		Enabled:  GetBoolEnv("SPEAKERENABLED", DefaultSpeakerEnabled),
		SoundDir: GetRawStringEnv("SOUNDDIR", DefaultSpeakerSoundDir),
	}
}

func GetHudConfig() HudConfig {
	return HudConfig{
		Interval:     GetPositiveDurationEnv("HUDINTERVAL", DefaultHudInterval),
		NetInterface: GetRawStringEnv("NETINTERFACE", DefaultNetInterface),
	}
}

func GetIntEnv(env string, defaultValue int) int {
	envValue, found := os.LookupEnv(AppEnvBase + env)
	if !found {
		return defaultValue
	} else {
		value, err := strconv.ParseInt(strings.Trim(envValue, "\r"), 10, 32)
		if err != nil {
			log.Warnf("warning:%s not parsed - error: %s\n", env, err)
			return defaultValue
		} else {
			return int(value)
		}
	}
}

func GetBoolEnv(env string, defaultValue bool) bool {
	envValue, found := os.LookupEnv(AppEnvBase + env)
	if !found {
		return defaultValue
	} else {
		value, err := strconv.ParseBool(strings.Trim(envValue, "\r"))
		if err != nil {
			log.Warnf("warning:%s not parsed - error: %s\n", env, err)
			return defaultValue
		} else {
			return value
		}
	}
}

// GetStringEnv lowercases the value. Use it for driver, sink and servo names only.
func GetStringEnv(env string, defaultValue string) string {
	envValue, found := os.LookupEnv(AppEnvBase + env)
	if !found {
		return defaultValue
	} else {
		return strings.ToLower(strings.Trim(envValue, "\r"))
	}
}

// GetRawStringEnv keeps the value as given, for secrets, hosts and paths.
func GetRawStringEnv(env string, defaultValue string) string {
	envValue, found := os.LookupEnv(AppEnvBase + env)
	if !found {
		return defaultValue
	}
	return strings.Trim(envValue, "\r")
}

func GetFloatEnv(env string, defaultValue float64) float64 {
	envValue, found := os.LookupEnv(AppEnvBase + env)
	if !found {
		return defaultValue
	} else {
		value, err := strconv.ParseFloat(strings.Trim(envValue, "\r"), 64)
		if err != nil {
			log.Warnf("warning:%s not parsed - error: %s\n", env, err)
			return defaultValue
		}
		return value
	}
}

func GetDurationEnv(env string, defaultValue time.Duration) time.Duration {
	envValue, found := os.LookupEnv(AppEnvBase + env)
	if !found {
		return defaultValue
	} else {
		value, err := time.ParseDuration(strings.Trim(envValue, "\r"))
		if err != nil {
			log.Warnf("warning:%s not parsed - error: %s\n", env, err)
			return defaultValue
		}
		return value
	}
}

// GetPositiveFloatEnv rejects zero, negative and non-finite values.
func GetPositiveFloatEnv(env string, defaultValue float64) float64 {
	value := GetFloatEnv(env, defaultValue)
	if !(value > 0) || math.IsInf(value, 0) {
		log.Warnf("warning:%s must be a positive number, using %v\n", env, defaultValue)
		return defaultValue
	}
	return value
}

// GetPositiveDurationEnv is for tickers and backoffs, which cannot run with a zero period.
func GetPositiveDurationEnv(env string, defaultValue time.Duration) time.Duration {
	value := GetDurationEnv(env, defaultValue)
	if value <= 0 {
		log.Warnf("warning:%s must be positive, using %s\n", env, defaultValue)
		return defaultValue
	}
	return value
}

// GetStringListEnv splits a comma separated value, dropping empty entries.
func GetStringListEnv(env string, defaultValue string) []string {
	raw := GetStringEnv(env, defaultValue)
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for i := range parts {
		part := strings.TrimSpace(parts[i])
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}
