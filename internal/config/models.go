package config

import "time"

const (
	MaxSupportedServos = 16
	AppEnvBase         = "TELEOP_"

	DefaultLogLevel = "info"

	DefaultServerEnabled  = false
	DefaultServer         = "127.0.0.1:8181"
	DefaultRobotKey       = ""
	DefaultPassword       = ""
	DefaultSilentStart    = false
	DefaultSilentShutdown = false
	DefaultSilentConnect  = false
	DefaultHealthInterval = 30 * time.Second

	// Default Controller Options
	DefaultDeviceGlob          = "/dev/input/event*"
	DefaultMatchNames          = "controller,gamepad"
	DefaultNotFoundBackoff     = 5 * time.Second
	DefaultFaultBackoff        = 1 * time.Second
	DefaultGrab                = false
	DefaultHotplugWake         = false
	DefaultHotplugPath         = "/dev/input"
	DefaultReleaseOnDisconnect = false

	// Default Speed Options
	DefaultLinearSpeed     = 0.5
	DefaultLinearSpeedMin  = 0.1
	DefaultLinearSpeedMax  = 1.0
	DefaultLinearStep      = 0.1
	DefaultAngularSpeed    = 1.0
	DefaultAngularSpeedMin = 0.2
	DefaultAngularSpeedMax = 2.0
	DefaultAngularStep     = 0.2

	// Default Publish Options
	DefaultPublishInterval = 100 * time.Millisecond
	DefaultSinks           = "log"

	// Default Command Options
	DefaultCommandDriver = "pca9685"
	DefaultAddress       = 0x40
	DefaultI2CDevice     = "/dev/i2c-1"
	DefaultMaxPulse      = 2250 //2000
	DefaultMinPulse      = 750  //1000
	DefaultInverted      = false
	DefaultOffset        = 0

	// Default Drive Options
	DefaultTrackWidth    = 0.287 // meters between wheel centers
	DefaultMaxWheelSpeed = 1.0   // m/s at full servo throw

	// Default Speaker Options
	DefaultSpeakerEnabled  = false
	DefaultSpeakerSoundDir = "./sounds"

	// Default Hud Options
	DefaultHudInterval  = 1 * time.Second
	DefaultNetInterface = "wlan0"
)

type Config struct {
	LogLevel string

	ServerCfg     ServerConfig
	ControllerCfg ControllerConfig
	MapperCfg     MapperConfig
	PublishCfg    PublishConfig
	CommandCfg    CommandConfig
	DriveCfg      DriveConfig
	SpeakerCfg    SpeakerConfig
	HudCfg        HudConfig
}

type ServerConfig struct {
	Enabled        bool
	Server         string
	Key            string
	Password       string
	SilentStart    bool
	SilentShutdown bool
	SilentConnect  bool
	HealthInterval time.Duration
}

type ControllerConfig struct {
	DeviceGlob          string
	MatchNames          []string
	NotFoundBackoff     time.Duration
	FaultBackoff        time.Duration
	Grab                bool
	HotplugWake         bool
	HotplugPath         string
	ReleaseOnDisconnect bool
}

type MapperConfig struct {
	Linear  SpeedConfig
	Angular SpeedConfig
}

type SpeedConfig struct {
	Default float64
	Min     float64
	Max     float64
	Step    float64
}

type PublishConfig struct {
	Interval time.Duration
	Sinks    []string
}

type CommandConfig struct {
	CommandDriver string
	Address       byte
	I2CDevice     string
	ServoCfgs     []ServoConfig
}

type ServoConfig struct {
	Name     string
	Inverted bool
	Channel  int
	MaxPulse float64
	MinPulse float64
	Offset   int
}

type DriveConfig struct {
	TrackWidth    float64
	MaxWheelSpeed float64
}

type SpeakerConfig struct {
	Enabled  bool
	SoundDir string
}

type HudConfig struct {
	Interval     time.Duration
	NetInterface string
}

// HasSink reports if the named sink was requested in the publish config.
func (p PublishConfig) HasSink(name string) bool {
	for i := range p.Sinks {
		if p.Sinks[i] == name {
			return true
		}
	}
	return false
}
