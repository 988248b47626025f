package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/command"
	pcacommand "github.com/Speshl/gorrc_teleop/internal/command/pca9685"
	"github.com/Speshl/gorrc_teleop/internal/command/pipwm"
	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/controller"
	"github.com/Speshl/gorrc_teleop/internal/drive"
	"github.com/Speshl/gorrc_teleop/internal/emitter"
	"github.com/Speshl/gorrc_teleop/internal/mapper"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/Speshl/gorrc_teleop/internal/speaker"
	"github.com/google/uuid"
	socketio "github.com/googollee/go-socket.io"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	SinkLog    = "log"
	SinkDrive  = "drive"
	SinkSocket = "socket"
	SinkWebRTC = "webrtc"
)

type App struct {
	ctx       context.Context
	ctxCancel context.CancelFunc

	cfg     config.Config
	robotId uuid.UUID

	robotInfo models.Robot
	trackInfo models.Track

	client          *socketio.Client
	serverConnected bool

	mapper     *mapper.Mapper
	supervisor *controller.Supervisor
	drive      *drive.Drive
	telemetry  *Telemetry

	speakerChannel chan string
	speaker        *speaker.Speaker

	statusLock          sync.RWMutex
	controllerName      string
	controllerConnected bool
}

func NewApp(cfg config.Config, client *socketio.Client) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	speakerChannel := make(chan string, 100)
	velocityMapper := mapper.NewMapper(cfg.MapperCfg)

	locator := controller.NewLocator(cfg.ControllerCfg.DeviceGlob, cfg.ControllerCfg.MatchNames, controller.ListDevices)
	supervisor := controller.NewSupervisor(cfg.ControllerCfg, locator, controller.OpenDevice, velocityMapper)

	a := &App{
		cfg:            cfg,
		robotId:        uuid.New(),
		client:         client,
		ctx:            ctx,
		ctxCancel:      cancel,
		mapper:         velocityMapper,
		supervisor:     supervisor,
		telemetry:      NewTelemetry(),
		speakerChannel: speakerChannel,
		speaker:        speaker.NewSpeaker(cfg.SpeakerCfg, speakerChannel),
	}
	supervisor.OnStatus(a.onControllerStatus)

	if cfg.PublishCfg.HasSink(SinkDrive) {
		commandDriver, err := NewCommandDriver(cfg.CommandCfg)
		if err != nil {
			cancel()
			return nil, err
		}
		a.drive = drive.NewDrive(cfg.DriveCfg, commandDriver)
	}
	return a, nil
}

// NewCommandDriver picks the servo/ESC board named in the config.
func NewCommandDriver(cfg config.CommandConfig) (command.CommandDriverIFace, error) {
	switch cfg.CommandDriver {
	case "pca9685":
		return pcacommand.NewCommand(cfg), nil
	case "pipwm":
		return pipwm.NewCommand(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported command driver: %s", cfg.CommandDriver)
	}
}

func (a *App) RegisterHandlers() error {
	if a.client == nil {
		log.Println("server disabled, skipping socket handlers")
		return nil
	}

	log.Println("registering handlers")
	a.client.OnEvent("reply", func(s socketio.Conn, msg string) {
		log.Println("Receive Message /reply: ", "reply", msg)
	})

	a.client.OnEvent("offer", a.onOffer)

	a.client.OnEvent("candidate", a.onICECandidate)

	a.client.OnEvent("register_success", a.onRegisterSuccess)

	log.Println("attemping to connect to server...")
	err := a.client.Connect() //Client must have atleast 1 event handler to work
	if err != nil {
		return fmt.Errorf("error connecting to server - %w", err)
	}
	a.serverConnected = true
	log.Println("connected to server")
	return nil
}

func (a *App) buildSinks() []emitter.Sink {
	sinks := make([]emitter.Sink, 0, len(a.cfg.PublishCfg.Sinks))
	for _, name := range a.cfg.PublishCfg.Sinks {
		switch name {
		case SinkLog:
			sinks = append(sinks, emitter.LogSink{})
		case SinkDrive:
			if a.drive != nil {
				sinks = append(sinks, a.drive)
			}
		case SinkSocket:
			if !a.serverConnected {
				log.Warnf("socket sink requested but not connected to a server, skipping\n")
				continue
			}
			sinks = append(sinks, NewSocketSink(a.client, a.robotId))
		case SinkWebRTC:
			sinks = append(sinks, a.telemetry)
		default:
			log.Warnf("unknown sink %s, skipping\n", name)
		}
	}
	return sinks
}

func (a *App) Start() error {
	group, groupCtx := errgroup.WithContext(a.ctx)
	log.Println("starting...")

	if a.drive != nil {
		err := a.drive.Init()
		if err != nil {
			return err
		}
		defer func() {
			err := a.drive.Stop()
			if err != nil {
				log.Errorf("failed stopping drive: %s\n", err)
			}
		}()
	}

	defer func() {
		log.Println("stopping...")
		a.telemetry.CloseAll()
		if a.client != nil {
			a.client.Close()
		}
	}()

	velocityEmitter := emitter.NewEmitter(a.cfg.PublishCfg.Interval, a.mapper, a.buildSinks())

	group.Go(func() error {
		return a.speaker.Start(groupCtx)
	})

	//kill listener
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChannel)
	group.Go(func() error {
		return a.listenForSignal(groupCtx, signalChannel)
	})

	//Start controller
	group.Go(func() error {
		return a.supervisor.Start(groupCtx)
	})

	//Start velocity publishing
	group.Go(func() error {
		return velocityEmitter.Start(groupCtx)
	})

	group.Go(func() error {
		return a.hudLoop(groupCtx)
	})

	//Send connect and send healthchecks
	if a.serverConnected {
		group.Go(func() error {
			return a.healthLoop(groupCtx)
		})
	}

	if !a.cfg.ServerCfg.SilentStart {
		a.speaker.Queue(speaker.SoundStartup)
	}

	err := group.Wait()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Println("context was cancelled")
			return nil
		} else {
			return fmt.Errorf("teleop stopping due to error - %w", err)
		}
	}

	log.Println("shutting down")
	return nil
}

// listenForSignal cancels the app on the first signal. A signal is a clean shutdown, so it returns nil
// and leaves the other tasks to report context.Canceled.
func (a *App) listenForSignal(ctx context.Context, signals <-chan os.Signal) error {
	select {
	case sig := <-signals:
		log.Printf("received signal: %s\n", sig)
		if !a.cfg.ServerCfg.SilentShutdown {
			a.speaker.Play(context.Background(), speaker.SoundShutdown)
		}
		a.ctxCancel()
		return nil
	case <-ctx.Done():
		log.Println("closing signal goroutine")
		return ctx.Err()
	}
}

func (a *App) healthLoop(ctx context.Context) error {
	encodedMsg, err := encode(models.ConnectReq{
		Key:      a.cfg.ServerCfg.Key,
		Password: a.cfg.ServerCfg.Password,
		RobotId:  a.robotId,
	})
	if err != nil {
		return fmt.Errorf("failed encoding connect request: %w", err)
	}
	a.client.Emit("robot_connect", encodedMsg)

	healthTicker := time.NewTicker(a.cfg.ServerCfg.HealthInterval)
	defer healthTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("health checker stopped")
			return ctx.Err()
		case <-healthTicker.C:
			log.Debugln("healthcheck: healthy")
			a.client.Emit("robot_healthy", "")
		}
	}
}

func (a *App) onControllerStatus(connected bool, name string) {
	a.statusLock.Lock()
	a.controllerConnected = connected
	a.controllerName = name
	a.statusLock.Unlock()

	if a.cfg.ServerCfg.SilentConnect {
		return
	}
	if connected {
		a.speaker.Queue(speaker.SoundControllerConnected)
	} else {
		a.speaker.Queue(speaker.SoundControllerDisconnected)
	}
}

func (a *App) controllerStatus() (bool, string) {
	a.statusLock.RLock()
	defer a.statusLock.RUnlock()
	return a.controllerConnected, a.controllerName
}
