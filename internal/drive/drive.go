package drive

import (
	"fmt"
	"sync"

	"github.com/Speshl/gorrc_teleop/internal/command"
	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	log "github.com/sirupsen/logrus"
)

const (
	LeftWheel  = "left"
	RightWheel = "right"
)

// Drive turns velocity commands into left/right wheel outputs for a differential drive base.
type Drive struct {
	cfg           config.DriveConfig
	lock          sync.Mutex
	commandDriver command.CommandDriverIFace

	left  float64
	right float64
}

func NewDrive(cfg config.DriveConfig, commandDriver command.CommandDriverIFace) *Drive {
	return &Drive{
		cfg:           cfg,
		commandDriver: commandDriver,
	}
}

func (d *Drive) Init() error {
	log.Printf("setting up differential drive: track width %.3fm, max wheel speed %.2fm/s\n", d.cfg.TrackWidth, d.cfg.MaxWheelSpeed)
	err := d.commandDriver.Init()
	if err != nil {
		return fmt.Errorf("error: failed initializing drive command interface: %w", err)
	}

	for _, wheel := range d.MissingWheels() {
		log.Warnf("no servo named %s is configured, that wheel will not move\n", wheel)
	}
	return nil
}

// MissingWheels lists the wheel outputs the command driver has no servo for.
func (d *Drive) MissingWheels() []string {
	missing := make([]string, 0, 2)
	for _, wheel := range []string{LeftWheel, RightWheel} {
		if !d.commandDriver.Has(wheel) {
			missing = append(missing, wheel)
		}
	}
	return missing
}

func (d *Drive) Stop() error {
	log.Println("stopping drive")
	err := d.commandDriver.Stop()
	if err != nil {
		return fmt.Errorf("error: failed stopping command driver: %w", err)
	}
	return nil
}

func (d *Drive) Name() string {
	return "drive"
}

func (d *Drive) Publish(cmd models.VelocityCommand) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.left, d.right = Mix(cmd, d.cfg)
	err := d.commandDriver.SetMany(d.buildCommands())
	if err != nil {
		return fmt.Errorf("failed setting drive commands: %w", err)
	}
	return nil
}

// Wheels returns the last normalized wheel outputs.
func (d *Drive) Wheels() (float64, float64) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.left, d.right
}

func (d *Drive) buildCommands() []command.DriverCommand {
	return []command.DriverCommand{
		{
			Name:  LeftWheel,
			Value: d.left,
			Min:   command.MinOutput,
			Max:   command.MaxOutput,
		},
		{
			Name:  RightWheel,
			Value: d.right,
			Min:   command.MinOutput,
			Max:   command.MaxOutput,
		},
	}
}

// Mix splits a velocity into wheel speeds and normalizes them against MaxWheelSpeed to [-1, 1].
// Positive angular speed turns left, so the right wheel runs faster.
func Mix(cmd models.VelocityCommand, cfg config.DriveConfig) (float64, float64) {
	turn := cmd.AngularZ * cfg.TrackWidth / 2
	left := cmd.LinearX - turn
	right := cmd.LinearX + turn

	return command.MapToRange(left, -cfg.MaxWheelSpeed, cfg.MaxWheelSpeed, command.MinOutput, command.MaxOutput),
		command.MapToRange(right, -cfg.MaxWheelSpeed, cfg.MaxWheelSpeed, command.MinOutput, command.MaxOutput)
}
