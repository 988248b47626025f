package emitter

import (
	"context"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/models"
	log "github.com/sirupsen/logrus"
)

type VelocitySource interface {
	Velocity() models.VelocityCommand
}

// Sink receives the current velocity command on every tick.
type Sink interface {
	Name() string
	Publish(models.VelocityCommand) error
}

// Emitter republishes the latest velocity at a fixed rate, whether or not it changed.
type Emitter struct {
	interval time.Duration
	source   VelocitySource
	sinks    []Sink
}

func NewEmitter(interval time.Duration, source VelocitySource, sinks []Sink) *Emitter {
	return &Emitter{
		interval: interval,
		source:   source,
		sinks:    sinks,
	}
}

func (e *Emitter) Start(ctx context.Context) error {
	log.Printf("starting velocity emitter at %s with %d sinks\n", e.interval, len(e.sinks))

	publishTicker := time.NewTicker(e.interval)
	defer publishTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("stopping velocity emitter: %s\n", ctx.Err().Error())
			return ctx.Err()
		case <-publishTicker.C:
			e.Tick()
		}
	}
}

// Tick publishes once. A failing sink is logged and skipped so the others still get the command.
func (e *Emitter) Tick() {
	cmd := e.source.Velocity()
	for i := range e.sinks {
		err := e.sinks[i].Publish(cmd)
		if err != nil {
			log.Errorf("failed publishing to %s sink: %s\n", e.sinks[i].Name(), err)
		}
	}
}

// LogSink writes every command at debug level.
type LogSink struct{}

func (LogSink) Name() string {
	return "log"
}

func (LogSink) Publish(cmd models.VelocityCommand) error {
	log.Debugf("cmd_vel linear_x: %.2f angular_z: %.2f\n", cmd.LinearX, cmd.AngularZ)
	return nil
}
