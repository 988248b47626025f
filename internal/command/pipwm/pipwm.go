package pipwm

import (
	"fmt"

	"github.com/Speshl/gorrc_teleop/internal/command"
	"github.com/Speshl/gorrc_teleop/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
)

const (
	Frequency   = 100000
	CycleLength = uint32(2000)
)

// PinMap lists the hardware PWM pins in servo config order. Only two are PWM capable on the header.
var PinMap = []rpio.Pin{12, 13}

// CommandDriver drives ESCs and servos straight from the Raspberry Pi PWM pins.
type CommandDriver struct {
	cfg      config.CommandConfig
	channels map[string]channel
}

// channel is one PWM pin with its pulse range in duty cycle units.
type channel struct {
	pin      rpio.Pin
	inverted bool
	offset   float64
	low      float64
	high     float64
}

func NewCommand(cfg config.CommandConfig) *CommandDriver {
	return &CommandDriver{
		cfg:      cfg,
		channels: make(map[string]channel),
	}
}

func newChannel(pin rpio.Pin, servoCfg config.ServoConfig) channel {
	return channel{
		pin:      pin,
		inverted: servoCfg.Inverted,
		offset:   float64(servoCfg.Offset) / 100,
		low:      servoCfg.MinPulse,
		high:     servoCfg.MaxPulse,
	}
}

// duty converts a command into the duty cycle for this pin.
func (ch channel) duty(cmd command.DriverCommand) uint32 {
	pulse := command.MapToRange(cmd.Value+ch.offset, cmd.Min, cmd.Max, ch.low, ch.high)
	if ch.inverted {
		pulse = ch.low + ch.high - pulse
	}
	return uint32(pulse)
}

func (ch channel) center() uint32 {
	return uint32((ch.low + ch.high) / 2)
}

func (c *CommandDriver) Init() error {
	if len(c.cfg.ServoCfgs) > len(PinMap) {
		log.Warnf("pipwm supports %d servos, ignoring %d extra\n", len(PinMap), len(c.cfg.ServoCfgs)-len(PinMap))
	}

	err := rpio.Open()
	if err != nil {
		return fmt.Errorf("failed opening rpio: %w", err)
	}

	for i, servoCfg := range c.cfg.ServoCfgs {
		if i >= len(PinMap) {
			break
		}
		ch := newChannel(PinMap[i], servoCfg)
		ch.pin.Mode(rpio.Pwm)
		ch.pin.Freq(Frequency)
		c.channels[servoCfg.Name] = ch
		log.Printf("pwm pin %d assigned to %s\n", ch.pin, servoCfg.Name)
	}
	c.CenterAll()
	return nil
}

func (c *CommandDriver) Stop() error {
	c.CenterAll()
	err := rpio.Close()
	if err != nil {
		return fmt.Errorf("failed closing rpio: %w", err)
	}
	return nil
}

func (c *CommandDriver) CenterAll() {
	log.Println("centering all pwm pins")
	for _, ch := range c.channels {
		ch.pin.DutyCycle(ch.center(), CycleLength)
	}
}

func (c *CommandDriver) Has(name string) bool {
	_, ok := c.channels[name]
	return ok
}

func (c *CommandDriver) SetMany(cmds []command.DriverCommand) error {
	for _, cmd := range cmds {
		err := c.Set(cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

// Set ignores names without a configured pin; Has reports which ones exist.
func (c *CommandDriver) Set(cmd command.DriverCommand) error {
	ch, ok := c.channels[cmd.Name]
	if !ok {
		return nil
	}
	ch.pin.DutyCycle(ch.duty(cmd), CycleLength)
	return nil
}
