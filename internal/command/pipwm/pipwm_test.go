package pipwm

import (
	"testing"

	"github.com/Speshl/gorrc_teleop/internal/command"
	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestChannelDuty(t *testing.T) {
	servoCfg := config.ServoConfig{Name: "left", MinPulse: 750, MaxPulse: 2250}
	normal := newChannel(PinMap[0], servoCfg)
	servoCfg.Inverted = true
	inverted := newChannel(PinMap[1], servoCfg)

	cmd := func(value float64) command.DriverCommand {
		return command.DriverCommand{Name: "left", Value: value, Min: command.MinOutput, Max: command.MaxOutput}
	}

	assert.Equal(t, uint32(1500), normal.center())
	assert.Equal(t, uint32(1500), normal.duty(cmd(0)))
	assert.Equal(t, uint32(2250), normal.duty(cmd(1)))
	assert.Equal(t, uint32(750), normal.duty(cmd(-1)))

	assert.Equal(t, uint32(750), inverted.duty(cmd(1)))
	assert.Equal(t, uint32(2250), inverted.duty(cmd(-1)))
	assert.Equal(t, uint32(1500), inverted.duty(cmd(0)))
}

func TestChannelOffset(t *testing.T) {
	ch := newChannel(PinMap[0], config.ServoConfig{MinPulse: 1000, MaxPulse: 2000, Offset: 10})
	assert.Equal(t, uint32(1550), ch.duty(command.DriverCommand{Value: 0, Min: command.MinOutput, Max: command.MaxOutput}))
}

func TestHasOnlyConfiguredNames(t *testing.T) {
	c := NewCommand(config.CommandConfig{})
	c.channels["left"] = newChannel(PinMap[0], config.ServoConfig{Name: "left", MinPulse: 750, MaxPulse: 2250})

	assert.True(t, c.Has("left"))
	assert.False(t, c.Has("right"))
	assert.NoError(t, c.Set(command.DriverCommand{Name: "right", Value: 1}))
}
