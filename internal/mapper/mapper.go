package mapper

import (
	"sync"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	log "github.com/sirupsen/logrus"
)

// ButtonState holds pressed/released for each logical button.
type ButtonState [models.ButtonCount]bool

// SpeedLimits are the magnitudes used for the velocity pair. Both are kept inside their configured bounds.
type SpeedLimits struct {
	Linear  float64
	Angular float64
}

// Mapper turns button edges into a velocity command. It is the only state shared between the
// controller read loop and the periodic emitter, so every access goes through lock.
type Mapper struct {
	lock sync.Mutex
	cfg  config.MapperConfig

	buttons  ButtonState
	speeds   SpeedLimits
	velocity models.VelocityCommand
}

func NewMapper(cfg config.MapperConfig) *Mapper {
	return &Mapper{
		cfg: cfg,
		speeds: SpeedLimits{
			Linear:  clamp(cfg.Linear.Default, cfg.Linear.Min, cfg.Linear.Max),
			Angular: clamp(cfg.Angular.Default, cfg.Angular.Min, cfg.Angular.Max),
		},
	}
}

// OnButtonEvent records the new state of a button and recomputes the velocity. Unknown buttons are dropped.
func (m *Mapper) OnButtonEvent(button models.Button, pressed bool) {
	if !button.Valid() {
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.buttons[button] = pressed
	m.update()
	log.Debugf("button %s: %t\n", button, pressed)
}

// ReleaseAll drops every held button, bringing the velocity back to neutral.
func (m *Mapper) ReleaseAll() {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.buttons = ButtonState{}
	m.update()
}

func (m *Mapper) Velocity() models.VelocityCommand {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.velocity
}

func (m *Mapper) Speeds() SpeedLimits {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.speeds
}

func (m *Mapper) Buttons() ButtonState {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.buttons
}

// update must be called with lock held. The velocity uses the speeds from before this pass's
// adjustments, and adjustments apply on every pass while their button is held.
func (m *Mapper) update() {
	m.velocity.LinearX = axis(m.buttons[models.ButtonUp], m.buttons[models.ButtonDown], m.speeds.Linear)
	m.velocity.AngularZ = axis(m.buttons[models.ButtonLeft], m.buttons[models.ButtonRight], m.speeds.Angular)

	if m.buttons[models.Button1] {
		m.increaseLinear()
	}
	if m.buttons[models.Button3] {
		m.decreaseLinear()
	}
	if m.buttons[models.Button4] {
		m.increaseAngular()
	}
	if m.buttons[models.Button2] {
		m.decreaseAngular()
	}
}

func (m *Mapper) increaseLinear() {
	m.speeds.Linear = clamp(m.speeds.Linear+m.cfg.Linear.Step, m.cfg.Linear.Min, m.cfg.Linear.Max)
	log.Infof("linear speed increased to: %.2f\n", m.speeds.Linear)
}

func (m *Mapper) decreaseLinear() {
	m.speeds.Linear = clamp(m.speeds.Linear-m.cfg.Linear.Step, m.cfg.Linear.Min, m.cfg.Linear.Max)
	log.Infof("linear speed decreased to: %.2f\n", m.speeds.Linear)
}

func (m *Mapper) increaseAngular() {
	m.speeds.Angular = clamp(m.speeds.Angular+m.cfg.Angular.Step, m.cfg.Angular.Min, m.cfg.Angular.Max)
	log.Infof("angular speed increased to: %.2f\n", m.speeds.Angular)
}

func (m *Mapper) decreaseAngular() {
	m.speeds.Angular = clamp(m.speeds.Angular-m.cfg.Angular.Step, m.cfg.Angular.Min, m.cfg.Angular.Max)
	log.Infof("angular speed decreased to: %.2f\n", m.speeds.Angular)
}

// axis resolves a positive/negative button pair; both held is neutral.
func axis(positive, negative bool, speed float64) float64 {
	if positive && !negative {
		return speed
	} else if negative && !positive {
		return -speed
	}
	return 0.0
}

func clamp(value, min, max float64) float64 {
	if value > max {
		return max
	} else if value < min {
		return min
	}
	return value
}
