package controller

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/emitter"
	"github.com/Speshl/gorrc_teleop/internal/mapper"
	"github.com/Speshl/gorrc_teleop/internal/models"
	evdev "github.com/gvalkov/golang-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeDevice struct {
	name   string
	events []*evdev.InputEvent
	err    error

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeDevice(name string, err error, events ...*evdev.InputEvent) *fakeDevice {
	return &fakeDevice{
		name:   name,
		events: events,
		err:    err,
		closed: make(chan struct{}),
	}
}

func (d *fakeDevice) Name() string         { return d.name }
func (d *fakeDevice) Path() string         { return "/dev/input/" + d.name }
func (d *fakeDevice) Capabilities() string { return "EV_KEY(8)" }
func (d *fakeDevice) Grab() error          { return nil }

func (d *fakeDevice) ReadOne() (*evdev.InputEvent, error) {
	if len(d.events) > 0 {
		event := d.events[0]
		d.events = d.events[1:]
		return event, nil
	}
	if d.err != nil {
		return nil, d.err
	}
	<-d.closed
	return nil, os.ErrClosed
}

func (d *fakeDevice) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}

func (d *fakeDevice) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

func keyEvent(code uint16, value int32) *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: value}
}

func testControllerConfig() config.ControllerConfig {
	return config.ControllerConfig{
		DeviceGlob:      config.DefaultDeviceGlob,
		MatchNames:      []string{"controller", "gamepad"},
		NotFoundBackoff: 5 * time.Second,
		FaultBackoff:    1 * time.Second,
	}
}

func testMapper() *mapper.Mapper {
	return mapper.NewMapper(config.MapperConfig{
		Linear:  config.SpeedConfig{Default: 0.5, Min: 0.1, Max: 1.0, Step: 0.1},
		Angular: config.SpeedConfig{Default: 1.0, Min: 0.2, Max: 2.0, Step: 0.2},
	})
}

type countingLister struct {
	calls   int
	devices []DeviceInfo
	err     error
}

func (l *countingLister) list(glob string) ([]DeviceInfo, error) {
	l.calls++
	return l.devices, l.err
}

// stopAfter records every backoff and cancels the supervisor once limit waits were requested.
type stopAfter struct {
	limit  int
	cancel context.CancelFunc
	waits  []time.Duration
	onWait func()
}

func (w *stopAfter) wait(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	w.waits = append(w.waits, d)
	if w.onWait != nil {
		w.onWait()
	}
	if len(w.waits) >= w.limit {
		w.cancel()
		return ctx.Err()
	}
	return nil
}

type recordingSink struct {
	published []models.VelocityCommand
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Publish(cmd models.VelocityCommand) error {
	r.published = append(r.published, cmd)
	return nil
}

func TestLocatorFirstMatch(t *testing.T) {
	lister := &countingLister{devices: []DeviceInfo{
		{Path: "/dev/input/event0", Name: "AT Translated Set 2 keyboard"},
		{Path: "/dev/input/event3", Name: "8BitDo Zero 2 GamePad"},
		{Path: "/dev/input/event4", Name: "Wireless Controller"},
	}}
	locator := NewLocator("/dev/input/event*", []string{"Controller", "gamepad"}, lister.list)

	path, found, err := locator.Locate()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "/dev/input/event3", path)
}

func TestLocatorNoMatch(t *testing.T) {
	lister := &countingLister{devices: []DeviceInfo{
		{Path: "/dev/input/event0", Name: "Power Button"},
	}}
	locator := NewLocator("/dev/input/event*", []string{"controller", "gamepad"}, lister.list)

	path, found, err := locator.Locate()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, path)
}

func TestLocatorListError(t *testing.T) {
	lister := &countingLister{err: errors.New("glob failed")}
	locator := NewLocator("/dev/input/event*", []string{"controller"}, lister.list)

	_, found, err := locator.Locate()
	assert.Error(t, err)
	assert.False(t, found)
}

func TestHandleEventIgnoresUnknownInput(t *testing.T) {
	m := testMapper()
	s := NewSupervisor(testControllerConfig(), nil, nil, m)

	s.handleEvent(nil)
	s.handleEvent(&evdev.InputEvent{Type: evdev.EV_ABS, Code: evdev.KEY_UP, Value: 1})
	s.handleEvent(keyEvent(evdev.KEY_A, 1))
	assert.Equal(t, mapper.ButtonState{}, m.Buttons())

	s.handleEvent(keyEvent(evdev.KEY_UP, 1))
	s.handleEvent(keyEvent(evdev.KEY_1, 2)) // autorepeat counts as held
	buttons := m.Buttons()
	assert.True(t, buttons[models.ButtonUp])
	assert.True(t, buttons[models.Button1])

	s.handleEvent(keyEvent(evdev.KEY_UP, 0))
	assert.False(t, m.Buttons()[models.ButtonUp])
}

func TestNoDeviceKeepsPublishingNeutral(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := testMapper()
	sink := &recordingSink{}
	e := emitter.NewEmitter(100*time.Millisecond, m, []emitter.Sink{sink})

	lister := &countingLister{}
	s := NewSupervisor(testControllerConfig(), NewLocator("", []string{"controller"}, lister.list), nil, m)
	waiter := &stopAfter{limit: 3, cancel: cancel, onWait: e.Tick}
	s.wait = waiter.wait

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 3, lister.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, waiter.waits)
	assert.Equal(t, []models.VelocityCommand{{}, {}, {}}, sink.published)
}

func TestDisconnectRelocatesAfterFaultBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := testMapper()
	lister := &countingLister{devices: []DeviceInfo{{Path: "/dev/input/event5", Name: "USB Gamepad"}}}
	device := newFakeDevice("USB Gamepad", errors.New("no such device"), keyEvent(evdev.KEY_UP, 1))

	opened := 0
	open := func(path string) (Device, error) {
		opened++
		assert.Equal(t, "/dev/input/event5", path)
		return device, nil
	}

	var statuses []bool
	s := NewSupervisor(testControllerConfig(), NewLocator("", []string{"gamepad"}, lister.list), open, m)
	s.OnStatus(func(connected bool, name string) {
		statuses = append(statuses, connected)
	})

	waiter := &stopAfter{limit: 2, cancel: cancel}
	s.wait = waiter.wait

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []time.Duration{time.Second, time.Second}, waiter.waits)
	assert.Equal(t, 2, lister.calls)
	assert.Equal(t, 2, opened)
	assert.True(t, device.isClosed())
	assert.Equal(t, []bool{true, false, true, false}, statuses)

	// last known command keeps going out
	assert.Equal(t, 0.5, m.Velocity().LinearX)
}

func TestStreamEndIsAFault(t *testing.T) {
	m := testMapper()
	s := NewSupervisor(testControllerConfig(), nil, func(path string) (Device, error) {
		return newFakeDevice("Controller", io.EOF), nil
	}, m)

	err := s.runDevice(context.Background(), "/dev/input/event1")
	assert.ErrorIs(t, err, ErrStreamEnded)
}

func TestOpenFailureIsAFault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lister := &countingLister{devices: []DeviceInfo{{Path: "/dev/input/event5", Name: "Controller"}}}
	s := NewSupervisor(testControllerConfig(), NewLocator("", []string{"controller"}, lister.list), func(path string) (Device, error) {
		return nil, os.ErrPermission
	}, testMapper())
	waiter := &stopAfter{limit: 1, cancel: cancel}
	s.wait = waiter.wait

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{time.Second}, waiter.waits)
}

func TestReleaseOnDisconnect(t *testing.T) {
	cfg := testControllerConfig()
	cfg.ReleaseOnDisconnect = true
	m := testMapper()

	s := NewSupervisor(cfg, nil, func(path string) (Device, error) {
		return newFakeDevice("Controller", io.ErrUnexpectedEOF, keyEvent(evdev.KEY_LEFT, 1)), nil
	}, m)

	err := s.runDevice(context.Background(), "/dev/input/event1")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, models.VelocityCommand{}, m.Velocity())
}

func TestCancelUnblocksRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	device := newFakeDevice("Controller", nil)

	s := NewSupervisor(testControllerConfig(), nil, func(path string) (Device, error) {
		return device, nil
	}, testMapper())

	result := make(chan error, 1)
	go func() {
		result <- s.runDevice(ctx, "/dev/input/event1")
	}()

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, device.isClosed())
	case <-time.After(2 * time.Second):
		t.Fatal("read was not unblocked by cancel")
	}
}

func TestInotifyNames(t *testing.T) {
	buf := make([]byte, 0)
	for _, name := range []string{"event7", "js0"} {
		padded := make([]byte, 16)
		copy(padded, name)

		header := make([]byte, unix.SizeofInotifyEvent)
		binary.NativeEndian.PutUint32(header[4:8], unix.IN_CREATE)
		binary.NativeEndian.PutUint32(header[12:16], uint32(len(padded)))
		buf = append(buf, header...)
		buf = append(buf, padded...)
	}

	assert.Equal(t, []string{"event7", "js0"}, inotifyNames(buf))
	assert.Empty(t, inotifyNames(buf[:8]))
}

func TestStaleWakeDoesNotShortenBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testControllerConfig()
	cfg.NotFoundBackoff = 200 * time.Millisecond

	lister := &countingLister{}
	s := NewSupervisor(cfg, NewLocator("", []string{"controller"}, lister.list), nil, testMapper())

	wake := make(chan struct{}, 1)
	wake <- struct{}{} // left behind by a node change while a controller was connected
	s.wake = wake

	var waited time.Duration
	s.wait = func(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
		start := time.Now()
		err := sleep(ctx, d, wake)
		waited = time.Since(start)
		cancel()
		return err
	}

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, lister.calls)
	assert.GreaterOrEqual(t, waited, cfg.NotFoundBackoff)
}

func TestSleepReturnsEarlyOnWake(t *testing.T) {
	wake := make(chan struct{}, 1)
	wake <- struct{}{}

	start := time.Now()
	require.NoError(t, sleep(context.Background(), 10*time.Second, wake))
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, 10*time.Second, nil), context.Canceled)
}

func TestHotplugWakeEndsBackoff(t *testing.T) {
	dir := t.TempDir()
	cfg := testControllerConfig()
	cfg.NotFoundBackoff = time.Minute
	cfg.HotplugWake = true
	cfg.HotplugPath = dir

	var calls atomic.Int32
	locator := NewLocator("", []string{"controller"}, func(glob string) ([]DeviceInfo, error) {
		calls.Add(1)
		return nil, nil
	})
	s := NewSupervisor(cfg, locator, nil, testMapper())

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- s.Start(ctx)
	}()

	created := 0
	require.Eventually(t, func() bool {
		// keep creating nodes in case the watch was not registered yet
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("event%d", created)))
		if err == nil {
			f.Close()
		}
		created++
		return calls.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop with the hotplug watcher running")
	}
}
