package controller

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/models"
	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"
)

const (
	openAttempts   = 5
	openRetryDelay = 200 * time.Millisecond

	eviocgrab = 0x40044590 // _IOW('E', 0x90, int)
)

// KeyMap maps raw evdev key codes onto the logical buttons. Codes not listed are ignored.
var KeyMap = map[uint16]models.Button{
	evdev.KEY_UP:    models.ButtonUp,
	evdev.KEY_DOWN:  models.ButtonDown,
	evdev.KEY_LEFT:  models.ButtonLeft,
	evdev.KEY_RIGHT: models.ButtonRight,
	evdev.KEY_1:     models.Button1,
	evdev.KEY_2:     models.Button2,
	evdev.KEY_3:     models.Button3,
	evdev.KEY_4:     models.Button4,
}

// Device is one open input device owned by the supervisor for the length of a connection.
type Device interface {
	Name() string
	Path() string
	Capabilities() string
	Grab() error
	ReadOne() (*evdev.InputEvent, error)
	Close() error
}

// Opener opens the device found at path.
type Opener func(path string) (Device, error)

type evdevDevice struct {
	dev     *evdev.InputDevice
	grabbed bool
}

// OpenDevice opens an evdev node, retrying permission errors while udev is still applying its rules to a fresh node.
func OpenDevice(path string) (Device, error) {
	var (
		dev *evdev.InputDevice
		err error
	)
	for i := 0; i < openAttempts; i++ {
		dev, err = evdev.Open(path)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrPermission) {
			break
		}
		time.Sleep(openRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed opening input device %s: %w", path, err)
	}

	file, err := pollable(dev.File)
	if err != nil {
		dev.File.Close()
		return nil, fmt.Errorf("failed preparing input device %s: %w", path, err)
	}
	dev.File = file
	return &evdevDevice{dev: dev}, nil
}

// pollable replaces f with a non-blocking duplicate registered with the runtime poller.
// evdev.Open calls Fd() for its ioctls, which leaves f blocking, and a blocking read is
// not woken by Close.
func pollable(f *os.File) (*os.File, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, fmt.Errorf("dup failed: %w", err)
	}
	unix.CloseOnExec(fd)

	err = unix.SetNonblock(fd, true)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblock failed: %w", err)
	}

	dup := os.NewFile(uintptr(fd), f.Name())
	err = f.Close()
	if err != nil {
		dup.Close()
		return nil, err
	}
	return dup, nil
}

func (d *evdevDevice) Name() string {
	return d.dev.Name
}

func (d *evdevDevice) Path() string {
	return d.dev.Fn
}

func (d *evdevDevice) Capabilities() string {
	caps := make([]string, 0, len(d.dev.Capabilities))
	for capType, codes := range d.dev.Capabilities {
		caps = append(caps, fmt.Sprintf("%s(%d)", capType.Name, len(codes)))
	}
	sort.Strings(caps)
	return strings.Join(caps, ", ")
}

// Grab and release go through the raw conn, since InputDevice.Grab calls Fd() and would
// put the descriptor back into blocking mode.
func (d *evdevDevice) Grab() error {
	err := d.grab(1)
	if err != nil {
		return fmt.Errorf("failed grabbing %s: %w", d.dev.Fn, err)
	}
	d.grabbed = true
	return nil
}

func (d *evdevDevice) ReadOne() (*evdev.InputEvent, error) {
	return d.dev.ReadOne()
}

func (d *evdevDevice) Close() error {
	if d.grabbed {
		_ = d.grab(0)
		d.grabbed = false
	}
	return d.dev.File.Close()
}

func (d *evdevDevice) grab(value int) error {
	rawConn, err := d.dev.File.SyscallConn()
	if err != nil {
		return err
	}

	var ioctlErr error
	err = rawConn.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), eviocgrab, value)
	})
	if err != nil {
		return err
	}
	return ioctlErr
}
