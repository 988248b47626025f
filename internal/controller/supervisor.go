package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	evdev "github.com/gvalkov/golang-evdev"
	log "github.com/sirupsen/logrus"
)

var ErrStreamEnded = errors.New("controller event stream ended")

type ButtonHandler interface {
	OnButtonEvent(models.Button, bool)
	ReleaseAll()
}

// StatusFunc is told whenever a controller connects or drops.
type StatusFunc func(connected bool, name string)

type waitFunc func(ctx context.Context, d time.Duration, wake <-chan struct{}) error

// Supervisor keeps exactly one controller connected, locating and reopening it after every failure.
type Supervisor struct {
	cfg      config.ControllerConfig
	locator  *Locator
	open     Opener
	handler  ButtonHandler
	onStatus StatusFunc
	wait     waitFunc
	wake     <-chan struct{}
}

func NewSupervisor(cfg config.ControllerConfig, locator *Locator, open Opener, handler ButtonHandler) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		locator: locator,
		open:    open,
		handler: handler,
		wait:    sleep,
	}
}

func (s *Supervisor) OnStatus(f StatusFunc) {
	s.onStatus = f
}

// Start runs until ctx is cancelled. Device faults are logged and retried, never returned.
func (s *Supervisor) Start(ctx context.Context) error {
	log.Println("starting controller supervisor")

	wake := s.wake
	if s.cfg.HotplugWake {
		hotplug := NewHotplug(s.cfg.HotplugPath)
		wake = hotplug.C

		watcherCtx, stopWatcher := context.WithCancel(ctx)
		watcherDone := make(chan struct{})
		go func() {
			defer close(watcherDone)
			err := hotplug.Start(watcherCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("hotplug watcher stopped: %s\n", err)
			}
		}()
		defer func() {
			stopWatcher()
			<-watcherDone
		}()
	}

	for {
		if ctx.Err() != nil {
			log.Printf("stopping controller supervisor: %s\n", ctx.Err().Error())
			return ctx.Err()
		}

		path, found, err := s.locator.Locate()
		switch {
		case err != nil:
			log.Errorf("controller error: %s\n", err)
			err = s.wait(ctx, s.cfg.FaultBackoff, nil)
		case !found:
			log.Warnf("no controller found, retrying in %s\n", s.cfg.NotFoundBackoff)
			drain(wake)
			err = s.wait(ctx, s.cfg.NotFoundBackoff, wake)
		default:
			err = s.runDevice(ctx, path)
			if ctx.Err() != nil {
				continue
			}
			log.Errorf("controller error: %s\n", err)
			err = s.wait(ctx, s.cfg.FaultBackoff, nil)
		}

		if err != nil {
			log.Printf("stopping controller supervisor: %s\n", err.Error())
			return err
		}
	}
}

// runDevice owns one connection. It always returns a non-nil error describing why the connection ended.
func (s *Supervisor) runDevice(ctx context.Context, path string) error {
	device, err := s.open(path)
	if err != nil {
		return err
	}

	var closeOnce sync.Once
	closeDevice := func() {
		closeOnce.Do(func() {
			if err := device.Close(); err != nil {
				log.Debugf("failed closing controller %s: %s\n", path, err)
			}
		})
	}
	defer closeDevice()

	log.Printf("connected to controller: %s\n", device.Name())
	log.Printf("device capabilities: %s\n", device.Capabilities())

	if s.cfg.Grab {
		err = device.Grab()
		if err != nil {
			return err
		}
	}

	s.status(true, device.Name())
	defer s.disconnected(device.Name())

	// closing the device is the only way to unblock a pending read
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeDevice()
		case <-done:
		}
	}()

	for {
		event, err := device.ReadOne()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return ErrStreamEnded
			}
			return fmt.Errorf("failed reading %s: %w", device.Name(), err)
		}
		s.handleEvent(event)
	}
}

func (s *Supervisor) handleEvent(event *evdev.InputEvent) {
	if event == nil || event.Type != evdev.EV_KEY {
		return
	}

	button, ok := KeyMap[event.Code]
	if !ok {
		return
	}
	s.handler.OnButtonEvent(button, event.Value != 0)
}

func (s *Supervisor) disconnected(name string) {
	if s.cfg.ReleaseOnDisconnect {
		log.Println("releasing all buttons after disconnect")
		s.handler.ReleaseAll()
	}
	s.status(false, name)
}

func (s *Supervisor) status(connected bool, name string) {
	if s.onStatus != nil {
		s.onStatus(connected, name)
	}
}

// drain drops a wake left over from node changes seen while a controller was connected.
func drain(wake <-chan struct{}) {
	select {
	case <-wake:
	default:
	}
}

func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-wake:
		log.Println("input device added, retrying early")
		return nil
	}
}
