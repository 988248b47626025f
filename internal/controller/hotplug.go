package controller

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	hotplugPollTimeout = 500 // ms
	eventNodePrefix    = "event"
)

// Hotplug watches the input directory and signals C when an event node appears or changes permissions.
type Hotplug struct {
	path string
	C    chan struct{}
}

func NewHotplug(path string) *Hotplug {
	return &Hotplug{
		path: path,
		C:    make(chan struct{}, 1),
	}
}

func (h *Hotplug) Start(ctx context.Context) error {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return fmt.Errorf("inotify init failed: %w", err)
	}
	defer unix.Close(fd)

	_, err = unix.InotifyAddWatch(fd, h.path, unix.IN_CREATE|unix.IN_ATTRIB)
	if err != nil {
		return fmt.Errorf("inotify add watch failed: %w", err)
	}

	buf := make([]byte, 4096)
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := unix.Poll(fds, hotplugPollTimeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("inotify poll failed: %w", err)
		}
		if n == 0 {
			continue
		}

		count, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				continue
			}
			return fmt.Errorf("inotify read failed: %w", err)
		}

		for _, name := range inotifyNames(buf[:count]) {
			if strings.HasPrefix(name, eventNodePrefix) {
				h.notify()
				break
			}
		}
	}
}

func (h *Hotplug) notify() {
	select {
	case h.C <- struct{}{}:
	default: //already pending
	}
}

// inotifyNames pulls the file names out of a buffer of raw inotify events.
func inotifyNames(buf []byte) []string {
	names := make([]string, 0)
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		nameLen := int(binary.NativeEndian.Uint32(buf[offset+12 : offset+16]))
		start := offset + unix.SizeofInotifyEvent
		end := start + nameLen
		if end > len(buf) {
			break
		}
		name := strings.TrimRight(string(buf[start:end]), "\x00")
		if name != "" {
			names = append(names, name)
		}
		offset = end
	}
	return names
}
