package controller

import (
	"fmt"
	"strings"

	evdev "github.com/gvalkov/golang-evdev"
	log "github.com/sirupsen/logrus"
)

type DeviceInfo struct {
	Path string
	Name string
}

// Lister enumerates the input devices matching glob.
type Lister func(glob string) ([]DeviceInfo, error)

type Locator struct {
	glob       string
	matchNames []string
	list       Lister
}

func NewLocator(glob string, matchNames []string, list Lister) *Locator {
	lowered := make([]string, 0, len(matchNames))
	for i := range matchNames {
		lowered = append(lowered, strings.ToLower(matchNames[i]))
	}
	return &Locator{
		glob:       glob,
		matchNames: lowered,
		list:       list,
	}
}

// Locate returns the path of the first device whose name contains one of the match names.
// Finding nothing is not an error.
func (l *Locator) Locate() (string, bool, error) {
	devices, err := l.list(l.glob)
	if err != nil {
		return "", false, fmt.Errorf("failed listing input devices: %w", err)
	}

	for _, device := range devices {
		log.Printf("found device: %s (%s)\n", device.Name, device.Path)
		if l.matches(device.Name) {
			return device.Path, true, nil
		}
	}
	return "", false, nil
}

func (l *Locator) matches(name string) bool {
	name = strings.ToLower(name)
	for i := range l.matchNames {
		if strings.Contains(name, l.matchNames[i]) {
			return true
		}
	}
	return false
}

// ListDevices enumerates evdev nodes. Every device is closed again; the supervisor reopens the one it picks.
func ListDevices(glob string) ([]DeviceInfo, error) {
	devices, err := evdev.ListInputDevices(glob)
	if err != nil {
		return nil, err
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, DeviceInfo{
			Path: dev.Fn,
			Name: dev.Name,
		})
		if err := dev.File.Close(); err != nil {
			log.Debugf("failed closing %s after listing: %s\n", dev.Fn, err)
		}
	}
	return infos, nil
}
