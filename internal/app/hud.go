package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/mapper"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/prometheus/procfs"
	log "github.com/sirupsen/logrus"
)

func (a *App) hudLoop(ctx context.Context) error {
	p, err := procfs.Self()
	if err != nil {
		log.Warnf("procfs could not get process, hud will skip network stats: %s\n", err)
	}

	hudTicker := time.NewTicker(a.cfg.HudCfg.Interval)
	defer hudTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("stopping hud updater: %s\n", ctx.Err().Error())
			return ctx.Err()
		case <-hudTicker.C:
			if a.telemetry.Count() == 0 {
				continue
			}

			var netInfo *procfs.NetDevLine
			if err == nil {
				netInfo = readNetInfo(p, a.cfg.HudCfg.NetInterface)
			}

			connected, name := a.controllerStatus()
			a.telemetry.PublishHud(buildHud(a.mapper.Velocity(), a.mapper.Speeds(), connected, name, netInfo))
		}
	}
}

func readNetInfo(p procfs.Proc, iface string) *procfs.NetDevLine {
	netDev, err := p.NetDev() //update network stats
	if err != nil {
		log.Debugf("failed getting netstat: %s\n", err)
		return nil
	}

	line, ok := netDev[iface]
	if !ok {
		log.Debugf("failed getting %s stats: not found\n", iface)
		return nil
	}
	return &line
}

func buildHud(velocity models.VelocityCommand, speeds mapper.SpeedLimits, connected bool, controllerName string, netInfo *procfs.NetDevLine) models.Hud {
	lines := make([]string, 0, 2)

	controller := "none"
	if connected {
		controller = controllerName
	}
	lines = append(lines, fmt.Sprintf("Linear:%.2f | Angular:%.2f | MaxLinear:%.1f | MaxAngular:%.1f | Controller:%s",
		velocity.LinearX,
		velocity.AngularZ,
		speeds.Linear,
		speeds.Angular,
		controller,
	))

	if netInfo != nil {
		lines = append(lines, fmt.Sprintf("RxPkt:%d | RxErr:%d | RxDrop: %d | TxPkt:%d | TxErr:%d | TxDrop: %d",
			netInfo.RxPackets,
			netInfo.RxErrors,
			netInfo.RxDropped,
			netInfo.TxPackets,
			netInfo.TxErrors,
			netInfo.TxDropped,
		))
	}

	return models.Hud{
		Lines: lines,
	}
}
