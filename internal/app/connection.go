package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/pion/webrtc/v3"
	log "github.com/sirupsen/logrus"
)

const (
	PingSourceName = "robot"

	hudSendInterval  = 33 * time.Millisecond //30hz
	pingSendInterval = 1 * time.Second
)

var webrtcConfig = webrtc.Configuration{
	ICEServers: []webrtc.ICEServer{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
	},
}

// Connection is one operator peer receiving telemetry over WebRTC data channels.
type Connection struct {
	ID             string
	PeerConnection *webrtc.PeerConnection
	Ctx            context.Context
	CtxCancel      context.CancelFunc

	VelocityChannel chan models.VelocityCommand
	HudChannel      chan models.Hud
	PingInput       chan int64

	lock            sync.Mutex
	TelemetryOutput *webrtc.DataChannel
	HudOutput       *webrtc.DataChannel
	PingOutput      *webrtc.DataChannel

	onClose      func(*Connection)
	disconnected atomic.Bool
}

func NewConnection(id string, peerConn *webrtc.PeerConnection, onClose func(*Connection)) *Connection {
	log.Printf("Creating User Connection %s\n", id)
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:              id,
		PeerConnection:  peerConn,
		Ctx:             ctx,
		CtxCancel:       cancel,
		VelocityChannel: make(chan models.VelocityCommand, 10),
		HudChannel:      make(chan models.Hud, 10),
		PingInput:       make(chan int64, 10),
		onClose:         onClose,
	}
}

func (c *Connection) Disconnect() {
	// closing the peer can fire the ICE closed callback, which lands back here
	if !c.disconnected.CompareAndSwap(false, true) {
		return
	}

	log.Printf("user %s disconnecting\n", c.ID)
	c.CtxCancel()
	if c.onClose != nil {
		c.onClose(c)
	}
	if c.PeerConnection != nil {
		err := c.PeerConnection.Close()
		if err != nil {
			log.Errorf("failed closing peer connection: %s\n", err)
		}
	}
}

// SendVelocity queues a command for the telemetry channel, dropping it if the peer is behind.
func (c *Connection) SendVelocity(cmd models.VelocityCommand) {
	select {
	case c.VelocityChannel <- cmd:
	default:
		log.Debugf("telemetry channel full for %s, skipping\n", c.ID)
	}
}

func (c *Connection) SendHud(hud models.Hud) {
	select {
	case c.HudChannel <- hud:
	default:
		log.Debugf("hud channel full for %s, skipping\n", c.ID)
	}
}

func (c *Connection) RegisterHandlers() {
	log.Println("start event listeners")
	// This will notify you when the peer has connected/disconnected
	c.PeerConnection.OnICEConnectionStateChange(c.onICEConnectionStateChange)

	c.PeerConnection.OnICECandidate(c.onICECandidate)

	c.PeerConnection.OnDataChannel(c.onDataChannel)

	go c.updater()
}

func (c *Connection) output(label string) *webrtc.DataChannel {
	c.lock.Lock()
	defer c.lock.Unlock()
	switch label {
	case "telemetry":
		return c.TelemetryOutput
	case "hud":
		return c.HudOutput
	case "ping":
		return c.PingOutput
	}
	return nil
}

func (c *Connection) setOutput(label string, d *webrtc.DataChannel) {
	c.lock.Lock()
	defer c.lock.Unlock()
	switch label {
	case "telemetry":
		c.TelemetryOutput = d
	case "hud":
		c.HudOutput = d
	case "ping":
		c.PingOutput = d
	}
}

func (c *Connection) updater() {
	pingTicker := time.NewTicker(pingSendInterval)
	hudTicker := time.NewTicker(hudSendInterval)
	defer pingTicker.Stop()
	defer hudTicker.Stop()

	sent := true
	hudToSend := models.Hud{}
	lastPing := int64(0)
	for {
		select {
		case <-c.Ctx.Done():
			log.Printf("stopping user updater: %s\n", c.Ctx.Err().Error())
			return
		case cmd := <-c.VelocityChannel:
			output := c.output("telemetry")
			if output == nil {
				continue
			}
			encodedMsg, err := encode(cmd)
			if err != nil {
				log.Errorf("failed encoding telemetry: %s\n", err)
				continue
			}
			err = output.SendText(encodedMsg)
			if err != nil {
				log.Errorf("failed sending telemetry: error - %s\n", err.Error())
			}
		case hud := <-c.HudChannel:
			if c.output("hud") != nil {
				hudToSend = hud
				sent = false
			}
		case <-pingTicker.C:
			output := c.output("ping")
			if output == nil {
				continue
			}
			data, err := json.Marshal(models.Ping{
				TimeStamp: time.Now().UnixMilli(),
				Source:    PingSourceName,
			})
			if err != nil {
				log.Errorf("failed encoding ping: %s\n", err)
				continue
			}
			err = output.Send(data)
			if err != nil {
				log.Errorf("failed sending ping: error - %s\n", err.Error())
			}
		case recievedPing := <-c.PingInput:
			lastPing = recievedPing
		case <-hudTicker.C:
			output := c.output("hud")
			if sent || output == nil {
				continue
			}
			// lines are shared with every other peer
			lines := append([]string(nil), hudToSend.Lines...)
			if len(lines) > 0 {
				lines[0] = fmt.Sprintf("%s | Ping:%dms", lines[0], lastPing)
			}
			encodedMsg, err := encode(models.Hud{Lines: lines})
			sent = true
			if err != nil {
				log.Errorf("failed encoding hud: %s\n", err)
				continue
			}
			err = output.SendText(encodedMsg)
			if err != nil {
				log.Errorf("failed sending hud: error - %s\n", err.Error())
			}
		}
	}
}
