package app

import (
	"encoding/json"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/pion/webrtc/v3"
	log "github.com/sirupsen/logrus"
)

func (c *Connection) onICEConnectionStateChange(connectionState webrtc.ICEConnectionState) {
	log.Printf("Connection State has changed: %s\n", connectionState.String())
	switch connectionState {
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		c.Disconnect()
	}
}

func (c *Connection) onICECandidate(candidate *webrtc.ICECandidate) {
	if candidate != nil {
		log.Printf("recieved ICE candidate from client: %s\n", candidate.String())
	}
}

func (c *Connection) onDataChannel(d *webrtc.DataChannel) {
	log.Printf("new data channel: %s\n", d.Label())

	d.OnOpen(func() {
		log.Printf("data channel open: %s\n", d.Label())
		c.setOutput(d.Label(), d)
	})

	switch d.Label() {
	case "ping":
		d.OnMessage(func(msg webrtc.DataChannelMessage) { c.onPingHandler(msg.Data) })
	case "hud", "telemetry":
	default:
		log.Printf("recieved message on unsupported channel: %s\n", d.Label())
	}
}

func (c *Connection) onPingHandler(data []byte) {
	ping := models.Ping{}
	err := json.Unmarshal(data, &ping)
	if err != nil {
		log.Printf("failed unmarshalling data channel msg: %s\n", data)
		return
	}
	if ping.Source == PingSourceName {
		roundTripTime := time.Now().UnixMilli() - ping.TimeStamp
		log.Debugf("ping: %d ms\n", roundTripTime)
		select {
		case c.PingInput <- roundTripTime:
		default:
		}
	}
}
