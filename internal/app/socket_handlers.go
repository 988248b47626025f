package app

import (
	"github.com/Speshl/gorrc_teleop/internal/models"
	socketio "github.com/googollee/go-socket.io"
	"github.com/pion/webrtc/v3"
	log "github.com/sirupsen/logrus"
)

func (a *App) onOffer(socketConn socketio.Conn, msg string) {
	offer := models.Offer{}
	err := decode(msg, &offer)
	if err != nil {
		log.Printf("offer from %s failed unmarshaling: %s\n - msg - %s", socketConn.ID(), err.Error(), msg)
		return
	}

	peerConn, err := webrtc.NewPeerConnection(webrtcConfig)
	if err != nil {
		log.Errorf("failed creating peer connection for %s: %s\n", offer.UserId, err.Error())
		return
	}

	conn := NewConnection(offer.UserId.String(), peerConn, a.telemetry.Remove)
	conn.RegisterHandlers()
	a.telemetry.Add(conn)

	// Set the received offer as the remote description
	err = peerConn.SetRemoteDescription(offer.Offer)
	if err != nil {
		log.Errorf("failed to set remote description: %s\n", err)
		conn.Disconnect()
		return
	}

	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		log.Errorf("Failed to create answer: %s\n", err)
		conn.Disconnect()
		return
	}

	// Create channel that is blocked until ICE Gathering is complete
	gatherComplete := webrtc.GatheringCompletePromise(peerConn)

	// Sets the LocalDescription, and starts our UDP listeners
	err = peerConn.SetLocalDescription(answer)
	if err != nil {
		log.Errorf("Failed to set local description: %s\n", err)
		conn.Disconnect()
		return
	}

	// Block until ICE Gathering is complete, disabling trickle ICE
	<-gatherComplete

	encodedAnswer, err := encode(models.Answer{
		Answer: peerConn.LocalDescription(),
		UserId: offer.UserId,
	})
	if err != nil {
		log.Errorf("Failed encoding answer: %s\n", err.Error())
		conn.Disconnect()
		return
	}
	log.Println("sending answer")
	a.client.Emit("answer", encodedAnswer)
}

func (a *App) onICECandidate(socketConn socketio.Conn, msg string) {
	decodedMsg := ""
	err := decode(msg, &decodedMsg)
	if err != nil {
		log.Printf("ice candidate from %s failed unmarshaling: %s\n", socketConn.ID(), msg)
		return
	}
	log.Debugf("ice candidate from %s: %s\n", socketConn.ID(), decodedMsg)
}

func (a *App) onRegisterSuccess(socketConn socketio.Conn, msg string) {
	decodedMsg := models.ConnectResp{}
	err := decode(msg, &decodedMsg)
	if err != nil {
		log.Printf("register success from %s failed unmarshaling: %s\n", socketConn.ID(), msg)
		return
	}

	a.robotInfo = decodedMsg.Robot
	a.trackInfo = decodedMsg.Track
	log.Printf("robot connected as %s(%s) @ %s(%s)\n", a.robotInfo.Name, a.robotInfo.ShortName, a.trackInfo.Name, a.trackInfo.ShortName)
}
