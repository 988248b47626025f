package models

import (
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// Button is one of the logical roles a raw key code is mapped onto.
type Button int

const (
	ButtonUp Button = iota
	ButtonDown
	ButtonLeft
	ButtonRight
	Button1
	Button2
	Button3
	Button4

	ButtonCount = 8
)

var buttonNames = [ButtonCount]string{"U", "D", "L", "R", "1", "2", "3", "4"}

func (b Button) Valid() bool {
	return b >= 0 && b < ButtonCount
}

func (b Button) String() string {
	if !b.Valid() {
		return "?"
	}
	return buttonNames[b]
}

// VelocityCommand is the linear/angular pair sent to the robot's motion controller.
type VelocityCommand struct {
	LinearX  float64 `json:"linear_x"`
	AngularZ float64 `json:"angular_z"`
}

type VelocityMsg struct {
	RobotId   uuid.UUID `json:"robot_id"`
	LinearX   float64   `json:"linear_x"`
	AngularZ  float64   `json:"angular_z"`
	TimeStamp int64     `json:"time_stamp"`
}

type ConnectReq struct {
	Key      string    `json:"key"`
	Password string    `json:"password"`
	RobotId  uuid.UUID `json:"robot_id"`
}

type ConnectResp struct {
	Robot Robot
	Track Track
}

type Robot struct {
	Id        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ShortName string    `json:"short_name"`
	Type      string    `json:"type"`
}

type Track struct {
	Id        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ShortName string    `json:"short_name"`
	Type      string    `json:"type"`
}

type Offer struct {
	Offer  webrtc.SessionDescription `json:"offer"`
	UserId uuid.UUID                 `json:"user_id"`
}

type Answer struct {
	Answer *webrtc.SessionDescription `json:"answer"`
	UserId uuid.UUID                  `json:"user_id"`
}

type Hud struct {
	Lines []string `json:"lines"`
}

type Ping struct {
	Source    string `json:"source"`
	TimeStamp int64  `json:"time_stamp"`
}
