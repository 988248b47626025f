package app

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type eventEmitter interface {
	Emit(event string, args ...interface{})
}

// SocketSink forwards every velocity tick to the server as a cmd_vel event.
type SocketSink struct {
	client  eventEmitter
	robotId uuid.UUID
	now     func() time.Time
}

func NewSocketSink(client eventEmitter, robotId uuid.UUID) *SocketSink {
	return &SocketSink{
		client:  client,
		robotId: robotId,
		now:     time.Now,
	}
}

func (s *SocketSink) Name() string {
	return SinkSocket
}

func (s *SocketSink) Publish(cmd models.VelocityCommand) error {
	encodedMsg, err := encode(models.VelocityMsg{
		RobotId:   s.robotId,
		LinearX:   cmd.LinearX,
		AngularZ:  cmd.AngularZ,
		TimeStamp: s.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed encoding cmd_vel: %w", err)
	}
	s.client.Emit("cmd_vel", encodedMsg)
	return nil
}

// Telemetry fans velocity and hud updates out to every connected WebRTC peer.
type Telemetry struct {
	lock  sync.RWMutex
	conns map[string]*Connection
}

func NewTelemetry() *Telemetry {
	return &Telemetry{
		conns: make(map[string]*Connection),
	}
}

func (t *Telemetry) Name() string {
	return SinkWebRTC
}

func (t *Telemetry) Add(conn *Connection) {
	t.lock.Lock()
	old, ok := t.conns[conn.ID]
	t.conns[conn.ID] = conn
	t.lock.Unlock()

	if ok && old != conn {
		log.Printf("replacing connection for %s\n", conn.ID)
		old.Disconnect()
	}
}

func (t *Telemetry) Remove(conn *Connection) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if current, ok := t.conns[conn.ID]; ok && current == conn {
		delete(t.conns, conn.ID)
	}
}

func (t *Telemetry) Count() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.conns)
}

func (t *Telemetry) Publish(cmd models.VelocityCommand) error {
	t.lock.RLock()
	defer t.lock.RUnlock()
	for _, conn := range t.conns {
		conn.SendVelocity(cmd)
	}
	return nil
}

func (t *Telemetry) PublishHud(hud models.Hud) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	for _, conn := range t.conns {
		conn.SendHud(hud)
	}
}

func (t *Telemetry) CloseAll() {
	t.lock.Lock()
	conns := t.conns
	t.conns = make(map[string]*Connection)
	t.lock.Unlock()

	for _, conn := range conns {
		conn.Disconnect()
	}
}

func encode(obj any) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decode(msg string, obj any) error {
	return json.Unmarshal([]byte(msg), obj)
}
