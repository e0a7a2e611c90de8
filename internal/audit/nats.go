package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"iot-measurement-backend/internal/models"

	nats "github.com/nats-io/nats.go"
)

// Event is the wire form of an audit entry published on NATS.
type Event struct {
	Actor     *uint     `json:"actor"`
	ActorIP   string    `json:"actorIp,omitempty"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	TargetID  *uint     `json:"targetId,omitempty"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewEvent(entry *models.AuditLog) Event {
	return Event{
		Actor:     entry.ActorID,
		ActorIP:   entry.ActorIP,
		Action:    entry.Action,
		Target:    entry.Target,
		TargetID:  entry.TargetID,
		Status:    entry.Status,
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	}
}

// NATSPublisher fans audit entries out to downstream consumers (SIEM, alerting).
// Publishing is fire-and-forget; the database remains the system of record.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// Connect opens a NATS connection that keeps reconnecting in the background.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("iot-measurement-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, entry *models.AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NewEvent(entry))
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}
