package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/charlesng35/regforms/internal/session"
	"github.com/charlesng35/regforms/pkg/logger"
)

// DefaultSubject carries session ended events between nodes.
const DefaultSubject = "regforms.sessions.ended"

// Publisher is the subset of *nats.Conn used to publish events.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subscriber is the subset of *nats.Conn used to receive events.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// NATSPublisher forwards session events to a NATS subject so every node can reach its
// own websocket clients.
type NATSPublisher struct {
	conn    Publisher
	subject string
}

// NewNATSPublisher constructs a publisher for subject, defaulting to DefaultSubject.
func NewNATSPublisher(conn Publisher, subject string) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("notify: nats connection is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) SessionEnded(_ context.Context, event session.EndedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("notify: publish %s: %w", p.subject, err)
	}
	return nil
}

// Relay subscribes to subject and hands every decoded event to hub.
func Relay(conn Subscriber, subject string, hub *Hub) (*nats.Subscription, error) {
	if conn == nil || hub == nil {
		return nil, errors.New("notify: relay requires a connection and a hub")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}

	log := logger.WithModule("notify")
	return conn.Subscribe(subject, func(msg *nats.Msg) {
		var event session.EndedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Warn("discarding malformed session event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		if event.UserID == "" || event.SessionID == "" {
			return
		}
		hub.Deliver(event)
	})
}
