package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/regforms/internal/session"
)

type fakeConn struct {
	subject  string
	payloads [][]byte
	handler  nats.MsgHandler
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subject = subject
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.subject = subject
	f.handler = cb
	return &nats.Subscription{Subject: subject}, nil
}

func TestNATSPublisherPublishesEvent(t *testing.T) {
	conn := &fakeConn{}
	publisher, err := NewNATSPublisher(conn, "")
	require.NoError(t, err)

	event := session.EndedEvent{
		UserID:    "u1",
		SessionID: "s1",
		Reason:    session.EndReasonEvicted,
		At:        time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.SessionEnded(context.Background(), event))
	require.Equal(t, DefaultSubject, conn.subject)
	require.Len(t, conn.payloads, 1)

	var decoded session.EndedEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	require.Equal(t, event, decoded)
}

func TestNATSPublisherWrapsFailures(t *testing.T) {
	cause := errors.New("nats: connection closed")
	publisher, err := NewNATSPublisher(&fakeConn{err: cause}, "custom.subject")
	require.NoError(t, err)

	err = publisher.SessionEnded(context.Background(), session.EndedEvent{UserID: "u1"})
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "custom.subject")

	_, err = NewNATSPublisher(nil, "")
	require.Error(t, err)
}

func TestRelayDeliversToHub(t *testing.T) {
	hub, url := startHub(t)
	client := dial(t, hub, url, "u1", "s2")

	conn := &fakeConn{}
	sub, err := Relay(conn, "", hub)
	require.NoError(t, err)
	require.Equal(t, DefaultSubject, sub.Subject)

	conn.handler(&nats.Msg{Subject: DefaultSubject, Data: []byte("{not json")})
	payload, err := json.Marshal(session.EndedEvent{UserID: "u1", SessionID: "s1", Reason: session.EndReasonEvicted})
	require.NoError(t, err)
	conn.handler(&nats.Msg{Subject: DefaultSubject, Data: payload})

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	var msg Message
	require.NoError(t, client.ReadJSON(&msg))
	require.Equal(t, "s1", msg.SessionID)

	_, err = Relay(nil, "", hub)
	require.Error(t, err)
}
