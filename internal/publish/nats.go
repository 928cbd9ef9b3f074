package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	"git.home.luguber.info/inful/buildrelay/internal/errors"
)

// Filterable attribute headers carried on every published message, so
// subscribers can select build-relevant, environment-matching events without
// deserializing the body.
const (
	HeaderEventID       = "Event-Id"
	HeaderEventType     = "Event-Type"
	HeaderContentType   = "Content-Type-Name"
	HeaderProvider      = "Provider"
	HeaderClientID      = "Client-Id"
	HeaderEnvironment   = "Environment"
	HeaderPriority      = "Priority"
	HeaderRequiresBuild = "Requires-Build"
)

// NATSPublisher publishes content events to a NATS subject hierarchy:
// <prefix>.<clientID>.<provider>.<eventType>.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// NewNATSPublisher connects to NATS and returns a publisher. subjectPrefix
// defaults to "content.events".
func NewNATSPublisher(url, subjectPrefix string) (*NATSPublisher, error) {
	if subjectPrefix == "" {
		subjectPrefix = "content.events"
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	slog.Info("NATS publisher connected", "url", url, "subject_prefix", subjectPrefix)
	return &NATSPublisher{conn: conn, subjectPrefix: subjectPrefix}, nil
}

// Publish sends one event. The routing attributes are duplicated into
// message headers as filterable metadata.
func (p *NATSPublisher) Publish(_ context.Context, evt content.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.WrapError(err, errors.CategoryPublish, "marshal content event").
			WithContext("event_id", evt.EventID).Build()
	}

	msg := nats.NewMsg(p.subject(evt))
	msg.Data = body
	msg.Header.Set(HeaderEventID, evt.EventID)
	msg.Header.Set(HeaderEventType, string(evt.Type))
	msg.Header.Set(HeaderContentType, string(evt.ContentType))
	msg.Header.Set(HeaderProvider, evt.ProviderName)
	msg.Header.Set(HeaderClientID, evt.ClientID)
	msg.Header.Set(HeaderEnvironment, evt.Environment)
	msg.Header.Set(HeaderPriority, string(evt.Priority))
	msg.Header.Set(HeaderRequiresBuild, strconv.FormatBool(evt.RequiresBuild))

	if err := p.conn.PublishMsg(msg); err != nil {
		return errors.WrapError(err, errors.CategoryPublish, "publish content event").
			WithContext("event_id", evt.EventID).
			WithContext("subject", msg.Subject).Build()
	}
	return nil
}

func (p *NATSPublisher) subject(evt content.Event) string {
	return fmt.Sprintf("%s.%s.%s.%s", p.subjectPrefix, evt.ClientID, evt.ProviderName, evt.Type)
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
