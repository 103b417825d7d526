// Package events publishes committed ledger events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

var _ cardledger.Publisher = (*NATSPublisher)(nil)

// DefaultSubjectPrefix prefixes every event subject.
const DefaultSubjectPrefix = "cardledger"

// Config holds the NATS connection settings.
type Config struct {
	URL           string
	Token         string
	SubjectPrefix string
}

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes ledger events as JSON to
// "<prefix>.<event type>", e.g. "cardledger.card.consumed".
type NATSPublisher struct {
	conn   natsConn
	closer func()
	prefix string
}

// Connect dials the NATS server described by cfg.
func Connect(cfg Config) (*NATSPublisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.Name("cardledger"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("events: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("events: nats reconnected to %s", c.ConnectedUrl())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: connect nats %s: %w", url, err)
	}
	return newPublisher(conn, conn.Close, cfg.SubjectPrefix), nil
}

func newPublisher(conn natsConn, closer func(), prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, closer: closer, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType cardledger.EventType) string {
	return p.prefix + "." + string(eventType)
}

// Publish sends ev. The context is accepted for interface compatibility;
// core NATS publishes are buffered and never block on the server.
func (p *NATSPublisher) Publish(_ context.Context, ev cardledger.Event) error {
	if p == nil || p.conn == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", ev.Type, err)
	}
	if errPublish := p.conn.Publish(p.Subject(ev.Type), payload); errPublish != nil {
		return fmt.Errorf("events: publish %s: %w", ev.Type, errPublish)
	}
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p != nil && p.closer != nil {
		p.closer()
	}
}
