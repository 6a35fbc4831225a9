// Package natsbus publishes completion cues to a NATS subject.
package natsbus

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/nats-io/nats.go"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/routinetimer/internal/domain/cue"
)

// Config configures Publisher.
type Config struct {
	URL            string `mapstructure:"url" default:"nats://127.0.0.1:4222" validate:"required"`
	Subject        string `mapstructure:"subject" default:"routinetimer.cues" validate:"required"`
	Name           string `mapstructure:"name" default:"routinetimer"`
	ConnectTimeout int    `mapstructure:"connect_timeout_ms" default:"2000" validate:"gte=1"`
}

// Message is the JSON payload published for each cue.
type Message struct {
	cue.Cue
	Summary string `json:"summary"` // "step 2/5" or "complete"
}

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// ErrClosed is returned by Deliver after Close.
var ErrClosed = errors.New("publisher closed")

// Publisher is a cue sink that publishes every cue as JSON.
// The connection is established on first use and re-established by the NATS
// client after outages. Deliver may be called concurrently.
type Publisher struct {
	config Config
	dial   func(Config) (Conn, error)

	mu     sync.Mutex // guards conn and closed, held while dialing
	conn   Conn
	closed bool
}

// NewPublisher creates a NATS publisher from sink settings.
func NewPublisher(settings map[string]any) (*Publisher, error) {
	var config Config
	if err := mapstructure.WeakDecode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &Publisher{config: config, dial: dial}, nil
}

func dial(config Config) (Conn, error) {
	conn, err := nats.Connect(config.URL,
		nats.Name(config.Name),
		nats.Timeout(time.Duration(config.ConnectTimeout)*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zlog.Warn().Msgf("natsbus: disconnected: err=%v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			zlog.Info().Msgf("natsbus: reconnected: url=%s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to NATS at %s", config.URL)
	}
	return conn, nil
}

// Name implements cue.Sink.
func (p *Publisher) Name() string { return "nats" }

// connection returns the shared connection, dialing it on first use. A
// failed dial is retried on the next cue.
func (p *Publisher) connection() (Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.conn == nil {
		conn, err := p.dial(p.config)
		if err != nil {
			return nil, err
		}
		p.conn = conn
		zlog.Info().Msgf("natsbus: connected: url=%s subject=%s", p.config.URL, p.config.Subject)
	}
	return p.conn, nil
}

// Deliver implements cue.Sink.
func (p *Publisher) Deliver(ctx context.Context, c cue.Cue) error {
	conn, err := p.connection()
	if err != nil {
		return err
	}

	data, err := json.Marshal(NewMessage(c))
	if err != nil {
		return errors.Wrap(err, "failed to marshal cue")
	}
	if err := conn.Publish(p.config.Subject, data); err != nil {
		return errors.Wrap(err, "failed to publish cue")
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return errors.Wrap(err, "failed to flush cue")
	}
	zlog.Debug().Msgf("natsbus: cue published: subject=%s kind=%s", p.config.Subject, c.Kind)
	return nil
}

// Close closes the connection, if open. Later deliveries fail with ErrClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}

// NewMessage builds the published payload for c.
func NewMessage(c cue.Cue) Message {
	m := Message{Cue: c, Summary: "complete"}
	if c.Kind == cue.KindStep {
		m.Summary = "step " + strconv.Itoa(c.Index+1) + "/" + strconv.Itoa(c.Count)
	}
	return m
}
