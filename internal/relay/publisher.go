// Package relay publishes replay events to NATS so that remote boards can
// follow a replay.
package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/thyrook/pgnrelay/internal/pgn"
	"github.com/thyrook/pgnrelay/internal/schedule"
)

// Conn is the part of a NATS connection the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// HalfMove is the wire form of a revealed half-move.
type HalfMove struct {
	ID          int    `json:"id"`
	Color       string `json:"color"`
	Move        string `json:"move"`
	Clock       string `json:"clock,omitempty"`
	Elapsed     string `json:"elapsed,omitempty"`
	ScheduledAt int64  `json:"scheduledAt,omitempty"`
}

// Message is published for every replay event.
type Message struct {
	Game     int       `json:"game"`
	Status   string    `json:"status"`
	HalfMove *HalfMove `json:"halfMove,omitempty"`
}

// Publisher sends replay events to subjects of the form
// "<prefix>.<tournament>.<game>".
type Publisher struct {
	conn   Conn
	prefix string
	logger *zap.Logger
}

// Connect dials a NATS server and returns a publisher on it together with
// the connection, which the caller closes.
func Connect(url, prefix string, logger *zap.Logger) (*Publisher, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("pgnrelay"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	return NewPublisher(nc, prefix, logger), nc, nil
}

// NewPublisher creates a publisher on conn.
func NewPublisher(conn Conn, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Subject returns the subject used for a game.
func (p *Publisher) Subject(tournament string, game int) string {
	return fmt.Sprintf("%s.%s.%d", p.prefix, tournament, game)
}

// Publish sends one event.
func (p *Publisher) Publish(tournament string, game int, e schedule.Event) error {
	msg := Message{Game: game, Status: e.Kind.String()}
	if e.Kind == schedule.Update {
		msg.HalfMove = wireHalfMove(e.HalfMove)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.Subject(tournament, game)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Callbacks returns replay callbacks that publish every event of one game,
// then call next. Publish failures are logged and never stop the replay.
func (p *Publisher) Callbacks(tournament string, game int, next schedule.Callbacks) schedule.Callbacks {
	send := func(e schedule.Event) {
		if err := p.Publish(tournament, game, e); err != nil {
			p.logger.Warn("relay publish failed",
				zap.String("tournament", tournament),
				zap.Int("game", game),
				zap.Error(err))
		}
	}

	return schedule.Callbacks{
		OnUpdate: func(h pgn.HalfMove) {
			send(schedule.Event{Kind: schedule.Update, HalfMove: h})
			if next.OnUpdate != nil {
				next.OnUpdate(h)
			}
		},
		OnComplete: func() {
			send(schedule.Event{Kind: schedule.Complete})
			if next.OnComplete != nil {
				next.OnComplete()
			}
		},
		OnStopped: func() {
			send(schedule.Event{Kind: schedule.Stopped})
			if next.OnStopped != nil {
				next.OnStopped()
			}
		},
	}
}

func wireHalfMove(h pgn.HalfMove) *HalfMove {
	out := &HalfMove{
		ID:      h.ID,
		Color:   string(h.Color),
		Move:    h.Move,
		Clock:   h.Clock,
		Elapsed: h.Elapsed,
	}
	if h.Scheduled() {
		out.ScheduledAt = h.ScheduledAt.UnixMilli()
	}
	return out
}
