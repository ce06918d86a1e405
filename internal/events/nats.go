package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeready/internal/domain"
	"github.com/vadiminshakov/tradeready/pkg/retrier"
)

// DefaultTransitionSubject is the base subject transitions are published
// under; the changed field name is appended as the last token.
const DefaultTransitionSubject = "tradeready.transitions"

// Transition field names, used both as JSON values and subject suffixes.
const (
	FieldEngineStatus       = "engine_status"
	FieldCanEnable          = "can_enable"
	FieldAPIConnected       = "api_connected"
	FieldProvidersConnected = "providers_connected"
)

// Transition records one watched field changing value between two
// consecutive snapshots.
type Transition struct {
	At         time.Time `json:"at"`
	Field      string    `json:"field"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Generation uint64    `json:"generation"`
}

// DiffTransitions compares two consecutive snapshots and returns one
// transition per watched field that changed. Field order is stable.
func DiffTransitions(prev, next domain.StatusSnapshot) []Transition {
	var out []Transition

	add := func(field, from, to string) {
		if from == to {
			return
		}
		out = append(out, Transition{
			At:         next.RefreshedAt,
			Field:      field,
			From:       from,
			To:         to,
			Generation: next.Generation,
		})
	}

	add(FieldEngineStatus, string(prev.Engine), string(next.Engine))
	add(FieldCanEnable, strconv.FormatBool(prev.Readiness.CanEnable), strconv.FormatBool(next.Readiness.CanEnable))
	add(FieldAPIConnected, strconv.FormatBool(prev.Readiness.IsAPIConnected), strconv.FormatBool(next.Readiness.IsAPIConnected))
	add(FieldProvidersConnected, strconv.FormatBool(prev.Readiness.AllProvidersConnected), strconv.FormatBool(next.Readiness.AllProvidersConnected))

	return out
}

// transitionConn is the slice of the NATS client the publisher needs.
type transitionConn interface {
	Publish(subject string, data []byte) error
}

// TransitionPublisher watches a snapshot stream and publishes a compact
// event whenever a readiness or engine field flips. The first snapshot only
// seeds the comparison baseline, nothing is published for it.
type TransitionPublisher struct {
	logger  *zap.Logger
	conn    transitionConn
	subject string
	prev    *domain.StatusSnapshot
}

// NewTransitionPublisher creates a publisher over an established connection.
func NewTransitionPublisher(logger *zap.Logger, conn transitionConn, subject string) *TransitionPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if subject == "" {
		subject = DefaultTransitionSubject
	}
	return &TransitionPublisher{
		logger:  logger,
		conn:    conn,
		subject: subject,
	}
}

// Run consumes snapshots until the channel closes or the context is done.
func (p *TransitionPublisher) Run(ctx context.Context, snapshots <-chan domain.StatusSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			p.handle(snap)
		}
	}
}

func (p *TransitionPublisher) handle(snap domain.StatusSnapshot) {
	if p.prev == nil {
		p.prev = &snap
		return
	}

	transitions := DiffTransitions(*p.prev, snap)
	p.prev = &snap

	for _, tr := range transitions {
		data, err := json.Marshal(tr)
		if err != nil {
			p.logger.Warn("marshal transition", zap.String("field", tr.Field), zap.Error(err))
			continue
		}

		subj := p.subject + "." + tr.Field
		if err := p.conn.Publish(subj, data); err != nil {
			p.logger.Warn("publish transition", zap.String("subject", subj), zap.Error(err))
			continue
		}

		p.logger.Debug("published transition",
			zap.String("subject", subj),
			zap.String("from", tr.From),
			zap.String("to", tr.To),
			zap.Uint64("generation", tr.Generation))
	}
}

// DialNATS connects to the server at url, retrying the initial dial with
// backoff so a briefly unavailable broker does not abort startup. Reconnects
// after the first success are handled by the client itself.
func DialNATS(ctx context.Context, logger *zap.Logger, url string) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name("tradeready"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	r := retrier.New(
		retrier.WithInitialInterval(500*time.Millisecond),
		retrier.WithMaxInterval(5*time.Second),
	)

	conn, err := retrier.DoWithData(r, ctx, func(_ context.Context) (*nats.Conn, error) {
		return nats.Connect(url, opts...)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to nats at %s", url)
	}

	logger.Info("nats connected", zap.String("url", conn.ConnectedUrl()))

	return conn, nil
}
