// Package notify publishes export run summaries to NATS.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
)

const publishTimeout = 5 * time.Second

// CorpusSummary lists the output changes of one corpus.
type CorpusSummary struct {
	Space    string   `json:"space"`
	Dir      string   `json:"dir"`
	Added    []string `json:"added,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Failed   int      `json:"failed,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Summary is the message published at the end of every run.
type Summary struct {
	RunID      string          `json:"run_id"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Commit     string          `json:"commit,omitempty"`
	Corpora    []CorpusSummary `json:"corpora"`
}

// Changes returns the total number of changed artifacts.
func (s *Summary) Changes() int {
	n := 0
	for _, c := range s.Corpora {
		n += len(c.Added) + len(c.Modified) + len(c.Removed)
	}
	return n
}

// Publisher delivers run summaries.
type Publisher interface {
	Publish(ctx context.Context, s *Summary) error
	Close() error
}

// Noop discards summaries.
type Noop struct{}

func (Noop) Publish(context.Context, *Summary) error { return nil }
func (Noop) Close() error                            { return nil }

// conn is the subset of *nats.Conn the client uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Client publishes summaries on a NATS subject.
type Client struct {
	conn    conn
	subject string
}

// New connects to the configured server. Without a server URL it returns a
// Noop publisher.
func New(cfg config.NotifyConfig) (Publisher, error) {
	if cfg.NATSURL == "" {
		return Noop{}, nil
	}
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("wikiexport"),
		nats.Timeout(publishTimeout),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNotify, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).Retryable().Build()
	}
	slog.Info("NATS publisher connected", logfields.URL(cfg.NATSURL), slog.String("subject", cfg.Subject))
	return newClient(nc, cfg.Subject), nil
}

func newClient(c conn, subject string) *Client {
	return &Client{conn: c, subject: subject}
}

// Publish sends s and waits for the server to acknowledge the flush.
func (c *Client) Publish(ctx context.Context, s *Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to marshal run summary").
			WithContext("run_id", s.RunID).Build()
	}
	if err := c.conn.Publish(c.subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to publish run summary").
			WithContext("run_id", s.RunID).WithContext("subject", c.subject).Build()
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to flush run summary").
			WithContext("run_id", s.RunID).Retryable().Build()
	}
	slog.Debug("Published run summary",
		logfields.RunID(s.RunID),
		slog.String("subject", c.subject),
		logfields.Count(s.Changes()))
	return nil
}

// Close closes the NATS connection.
func (c *Client) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}
