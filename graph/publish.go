// Package graph publishes unit reference entities to the knowledge graph.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/nats-io/nats.go"

	"github.com/c360studio/semunit/processor/tags"
)

// Subjects for graph ingestion.
const (
	GraphIngestSubject  = "graph.ingest.entity"
	GraphRetractSubject = "graph.retract.entity"
)

// EntityIngestMessage is the message format for graph ingestion.
// Matches the format used by other semstreams components.
type EntityIngestMessage struct {
	ID        string           `json:"id"`
	Triples   []message.Triple `json:"triples"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// EntityRetractMessage asks the graph to drop an entity.
type EntityRetractMessage struct {
	ID        string    `json:"id"`
	RetractAt time.Time `json:"retracted_at"`
}

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends one entity per unit file.
type Publisher struct {
	conn    Conn
	org     string
	project string
	logger  *slog.Logger
}

// NewPublisher creates a publisher. A nil conn makes publishing a no-op.
func NewPublisher(conn Conn, org, project string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, org: org, project: project, logger: logger}
}

// Connect dials a NATS server.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("semunit"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Publish sends the file entity with all its dependency triples.
func (p *Publisher) Publish(ctx context.Context, result *tags.ParseResult) error {
	if p.conn == nil {
		return nil // Skip publishing if no NATS connection (graceful degradation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	updated := result.IndexedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	msg := EntityIngestMessage{
		ID:        tags.EntityID(p.org, p.project, result.Path),
		Triples:   result.Triples(p.org, p.project),
		UpdatedAt: updated,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	if err := p.conn.Publish(GraphIngestSubject, data); err != nil {
		return fmt.Errorf("publish entity %s: %w", msg.ID, err)
	}

	p.logger.Debug("Published unit entity",
		"id", msg.ID,
		"triples", len(msg.Triples))
	return nil
}

// Retract announces that the file entity for path is gone.
func (p *Publisher) Retract(ctx context.Context, path string) error {
	if p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := EntityRetractMessage{
		ID:        tags.EntityID(p.org, p.project, path),
		RetractAt: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal retraction: %w", err)
	}

	if err := p.conn.Publish(GraphRetractSubject, data); err != nil {
		return fmt.Errorf("publish retraction %s: %w", msg.ID, err)
	}
	return nil
}
