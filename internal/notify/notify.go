// Package notify decouples price-update broadcasting from the ingestion
// transaction. Publishers are fire-and-continue: a failed publish is logged
// by the caller and never rolls back or fails a fetch.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Publisher is the broadcast primitive: one payload to one topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// PGPublisher broadcasts over Postgres NOTIFY so any listener on the same
// database receives saved price records without extra infrastructure.
type PGPublisher struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPGPublisher wires a pgx pool into a publisher.
func NewPGPublisher(pool *pgxpool.Pool, logger zerolog.Logger) *PGPublisher {
	return &PGPublisher{
		pool:   pool,
		logger: logger.With().Str("component", "pg_publisher").Logger(),
	}
}

// Publish serialises the payload as JSON and emits pg_notify(topic, payload).
func (p *PGPublisher) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}
	if _, err := p.pool.Exec(ctx, `SELECT pg_notify($1, $2);`, topic, string(body)); err != nil {
		return fmt.Errorf("pg_notify %s: %w", topic, err)
	}
	p.logger.Debug().Str("topic", topic).Int("bytes", len(body)).Msg("published")
	return nil
}

// Message is one delivered bus payload.
type Message struct {
	Topic   string
	Payload json.RawMessage
}

// Bus is an in-process publisher for tests and single-binary deployments.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan Message
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Message)}
}

// Subscribe registers a buffered channel for a topic.
func (b *Bus) Subscribe(topic string, buffer int) <-chan Message {
	ch := make(chan Message, buffer)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers to all subscribers of the topic. Slow subscribers with a
// full buffer are skipped rather than blocking ingestion.
func (b *Bus) Publish(_ context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal bus payload: %w", err)
	}

	b.mu.RLock()
	subscribers := b.subs[topic]
	b.mu.RUnlock()

	msg := Message{Topic: topic, Payload: body}
	for _, ch := range subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

var (
	_ Publisher = (*PGPublisher)(nil)
	_ Publisher = (*Bus)(nil)
)
