// Package events ships document lifecycle events to Redis. A Publisher is an
// odm.Observer: it publishes every event on a pub/sub channel and keeps the
// most recent ones in a capped list for late readers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gogotex/docsync/internal/odm"
	"github.com/gogotex/docsync/pkg/logger"
	"github.com/gogotex/docsync/pkg/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is the wire form of an odm.Event.
type Message struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Model      string      `json:"model"`
	Collection string      `json:"collection"`
	DocumentID interface{} `json:"documentId"`
	At         time.Time   `json:"at"`
}

// Publisher implements odm.Observer on top of a Redis client.
type Publisher struct {
	client  *redis.Client
	channel string
	keep    int64
	log     logger.Logger
}

// DefaultKeep is how many events the recent list holds when NewPublisher is
// given keep <= 0.
const DefaultKeep = 100

// NewPublisher publishes to channel. The recent list lives under
// channel + ":recent".
func NewPublisher(client *redis.Client, channel string, keep int64) *Publisher {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Publisher{client: client, channel: channel, keep: keep, log: logger.Named("events")}
}

func (p *Publisher) recentKey() string { return p.channel + ":recent" }

// Observe publishes ev. Errors are counted and returned; the odm layer only
// logs them.
func (p *Publisher) Observe(ctx context.Context, ev odm.Event) error {
	msg := Message{
		ID:         uuid.NewString(),
		Kind:       string(ev.Kind),
		Model:      ev.Model,
		Collection: ev.Collection,
		DocumentID: ev.ID,
		At:         ev.At,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("events: encode %s: %w", msg.Kind, err)
	}

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, b)
	pipe.LPush(ctx, p.recentKey(), b)
	pipe.LTrim(ctx, p.recentKey(), 0, p.keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.EventsPublished.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("events: publish %s: %w", msg.Kind, err)
	}
	metrics.EventsPublished.WithLabelValues(metrics.OutcomeOK).Inc()
	p.log.Debugf("published %s %s/%v", msg.Kind, msg.Collection, msg.DocumentID)
	return nil
}

// Recent returns up to n of the latest events, newest first.
func (p *Publisher) Recent(ctx context.Context, n int64) ([]Message, error) {
	if n <= 0 || n > p.keep {
		n = p.keep
	}
	items, err := p.client.LRange(ctx, p.recentKey(), 0, n-1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Message, 0, len(items))
	for _, it := range items {
		var m Message
		if err := json.Unmarshal([]byte(it), &m); err != nil {
			p.log.Warnf("skipping undecodable event: %v", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Subscribe decodes messages from the channel until ctx is done. The returned
// channel is closed when the subscription ends.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan Message, error) {
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var m Message
				if err := json.Unmarshal([]byte(raw.Payload), &m); err != nil {
					p.log.Warnf("skipping undecodable event: %v", err)
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
