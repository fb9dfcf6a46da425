package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PubSubConfig identifies the event topic.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// PubSub publishes a JSON event per migrated item so other systems can
// react to migration progress. Publishing is best effort.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	runID  string
	logger *zap.Logger
}

type migratedEvent struct {
	EventID   string    `json:"event_id"`
	RunID     string    `json:"run_id"`
	Item      string    `json:"item"`
	Links     []string  `json:"links"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPubSub connects to the topic. Returns (nil, nil) when project or
// topic is unset so the channel stays disabled.
func NewPubSub(ctx context.Context, cfg PubSubConfig, runID string, logger *zap.Logger) (*PubSub, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSub{
		client: client,
		topic:  client.Topic(cfg.Topic),
		runID:  runID,
		logger: logger,
	}, nil
}

func (p *PubSub) ItemMigrated(ctx context.Context, name string, links []string) {
	event := migratedEvent{
		EventID:   uuid.NewString(),
		RunID:     p.runID,
		Item:      name,
		Links:     links,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal migration event", zap.Error(err))
		return
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		p.logger.Warn("publish migration event failed",
			zap.String("item", name), zap.Error(err))
		return
	}
	p.logger.Debug("migration event published",
		zap.String("event_id", event.EventID), zap.String("item", name))
}

// Close flushes and releases the topic and client.
func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
