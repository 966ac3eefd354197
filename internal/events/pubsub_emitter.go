package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const publishTimeout = 10 * time.Second

// PubSubEmitter publishes events to a Google Cloud Pub/Sub topic.
type PubSubEmitter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubEmitter connects to Pub/Sub. A non-empty endpoint targets an
// emulator without credentials.
func NewPubSubEmitter(ctx context.Context, projectID, topicID, endpoint string) (*PubSubEmitter, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubEmitter{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

func (e *PubSubEmitter) Emit(ctx context.Context, event domain.AuditEvent) {
	b, err := json.Marshal(event)
	if err != nil {
		slog.Error("pubsub marshal failed", "audit_id", event.AuditID, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	res := e.topic.Publish(pubCtx, &pubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"level":  string(event.Level),
			"region": event.Region,
			"source": event.Source,
		},
	})

	go func() {
		defer cancel()
		if _, err := res.Get(pubCtx); err != nil {
			slog.Error("pubsub publish failed", "audit_id", event.AuditID, "error", err)
			return
		}
		slog.Debug("audit event published to pubsub", "audit_id", event.AuditID)
	}()
}

// Close flushes pending publishes and closes the client.
func (e *PubSubEmitter) Close() error {
	e.topic.Stop()
	return e.client.Close()
}
