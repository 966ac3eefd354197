// Package worker scores claims submitted over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// SourceBus marks audit records written by the worker.
const SourceBus = "bus"

// Worker processes claims asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	holder   *pipeline.Holder
	recorder *audit.Recorder

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// ClaimMessage is the payload published on the claim-submitted topic.
type ClaimMessage struct {
	domain.ClaimRequest
	AuditorID string `json:"auditor_id,omitempty"`
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, holder *pipeline.Holder, recorder *audit.Recorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		holder:   holder,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the claim-submitted topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicClaimSubmitted, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started",
		"topic", domain.TopicClaimSubmitted,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	if _, err := w.Process(ctx, msg.Payload); err != nil {
		w.failed.Add(1)
		slog.Error("failed to process claim",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	w.processed.Add(1)
	return nil
}

// Process scores one claim payload and records its audit entry.
func (w *Worker) Process(ctx context.Context, payload []byte) (*domain.AuditRecord, error) {
	start := time.Now()

	var claimMsg ClaimMessage
	if err := json.Unmarshal(payload, &claimMsg); err != nil {
		return nil, &domain.ValidationError{Field: "payload", Reason: err.Error()}
	}

	scorer, err := w.holder.Load()
	if err != nil {
		return nil, err
	}

	claim, err := claimMsg.ToClaim(scorer.RequiresCoverage())
	if err != nil {
		return nil, err
	}

	assessment, err := scorer.Score(ctx, claim)
	if err != nil {
		return nil, err
	}

	rec, err := w.recorder.Record(ctx, audit.Entry{
		Claim:      claim,
		Assessment: assessment,
		AuditorID:  claimMsg.AuditorID,
		Source:     SourceBus,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("claim processed",
		"audit_id", rec.ID,
		"region", claim.Region,
		"score", assessment.Score.String(),
		"level", assessment.Level,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// Running reports whether the worker holds a live subscription.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subscriptions) > 0
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return errors.Join(errs...)
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
