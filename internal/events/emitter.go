// Package events fans out audit events to logs, the event bus and Pub/Sub.
// Emission never fails the scoring request; errors are logged.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Emitter delivers an audit event.
type Emitter interface {
	Emit(ctx context.Context, event domain.AuditEvent)
}

// LogEmitter writes events to the structured log.
type LogEmitter struct{}

func NewLogEmitter() *LogEmitter {
	return &LogEmitter{}
}

func (e *LogEmitter) Emit(ctx context.Context, event domain.AuditEvent) {
	slog.InfoContext(ctx, "audit event",
		"audit_id", event.AuditID,
		"region", event.Region,
		"score", event.Score.String(),
		"level", event.Level,
		"reasons", len(event.Reasons),
		"source", event.Source,
	)
}

// BusEmitter publishes events on the event bus. HIGH events are also
// published on the high-risk topic.
type BusEmitter struct {
	bus domain.EventBus
}

func NewBusEmitter(bus domain.EventBus) *BusEmitter {
	return &BusEmitter{bus: bus}
}

func (e *BusEmitter) Emit(ctx context.Context, event domain.AuditEvent) {
	b, err := json.Marshal(event)
	if err != nil {
		slog.Error("event marshal failed", "audit_id", event.AuditID, "error", err)
		return
	}

	if err := e.bus.Publish(ctx, domain.TopicAuditRecorded, b); err != nil {
		slog.Error("failed to publish audit event",
			"audit_id", event.AuditID,
			"topic", domain.TopicAuditRecorded,
			"error", err,
		)
	}

	if event.Level == domain.RiskHigh {
		if err := e.bus.Publish(ctx, domain.TopicHighRisk, b); err != nil {
			slog.Error("failed to publish high risk event",
				"audit_id", event.AuditID,
				"topic", domain.TopicHighRisk,
				"error", err,
			)
		}
	}
}

// MultiEmitter forwards every event to each emitter in order.
type MultiEmitter struct {
	emitters []Emitter
}

func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (m *MultiEmitter) Emit(ctx context.Context, event domain.AuditEvent) {
	for _, e := range m.emitters {
		e.Emit(ctx, event)
	}
}

// Len returns the number of wrapped emitters.
func (m *MultiEmitter) Len() int {
	return len(m.emitters)
}
