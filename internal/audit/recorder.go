package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kestrel-audit")

// Entry is everything the recorder needs to write one record.
type Entry struct {
	Claim      domain.ClaimRecord
	Assessment domain.Assessment
	AuditorID  string
	Source     string
}

// Recorder tags assessments and appends them to the ledger.
// Safe for concurrent use; the ledger serializes writes.
type Recorder struct {
	ledger      domain.AuditLedger
	signer      Signer
	emitter     events.Emitter
	includeDay  bool
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

// NewRecorder creates a recorder. emitter may be nil.
func NewRecorder(ledger domain.AuditLedger, signer Signer, emitter events.Emitter, cfg domain.AuditConfig) *Recorder {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Recorder{
		ledger:      ledger,
		signer:      signer,
		emitter:     emitter,
		includeDay:  cfg.IncludeDay,
		maxAttempts: attempts,
		backoff:     time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
		now:         time.Now,
	}
}

// Signer returns the signer used for new records.
func (r *Recorder) Signer() Signer {
	return r.signer
}

// IncludeDay reports whether the tagged message carries the UTC day.
func (r *Recorder) IncludeDay() bool {
	return r.includeDay
}

// Record builds, tags and appends an audit record. A ledger failure after all
// attempts is returned as *domain.StorageError; the event is emitted only
// after a successful append.
func (r *Recorder) Record(ctx context.Context, e Entry) (*domain.AuditRecord, error) {
	ctx, span := tracer.Start(ctx, "audit.record",
		trace.WithAttributes(
			attribute.String("claim.region", e.Claim.Region),
			attribute.String("level", string(e.Assessment.Level)),
		),
	)
	defer span.End()

	// Microsecond precision survives both ledger backends.
	ts := r.now().UTC().Truncate(time.Microsecond)
	rec := &domain.AuditRecord{
		ID:            uuid.New().String(),
		Timestamp:     ts,
		Region:        e.Claim.Region,
		ClaimAmount:   e.Claim.ClaimAmount,
		Score:         e.Assessment.Score,
		Level:         e.Assessment.Level,
		TagAlgorithm:  r.signer.Algorithm(),
		ClaimantName:  e.Claim.ClaimantName,
		ClaimantAge:   e.Claim.ClaimantAge,
		CoverageLimit: e.Claim.CoverageLimit,
		TenureMonths:  e.Claim.TenureMonths,
		AuditorID:     e.AuditorID,
	}
	rec.IntegrityTag = r.signer.Sign(Message(rec.Region, rec.ClaimAmount, rec.Score, ts, r.includeDay))

	if err := r.appendWithRetry(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger append failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("audit.id", rec.ID))

	if r.emitter != nil {
		r.emitter.Emit(ctx, domain.AuditEvent{
			AuditID:   rec.ID,
			Timestamp: ts.Format(time.RFC3339),
			Region:    rec.Region,
			Score:     rec.Score,
			Level:     rec.Level,
			Reasons:   e.Assessment.Reasons,
			AuditorID: rec.AuditorID,
			Source:    e.Source,
		})
	}

	return rec, nil
}

func (r *Recorder) appendWithRetry(ctx context.Context, rec *domain.AuditRecord) error {
	var err error
	attempt := 0
	for attempt < r.maxAttempts {
		attempt++
		err = r.ledger.Append(ctx, rec)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			break
		}

		slog.Warn("ledger append failed",
			"audit_id", rec.ID,
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"error", err,
		)

		if attempt < r.maxAttempts && r.backoff > 0 {
			select {
			case <-ctx.Done():
				return &domain.StorageError{Op: "append", Attempts: attempt, Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * r.backoff):
			}
		}
	}

	slog.Error("ledger append abandoned",
		"audit_id", rec.ID,
		"attempts", attempt,
		"error", err,
	)
	return &domain.StorageError{Op: "append", Attempts: attempt, Err: err}
}

func retryable(err error) bool {
	return !errors.Is(err, domain.ErrInvalidInput) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
