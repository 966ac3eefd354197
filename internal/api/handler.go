package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/artifact"
	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

const (
	// SourceHTTP marks audit records written by POST /predict.
	SourceHTTP = "http"

	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// Handler contains HTTP handlers for the API.
type Handler struct {
	holder   *pipeline.Holder
	recorder *audit.Recorder
	ledger   domain.AuditLedger
	bus      domain.EventBus
	worker   *worker.Worker
	engine   *rules.Engine
	version  string
}

// NewHandler creates a new Handler.
func NewHandler(deps Dependencies, version string) *Handler {
	return &Handler{
		holder:   deps.Holder,
		recorder: deps.Recorder,
		ledger:   deps.Ledger,
		bus:      deps.Bus,
		worker:   deps.Worker,
		engine:   deps.Engine,
		version:  version,
	}
}

// PredictResponse is the response for POST /predict.
type PredictResponse struct {
	AuditID      string           `json:"auditId"`
	Score        domain.Score     `json:"score"`
	Level        domain.RiskLevel `json:"level"`
	Reasons      []string         `json:"reasons"`
	IntegrityTag string           `json:"integrityTag"`
	TagAlgorithm string           `json:"tagAlgorithm"`
	Metadata     struct {
		TraceID      string `json:"traceId"`
		TotalMs      int64  `json:"totalMs"`
		Version      string `json:"version"`
		ModelVariant string `json:"modelVariant"`
	} `json:"metadata"`
}

// Predict handles POST /predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	scorer, err := h.holder.Load()
	if err != nil {
		writeError(w, err)
		return
	}

	var req domain.ClaimRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	claim, err := req.ToClaim(scorer.RequiresCoverage())
	if err != nil {
		writeError(w, err)
		return
	}

	assessment, err := scorer.Score(ctx, claim)
	if err != nil {
		slog.Error("scoring failed", "region", claim.Region, "error", err)
		writeError(w, err)
		return
	}

	rec, err := h.recorder.Record(ctx, audit.Entry{
		Claim:      claim,
		Assessment: assessment,
		AuditorID:  GetAuditorID(ctx),
		Source:     SourceHTTP,
	})
	if err != nil {
		slog.Error("failed to record audit entry", "error", err)
		writeError(w, err)
		return
	}

	resp := PredictResponse{
		AuditID:      rec.ID,
		Score:        assessment.Score,
		Level:        assessment.Level,
		Reasons:      assessment.Reasons,
		IntegrityTag: rec.IntegrityTag,
		TagAlgorithm: rec.TagAlgorithm,
	}
	if resp.Reasons == nil {
		resp.Reasons = []string{}
	}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version
	resp.Metadata.ModelVariant = scorer.Model().Meta.Variant

	writeJSON(w, http.StatusOK, resp)
}

// SubmitClaim handles POST /claims by queueing the claim on the event bus.
// Claims are only accepted while a worker is subscribed to score them.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil || h.worker == nil || !h.worker.Running() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "async scoring not enabled",
		})
		return
	}

	scorer, err := h.holder.Load()
	if err != nil {
		writeError(w, err)
		return
	}

	var msg worker.ClaimMessage
	if err := decodeBody(w, r, &msg.ClaimRequest); err != nil {
		writeError(w, err)
		return
	}
	if _, err := msg.ToClaim(scorer.RequiresCoverage()); err != nil {
		writeError(w, err)
		return
	}
	msg.AuditorID = GetAuditorID(r.Context())

	payload, err := json.Marshal(msg)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.bus.Publish(r.Context(), domain.TopicClaimSubmitted, payload); err != nil {
		slog.Error("failed to publish claim", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue claim",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
		"topic":  domain.TopicClaimSubmitted,
	})
}

// ListAudits handles GET /audits?limit=&offset= requests, newest first.
func (h *Handler) ListAudits(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 || limit > maxListLimit {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "limit must be between 1 and " + strconv.Itoa(maxListLimit),
		})
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "offset must be a non-negative integer",
		})
		return
	}

	records, err := h.ledger.List(r.Context(), limit, offset)
	if err != nil {
		slog.Error("failed to list audit records", "error", err)
		writeError(w, err)
		return
	}
	total, err := h.ledger.Count(r.Context())
	if err != nil {
		slog.Error("failed to count audit records", "error", err)
		writeError(w, err)
		return
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetAudit handles GET /audits/{id} requests.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// VerifyAudit handles GET /audits/{id}/verify by recomputing the integrity tag.
func (h *Handler) VerifyAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	result := audit.Verify(h.recorder.Signer(), rec, h.recorder.IncludeDay())
	if !result.Valid {
		slog.Warn("audit record failed verification",
			"audit_id", rec.ID,
			"algorithm", rec.TagAlgorithm,
		)
	}

	writeJSON(w, http.StatusOK, result)
}

// ModelResponse describes the loaded model.
type ModelResponse struct {
	Metadata          pipeline.Metadata  `json:"metadata"`
	SchemaVersion     int                `json:"schemaVersion"`
	Width             int                `json:"width"`
	Fingerprint       string             `json:"fingerprint"`
	FeatureNames      []string           `json:"featureNames"`
	FeatureImportance map[string]float64 `json:"featureImportance"`
	Trees             int                `json:"trees"`
	Params            string             `json:"params"`
	Version           string             `json:"version"`
}

// Model handles GET /model requests.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	scorer, err := h.holder.Load()
	if err != nil {
		writeError(w, err)
		return
	}

	m := scorer.Model()
	names := m.Preprocessor.FeatureNames()
	importance := make(map[string]float64, len(names))
	for i, name := range names {
		if i < len(m.Classifier.Importance) {
			importance[name] = m.Classifier.Importance[i]
		}
	}

	writeJSON(w, http.StatusOK, ModelResponse{
		Metadata:          m.Meta,
		SchemaVersion:     artifact.SchemaVersion,
		Width:             m.Preprocessor.Width(),
		Fingerprint:       m.Preprocessor.Fingerprint(),
		FeatureNames:      names,
		FeatureImportance: importance,
		Trees:             len(m.Classifier.Trees),
		Params:            m.Classifier.Params.String(),
		Version:           h.version,
	})
}

// ListRules handles GET /rules requests.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := []domain.ReasonRule{}
	if h.engine != nil {
		loaded = h.engine.GetLoadedRules()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loaded,
		"count": len(loaded),
	})
}

// Health handles GET /health requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check ledger health
	if h.ledger != nil {
		if err := h.ledger.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check event bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready handles GET /ready requests. It returns 503 until a model is loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.holder.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "invalid JSON request body"}
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var validationErr *domain.ValidationError
	var inferenceErr *domain.InferenceError
	var storageErr *domain.StorageError

	switch {
	case errors.As(err, &validationErr), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.As(err, &storageErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &inferenceErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]string{"error": err.Error()}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		body["field"] = validationErr.Field
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
