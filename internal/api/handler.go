package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Evaluator scores a validated transaction.
type Evaluator interface {
	Evaluate(ctx context.Context, txn domain.TransactionInput) (*domain.Evaluation, error)
}

// DecisionRecorder accepts decision records for asynchronous auditing.
type DecisionRecorder interface {
	Record(rec *domain.DecisionRecord) bool
}

// Pinger reports the health of an optional dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelInfo is the body of GET /model.
type ModelInfo struct {
	domain.ArtifactInfo
	FeatureScheme string  `json:"featureScheme"`
	Threshold     float64 `json:"threshold"`
}

// Handler holds dependencies for API handlers.
type Handler struct {
	evaluator Evaluator
	recorder  DecisionRecorder
	audit     Pinger
	model     ModelInfo
	validate  *validator.Validate
	version   string
}

// NewHandler creates a new API handler. recorder and audit may be nil.
func NewHandler(evaluator Evaluator, recorder DecisionRecorder, audit Pinger, model ModelInfo, version string) *Handler {
	return &Handler{
		evaluator: evaluator,
		recorder:  recorder,
		audit:     audit,
		model:     model,
		validate:  newValidator(),
		version:   version,
	}
}

// Predict handles POST /predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)

	txn, err := decodeTransaction(w, r, h.validate)
	if err != nil {
		slog.Debug("rejected transaction", "request_id", requestID, "error", err)
		h.writeError(w, err)
		return
	}

	eval, err := h.evaluator.Evaluate(ctx, txn)
	if err != nil {
		slog.Error("prediction failed", "request_id", requestID, "error", err)
		h.writeError(w, err)
		return
	}

	if h.recorder != nil {
		rec := &domain.DecisionRecord{
			ID:               uuid.New().String(),
			RequestID:        requestID,
			CreatedAt:        time.Now().UTC(),
			Input:            txn,
			Features:         eval.Features,
			RawScore:         eval.RawScore,
			FraudProbability: eval.Result.FraudProbability,
			Decision:         eval.Result.Decision,
			Reasoning:        eval.Result.Reasoning,
		}
		if !h.recorder.Record(rec) {
			slog.Warn("decision record dropped", "request_id", requestID)
		}
	}

	writeJSON(w, http.StatusOK, eval.Result)
}

// Health returns the health status of the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check audit sink health
	if h.audit != nil {
		if err := h.audit.Ping(r.Context()); err != nil {
			slog.Warn("audit sink unhealthy", "error", err)
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic. The server
// only starts listening after artifacts are loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Model describes the loaded artifacts and decision threshold.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.model)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
