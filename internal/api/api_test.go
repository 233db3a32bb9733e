package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/opensource-finance/fraudscore/internal/artifact"
	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/engine"
	"github.com/opensource-finance/fraudscore/internal/features"
	"github.com/opensource-finance/fraudscore/internal/predlog"
)

// countingEvaluator wraps an Evaluator and counts calls.
type countingEvaluator struct {
	next  Evaluator
	err   error
	calls int
}

func (c *countingEvaluator) Evaluate(ctx context.Context, txn domain.TransactionInput) (*domain.Evaluation, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.next.Evaluate(ctx, txn)
}

type captureRecorder struct {
	mu      sync.Mutex
	records []*domain.DecisionRecord
}

func (c *captureRecorder) Record(rec *domain.DecisionRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return true
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

type testServer struct {
	server    *Server
	evaluator *countingEvaluator
	recorder  *captureRecorder
	logs      *observer.ObservedLogs
}

// createTestServer wires the real engine and the reference forest.
func createTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := artifact.Load("../../models/isolation_forest.json", "", features.Derived)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	eng, err := engine.New(store, features.Derived, domain.EngineConfig{Threshold: domain.DefaultThreshold}, predlog.New(core))
	require.NoError(t, err)

	evaluator := &countingEvaluator{next: eng}
	recorder := &captureRecorder{}
	model := ModelInfo{ArtifactInfo: store.Info(), FeatureScheme: features.Derived.Name, Threshold: eng.Threshold()}

	cfg := domain.ServerConfig{Host: "localhost", Port: 8000, ReadTimeout: 30, WriteTimeout: 30}
	handler := NewHandler(evaluator, recorder, nil, model, "test-v1")

	return &testServer{
		server:    NewServer(cfg, handler),
		evaluator: evaluator,
		recorder:  recorder,
		logs:      logs,
	}
}

func (ts *testServer) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rr, req)
	return rr
}

type detailBody struct {
	Detail []errorDetail `json:"detail"`
}

func TestPredictEndpoint(t *testing.T) {
	t.Run("FraudScenario", func(t *testing.T) {
		ts := createTestServer(t)
		rr := ts.post(t, `{"amount":150000,"hour":3,"day_of_week":6,"month":1,"distance_from_home":200}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Len(t, resp, 3, "only the three public fields are returned")
		assert.Equal(t, "fraud", resp["decision"])
		assert.Equal(t, 0.607, resp["fraud_probability"])
		assert.Equal(t,
			"high transaction amount, large distance from home, unusual transaction time, weekend transaction",
			resp["reasoning"])
	})

	t.Run("LegitimateScenario", func(t *testing.T) {
		ts := createTestServer(t)
		rr := ts.post(t, `{"amount":50,"hour":14,"day_of_week":2,"month":5,"distance_from_home":2}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp domain.ScoredDecision
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, domain.DecisionLegitimate, resp.Decision)
		assert.Equal(t, "normal transaction behavior", resp.Reasoning)
		assert.Less(t, resp.FraudProbability, domain.DefaultThreshold)
	})

	t.Run("ZeroValuesAreAccepted", func(t *testing.T) {
		ts := createTestServer(t)
		rr := ts.post(t, `{"amount":0.01,"hour":0,"day_of_week":0,"month":1,"distance_from_home":0}`)
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	})

	t.Run("UnknownFieldsAreIgnored", func(t *testing.T) {
		ts := createTestServer(t)
		rr := ts.post(t, `{"amount":50,"hour":14,"day_of_week":2,"month":5,"distance_from_home":2,"merchant":"x"}`)
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	})

	t.Run("RecordsDecision", func(t *testing.T) {
		ts := createTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/predict",
			strings.NewReader(`{"amount":50,"hour":14,"day_of_week":2,"month":5,"distance_from_home":2}`))
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		ts.server.Router().ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		require.Len(t, ts.recorder.records, 1)
		rec := ts.recorder.records[0]
		assert.Equal(t, "req-123", rec.RequestID)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, 5, rec.Input.Month)
		assert.Len(t, rec.Features, 5)
		assert.Equal(t, domain.DecisionLegitimate, rec.Decision)
		assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
	})
}

func TestPredictValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		loc   []string
		typ   string
		count int
	}{
		{"MissingAmount", `{"hour":3,"day_of_week":6,"month":1,"distance_from_home":200}`, []string{"body", "amount"}, "missing", 1},
		{"NegativeAmount", `{"amount":-5,"hour":3,"day_of_week":6,"month":1,"distance_from_home":200}`, []string{"body", "amount"}, "greater_than", 1},
		{"ZeroAmount", `{"amount":0,"hour":3,"day_of_week":6,"month":1,"distance_from_home":200}`, []string{"body", "amount"}, "greater_than", 1},
		{"HourTooLarge", `{"amount":5,"hour":24,"day_of_week":6,"month":1,"distance_from_home":2}`, []string{"body", "hour"}, "less_than_equal", 1},
		{"DayOfWeekNegative", `{"amount":5,"hour":2,"day_of_week":-1,"month":1,"distance_from_home":2}`, []string{"body", "day_of_week"}, "greater_than_equal", 1},
		{"MonthZero", `{"amount":5,"hour":2,"day_of_week":1,"month":0,"distance_from_home":2}`, []string{"body", "month"}, "greater_than_equal", 1},
		{"MonthThirteen", `{"amount":5,"hour":2,"day_of_week":1,"month":13,"distance_from_home":2}`, []string{"body", "month"}, "less_than_equal", 1},
		{"NegativeDistance", `{"amount":5,"hour":2,"day_of_week":1,"month":2,"distance_from_home":-0.5}`, []string{"body", "distance_from_home"}, "greater_than_equal", 1},
		{"FractionalHour", `{"amount":5,"hour":2.5,"day_of_week":1,"month":2,"distance_from_home":1}`, []string{"body", "hour"}, "int_parsing", 1},
		{"StringAmount", `{"amount":"lots","hour":2,"day_of_week":1,"month":2,"distance_from_home":1}`, []string{"body", "amount"}, "float_parsing", 1},
		{"MalformedJSON", `{"amount":5,`, []string{"body"}, "json_invalid", 1},
		{"EmptyBody", ``, []string{"body"}, "json_invalid", 1},
		{"TrailingData", `{"amount":5,"hour":2,"day_of_week":1,"month":2,"distance_from_home":1} {}`, []string{"body"}, "json_invalid", 1},
		{"NotAnObject", `[1,2,3]`, []string{"body"}, "model_attributes_type", 1},
		{"EmptyObject", `{}`, []string{"body", "amount"}, "missing", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := createTestServer(t)
			rr := ts.post(t, tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

			var body detailBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Len(t, body.Detail, tt.count)
			assert.Equal(t, tt.loc, body.Detail[0].Loc)
			assert.Equal(t, tt.typ, body.Detail[0].Type)
			assert.NotEmpty(t, body.Detail[0].Msg)

			assert.Zero(t, ts.evaluator.calls, "engine must not be invoked")
			assert.Zero(t, ts.logs.Len(), "no prediction line may be written")
			assert.Empty(t, ts.recorder.records)
		})
	}

	t.Run("MessagesMatchConstraint", func(t *testing.T) {
		ts := createTestServer(t)
		rr := ts.post(t, `{"amount":-1,"hour":30,"day_of_week":2,"month":5,"distance_from_home":2}`)
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

		var body detailBody
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Len(t, body.Detail, 2)
		assert.Equal(t, "Input should be greater than 0", body.Detail[0].Msg)
		assert.Equal(t, "Input should be less than or equal to 23", body.Detail[1].Msg)
	})

	t.Run("BodyTooLarge", func(t *testing.T) {
		ts := createTestServer(t)
		padding := strings.Repeat(" ", maxBodyBytes+1)
		rr := ts.post(t, `{"amount":5,`+padding+`"hour":1}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		assert.Zero(t, ts.evaluator.calls)
	})
}

func TestPredictInternalFailure(t *testing.T) {
	ts := createTestServer(t)
	ts.evaluator.err = &domain.ScoringError{Stage: domain.StageScore, Err: errors.New("tree 3: node 17 out of range")}

	rr := ts.post(t, `{"amount":50,"hour":14,"day_of_week":2,"month":5,"distance_from_home":2}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"detail":"Prediction failed"}`, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "tree 3")
	assert.Empty(t, ts.recorder.records)
}

func TestErrorResponse(t *testing.T) {
	t.Run("Validation", func(t *testing.T) {
		status, body := errorResponse(&domain.ValidationError{Fields: []domain.FieldError{
			{Field: "amount", Message: "Field required", Type: "missing"},
		}})
		assert.Equal(t, http.StatusUnprocessableEntity, status)

		raw, err := json.Marshal(body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"detail":[{"loc":["body","amount"],"msg":"Field required","type":"missing"}]}`, string(raw))
	})

	t.Run("WrappedValidation", func(t *testing.T) {
		err := fmt.Errorf("predict: %w", &domain.ValidationError{})
		status, _ := errorResponse(err)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
	})

	t.Run("Scoring", func(t *testing.T) {
		status, body := errorResponse(&domain.ScoringError{Stage: domain.StageNormalize, Err: errors.New("secret")})
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, map[string]string{"detail": "Prediction failed"}, body)
	})

	t.Run("Unknown", func(t *testing.T) {
		status, body := errorResponse(errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, map[string]string{"detail": "Prediction failed"}, body)
	})

	t.Run("TooLarge", func(t *testing.T) {
		status, _ := errorResponse(errBodyTooLarge)
		assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	})
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		ts := createTestServer(t)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		ts.server.Router().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp["status"])
		assert.Equal(t, "test-v1", resp["version"])
	})

	t.Run("DegradedAuditSink", func(t *testing.T) {
		handler := NewHandler(&countingEvaluator{}, nil, failingPinger{}, ModelInfo{}, "test-v1")
		srv := NewServer(domain.ServerConfig{}, handler)

		rr := httptest.NewRecorder()
		srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp["status"])
	})
}

func TestReadyEndpoint(t *testing.T) {
	ts := createTestServer(t)
	rr := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ready":"true"}`, rr.Body.String())
}

func TestModelEndpoint(t *testing.T) {
	ts := createTestServer(t)
	rr := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/model", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "isolation_forest", resp["modelKind"])
	assert.Equal(t, "derived", resp["featureScheme"])
	assert.Equal(t, 0.6, resp["threshold"])
	assert.Len(t, resp["features"], 5)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := createTestServer(t)
	ts.post(t, `{"amount":50,"hour":14,"day_of_week":2,"month":5,"distance_from_home":2}`)

	rr := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "fraudscore_decisions_total")
	assert.Contains(t, rr.Body.String(), `path="/predict"`)
}

func TestMiddleware(t *testing.T) {
	t.Run("GeneratesRequestID", func(t *testing.T) {
		ts := createTestServer(t)
		rr := httptest.NewRecorder()
		ts.server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
		assert.NotEmpty(t, rr.Header().Get(TraceIDHeader))
	})

	t.Run("Preflight", func(t *testing.T) {
		ts := createTestServer(t)
		req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
		req.Header.Set("Origin", "https://dashboard.example")
		rr := httptest.NewRecorder()
		ts.server.Router().ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "https://dashboard.example", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("RecoverReturnsGeneric500", func(t *testing.T) {
		h := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("nil map write")
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "nil map")
	})

	t.Run("CompressesWhenAsked", func(t *testing.T) {
		ts := createTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/predict",
			bytes.NewBufferString(`{"amount":50,"hour":14,"day_of_week":2,"month":5,"distance_from_home":2}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept-Encoding", "gzip")
		rr := httptest.NewRecorder()
		ts.server.Router().ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
	})
}
