package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/leadflow"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/scorer"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/store"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

const exampleBody = `{
	"entity_id": "comp-1",
	"name": "Riverside Family Clinic",
	"naics_code": "621111",
	"employee_count": 150,
	"website": "https://riverside.example",
	"phone": "555-0100",
	"email_domain": "riverside.example",
	"street_address": "1 Main St",
	"city": "Austin",
	"state": "TX",
	"last_updated_at": "2024-03-15T12:00:00Z",
	"contacts": [{"is_decision_maker": true, "is_executive": true, "email_verified": true}]
}`

type fakeHistory struct {
	scores []model.LeadScore
	err    error
	filter store.ScoreFilter
}

func (f *fakeHistory) ListScores(_ context.Context, filter store.ScoreFilter) ([]model.LeadScore, error) {
	f.filter = filter
	return f.scores, f.err
}

type fakeProcessor struct {
	engine *scorer.Engine
	err    error
}

func (f *fakeProcessor) Process(_ context.Context, in scorer.Input, variant string) (*leadflow.Outcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	res, err := f.engine.ScoreOne(in, variant)
	if err != nil {
		return nil, err
	}
	rec, err := res.Record(fixedNow)
	if err != nil {
		return nil, err
	}
	return &leadflow.Outcome{Result: *res, Score: rec, Enqueued: true}, nil
}

func newTestEngine(t *testing.T) *scorer.Engine {
	t.Helper()
	e, err := scorer.NewEngine(scorer.DefaultConfig(), scorer.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return e
}

func newTestRouter(t *testing.T, history History, processor Processor) http.Handler {
	t.Helper()
	h := NewHandlers(newTestEngine(t), history, processor, Options{
		ConfidenceLevel: 0.95,
		Strategy:        "threshold",
		Now:             func() time.Time { return fixedNow },
	})
	return NewRouter(h)
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body map[string]errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthz(t *testing.T) {
	rr := do(t, newTestRouter(t, nil, nil), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestScore_Example(t *testing.T) {
	rr := do(t, newTestRouter(t, nil, nil), http.MethodPost, "/v1/score", []byte(exampleBody))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res scorer.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "comp-1", res.EntityID)
	assert.Equal(t, 75, res.TotalScore)
	assert.Equal(t, scorer.Grade("B"), res.Grade)
	assert.Equal(t, scorer.ControlVariant, res.Variant)
	assert.NotEmpty(t, res.Reasons)
	assert.NotEmpty(t, res.Recommendation)
}

func TestScore_VariantOverride(t *testing.T) {
	rr := do(t, newTestRouter(t, nil, nil), http.MethodPost, "/v1/score?variant=variant_a", []byte(exampleBody))
	require.Equal(t, http.StatusOK, rr.Code)

	var res scorer.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "variant_a", res.Variant)
	assert.Equal(t, "1.1", res.ScoringVersion)
}

func TestScore_UnknownVariant(t *testing.T) {
	rr := do(t, newTestRouter(t, nil, nil), http.MethodPost, "/v1/score?variant=variant_z", []byte(exampleBody))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "unknown_variant", decodeError(t, rr).Code)
}

func TestScore_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		status int
		code   string
	}{
		{"invalid json", []byte(`{not json`), http.StatusBadRequest, "invalid_request"},
		{"missing entity id", []byte(`{"name":"Acme"}`), http.StatusBadRequest, "invalid_request"},
		{"negative employees", []byte(`{"entity_id":"x","employee_count":-1}`), http.StatusBadRequest, "invalid_request"},
		{"too large", bytes.Repeat([]byte(" "), maxScoreRequestBody+10), http.StatusRequestEntityTooLarge, "payload_too_large"},
	}
	router := newTestRouter(t, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, http.MethodPost, "/v1/score", tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decodeError(t, rr).Code)
		})
	}
}

func TestScore_Persist(t *testing.T) {
	engine := newTestEngine(t)
	router := NewRouter(NewHandlers(engine, nil, &fakeProcessor{engine: engine}, Options{}))

	rr := do(t, router, http.MethodPost, "/v1/score?persist=true", []byte(exampleBody))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body struct {
		Result      scorer.Result `json:"result"`
		LeadScoreID string        `json:"lead_score_id"`
		Queued      bool          `json:"crm_sync_queued"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 75, body.Result.TotalScore)
	assert.NotEmpty(t, body.LeadScoreID)
	assert.True(t, body.Queued)
}

func TestScore_PersistHonorsVariantOverride(t *testing.T) {
	engine := newTestEngine(t)
	router := NewRouter(NewHandlers(engine, nil, &fakeProcessor{engine: engine}, Options{}))

	rr := do(t, router, http.MethodPost, "/v1/score?persist=true&variant=variant_a", []byte(exampleBody))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body struct {
		Result scorer.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "variant_a", body.Result.Variant)

	rr = do(t, router, http.MethodPost, "/v1/score?persist=true&variant=nope", []byte(exampleBody))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "unknown_variant", decodeError(t, rr).Code)
}

func TestScore_PersistFailures(t *testing.T) {
	rr := do(t, newTestRouter(t, nil, nil), http.MethodPost, "/v1/score?persist=true", []byte(exampleBody))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	engine := newTestEngine(t)
	router := NewRouter(NewHandlers(engine, nil, &fakeProcessor{engine: engine, err: errors.New("db down")}, Options{}))
	rr = do(t, router, http.MethodPost, "/v1/score?persist=1", []byte(exampleBody))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "persist_failed", decodeError(t, rr).Code)
}

func TestAssign(t *testing.T) {
	rr := do(t, newTestRouter(t, nil, nil), http.MethodGet, "/v1/assign/comp-9?test=pricing", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "comp-9", body["entity_id"])
	assert.Equal(t, "pricing", body["test_name"])
	// Testing is disabled in the default config.
	assert.Equal(t, scorer.ControlVariant, body["variant"])
}

func TestAssign_EnabledIsDeterministic(t *testing.T) {
	cfg := scorer.DefaultConfig()
	cfg.ABTest.Enabled = true
	cfg.ABTest.TestName = "weights_v2"
	e, err := scorer.NewEngine(cfg)
	require.NoError(t, err)
	router := NewRouter(NewHandlers(e, nil, nil, Options{}))

	first := do(t, router, http.MethodGet, "/v1/assign/comp-42", nil)
	second := do(t, router, http.MethodGet, "/v1/assign/comp-42", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &body))
	assert.Equal(t, "weights_v2", body["test_name"])
	assert.Equal(t, e.Resolver().Assign("comp-42", "weights_v2"), body["variant"])
}

func historyFixture() []model.LeadScore {
	var out []model.LeadScore
	for i := range 40 {
		control := model.LeadScore{ID: fmt.Sprintf("c-%d", i), Variant: "control", TotalScore: 50, CreatedAt: fixedNow.Add(-time.Hour)}
		if i < 10 {
			control.TotalScore = 85
		}
		challenger := model.LeadScore{ID: fmt.Sprintf("v-%d", i), Variant: "variant_a", TotalScore: 50, CreatedAt: fixedNow.Add(-time.Hour)}
		if i < 30 {
			challenger.TotalScore = 85
		}
		out = append(out, control, challenger)
	}
	return out
}

func TestAnalysis(t *testing.T) {
	history := &fakeHistory{scores: historyFixture()}
	rr := do(t, newTestRouter(t, history, nil), http.MethodGet, "/v1/experiments/weights_v2/analysis?since=168h&strategy=ztest", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, fixedNow.Add(-168*time.Hour), history.filter.Since)

	var report struct {
		TestName       string `json:"test_name"`
		Strategy       string `json:"strategy"`
		Significant    bool   `json:"is_significant"`
		WinningVariant string `json:"winning_variant"`
		Variants       []struct {
			Variant    string `json:"variant"`
			SampleSize int    `json:"sample_size"`
		} `json:"variant_stats"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, "weights_v2", report.TestName)
	assert.Equal(t, "ztest", report.Strategy)
	assert.True(t, report.Significant)
	assert.Equal(t, "variant_a", report.WinningVariant)
	require.Len(t, report.Variants, 2)
	assert.Equal(t, 40, report.Variants[0].SampleSize)
}

func TestAnalysis_BadRequests(t *testing.T) {
	router := newTestRouter(t, &fakeHistory{}, nil)
	for _, target := range []string{
		"/v1/experiments/t/analysis?since=yesterday",
		"/v1/experiments/t/analysis?since=-1h",
		"/v1/experiments/t/analysis?confidence=high",
		"/v1/experiments/t/analysis?confidence=1.5",
		"/v1/experiments/t/analysis?strategy=bayes",
	} {
		rr := do(t, router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestAnalysis_Unavailable(t *testing.T) {
	rr := do(t, newTestRouter(t, nil, nil), http.MethodGet, "/v1/experiments/t/analysis", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(t, newTestRouter(t, &fakeHistory{err: errors.New("timeout")}, nil), http.MethodGet, "/v1/experiments/t/analysis", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/v1/score", nil)
	req.Header.Set("Origin", "https://crm.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
