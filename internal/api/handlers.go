// Package api exposes the scoring engine and experiment analyzer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/experiment"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/leadflow"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/model"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/scorer"
	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/store"
)

const maxScoreRequestBody = 64 * 1024

// History lists persisted scores for analysis.
type History interface {
	ListScores(ctx context.Context, filter store.ScoreFilter) ([]model.LeadScore, error)
}

// Processor runs the persist-and-route unit of work for one input.
type Processor interface {
	Process(ctx context.Context, in scorer.Input, variant string) (*leadflow.Outcome, error)
}

// Options tunes analysis defaults.
type Options struct {
	ConfidenceLevel float64
	Strategy        string
	Window          time.Duration
	CORSOrigins     []string
	Now             func() time.Time
}

// Handlers serves scoring, assignment and experiment analysis.
type Handlers struct {
	engine    *scorer.Engine
	history   History
	processor Processor
	opts      Options
}

// NewHandlers builds the handler set. history and processor may be nil, in
// which case analysis and persisted scoring answer 503.
func NewHandlers(engine *scorer.Engine, history History, processor Processor, opts Options) *Handlers {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Window <= 0 {
		opts.Window = 30 * 24 * time.Hour
	}
	return &Handlers{engine: engine, history: history, processor: processor, opts: opts}
}

// NewRouter returns a chi router with CORS and every endpoint mounted.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	origins := h.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	h.Routes(r)
	return r
}

// Routes registers the endpoints on r.
func (h *Handlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/healthz", h.health)
	r.Post("/v1/score", h.score)
	r.Get("/v1/assign/{entity}", h.assign)
	r.Get("/v1/experiments/{test}/analysis", h.analysis)
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// score evaluates one input. With ?persist=true the result is stored and
// routed to the CRM queue through the processor.
func (h *Handlers) score(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScoreRequestBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not read request body")
		return
	}
	if len(body) > maxScoreRequestBody {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds allowed size")
		return
	}

	var in scorer.Input
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	variant := strings.TrimSpace(r.URL.Query().Get("variant"))
	persist, _ := strconv.ParseBool(r.URL.Query().Get("persist"))
	if persist {
		h.scoreAndPersist(w, r, in, variant)
		return
	}

	res, err := h.engine.ScoreOne(in, variant)
	if err != nil {
		if errors.Is(err, scorer.ErrUnknownVariant) {
			writeError(w, http.StatusBadRequest, "unknown_variant", err.Error())
			return
		}
		zap.L().Error("api: score failed", zap.String("entity_id", in.EntityID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "scoring failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) scoreAndPersist(w http.ResponseWriter, r *http.Request, in scorer.Input, variant string) {
	if h.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "score persistence not configured")
		return
	}
	out, err := h.processor.Process(r.Context(), in, variant)
	if err != nil {
		if errors.Is(err, scorer.ErrUnknownVariant) {
			writeError(w, http.StatusBadRequest, "unknown_variant", err.Error())
			return
		}
		zap.L().Error("api: persisted score failed", zap.String("entity_id", in.EntityID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "persist_failed", "score could not be persisted")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"result":          out.Result,
		"lead_score_id":   out.Score.ID,
		"crm_sync_queued": out.Enqueued,
	})
}

func (h *Handlers) assign(w http.ResponseWriter, r *http.Request) {
	entity := strings.TrimSpace(chi.URLParam(r, "entity"))
	if entity == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "entity is required")
		return
	}
	test := r.URL.Query().Get("test")
	if test == "" {
		test = h.engine.Config().ABTest.TestName
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"entity_id": entity,
		"test_name": test,
		"variant":   h.engine.Resolver().Assign(entity, test),
	})
}

func (h *Handlers) analysis(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "score history not configured")
		return
	}
	test := chi.URLParam(r, "test")
	q := r.URL.Query()

	window := h.opts.Window
	if raw := q.Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "since must be a positive duration such as 720h")
			return
		}
		window = d
	}

	confidence := h.opts.ConfidenceLevel
	if raw := q.Get("confidence"); raw != "" {
		c, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "confidence must be a number")
			return
		}
		confidence = c
	}

	name := h.opts.Strategy
	if raw := q.Get("strategy"); raw != "" {
		name = raw
	}
	strategy, ok := experiment.StrategyByName(name)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown strategy "+strconv.Quote(name))
		return
	}

	now := h.opts.Now().UTC()
	since := now.Add(-window)
	history, err := h.history.ListScores(r.Context(), store.ScoreFilter{Since: since})
	if err != nil {
		zap.L().Error("api: list scores failed", zap.String("test", test), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not load score history")
		return
	}

	report, err := experiment.Analyze(history, experiment.Options{
		TestName:        test,
		Window:          experiment.Window{Since: since, Until: now},
		ConfidenceLevel: confidence,
		Control:         h.engine.Config().ABTest.Control,
		Strategy:        strategy,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
