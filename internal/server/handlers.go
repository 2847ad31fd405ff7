package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/invariant"
	"github.com/tjfontaine/llm-reliability/internal/storage"
)

const (
	maxBatchSize     = 1000
	defaultListLimit = 50
)

// Validator runs invariants over captures.
type Validator interface {
	ValidateCapture(ctx context.Context, capture domain.CaptureEvent, invariantIDs ...string) []domain.ValidationResult
	ValidateBatch(ctx context.Context, captures []domain.CaptureEvent) domain.BatchValidationResult
}

// Detector runs an on-demand drift comparison.
type Detector interface {
	DetectDrift(ctx context.Context, application string, comparison, baseline *domain.DriftWindow) ([]domain.DriftMetric, error)
}

// API bundles the handler dependencies.
type API struct {
	Store    storage.Store
	Engine   Validator
	Detector Detector
	Registry *invariant.Registry
	Logger   *slog.Logger
}

// Routes mounts all API endpoints on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/captures", a.handleCreateCapture)
		r.Post("/captures/batch", a.handleCreateBatch)
		r.Get("/captures/{id}", a.handleGetCapture)
		r.Get("/captures/{id}/results", a.handleGetResults)
		r.Get("/applications/{application}/stats", a.handleStats)
		r.Get("/applications/{application}/drift", a.handleRecentDrift)
		r.Post("/applications/{application}/drift/detect", a.handleDetectDrift)
		r.Get("/alerts", a.handleAlerts)
		r.Get("/invariants", a.handleInvariants)
	})
}

// captureRequest is the ingestion payload. The server assigns ids and
// timestamps; clients only describe the interaction.
type captureRequest struct {
	RequestType  string                `json:"request_type"`
	Prompt       string                `json:"prompt,omitempty"`
	Messages     []domain.Message      `json:"messages,omitempty"`
	Provider     string                `json:"provider"`
	ModelName    string                `json:"model_name"`
	Temperature  float64               `json:"temperature"`
	TopP         float64               `json:"top_p"`
	Context      domain.RequestContext `json:"context"`
	ResponseText string                `json:"response_text"`
	FinishReason string                `json:"finish_reason,omitempty"`
	Usage        map[string]int        `json:"usage,omitempty"`
	LatencyMS    int                   `json:"latency_ms"`
	SDKVersion   string                `json:"sdk_version,omitempty"`
}

func (cr captureRequest) toCapture() (domain.CaptureEvent, error) {
	model, err := domain.NewModelConfig(domain.Provider(cr.Provider), cr.ModelName, cr.Temperature, cr.TopP)
	if err != nil {
		return domain.CaptureEvent{}, err
	}
	reqType := domain.RequestType(cr.RequestType)
	if reqType == "" {
		reqType = domain.RequestTypeChat
	}
	req, err := domain.NewLLMRequest(reqType, cr.Prompt, cr.Messages, model, cr.Context)
	if err != nil {
		return domain.CaptureEvent{}, err
	}
	resp := domain.NewLLMResponse(req.ID, cr.ResponseText, cr.FinishReason, cr.Usage, cr.LatencyMS)
	return domain.NewCaptureEvent(req, resp, cr.SDKVersion), nil
}

type captureResponse struct {
	CaptureID uuid.UUID                 `json:"capture_id"`
	Results   []domain.ValidationResult `json:"results"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleCreateCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	capture, err := req.toCapture()
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.Store.SaveCapture(r.Context(), capture); err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}

	results := a.Engine.ValidateCapture(r.Context(), capture)
	if len(results) > 0 {
		if err := a.Store.SaveResults(r.Context(), results); err != nil {
			a.respondError(w, http.StatusInternalServerError, err)
			return
		}
	}

	AddLogField(r.Context(), "capture_id", capture.ID.String())
	AddLogField(r.Context(), "application", capture.Request.Context.ApplicationName)
	a.respondJSON(w, http.StatusCreated, captureResponse{CaptureID: capture.ID, Results: results})
}

type batchResponse struct {
	CaptureIDs []uuid.UUID                  `json:"capture_ids"`
	Batch      domain.BatchValidationResult `json:"batch"`
}

func (a *API) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []captureRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		a.respondError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if len(reqs) == 0 {
		a.respondError(w, http.StatusBadRequest, errors.New("empty batch"))
		return
	}
	if len(reqs) > maxBatchSize {
		a.respondError(w, http.StatusBadRequest, fmt.Errorf("batch size %d exceeds limit %d", len(reqs), maxBatchSize))
		return
	}

	captures := make([]domain.CaptureEvent, 0, len(reqs))
	ids := make([]uuid.UUID, 0, len(reqs))
	for i, req := range reqs {
		capture, err := req.toCapture()
		if err != nil {
			a.respondError(w, http.StatusBadRequest, fmt.Errorf("capture %d: %w", i, err))
			return
		}
		captures = append(captures, capture)
		ids = append(ids, capture.ID)
	}
	if err := a.Store.SaveCaptures(r.Context(), captures); err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}

	batch := a.Engine.ValidateBatch(r.Context(), captures)
	if len(batch.Results) > 0 {
		if err := a.Store.SaveResults(r.Context(), batch.Results); err != nil {
			a.respondError(w, http.StatusInternalServerError, err)
			return
		}
	}

	AddLogField(r.Context(), "batch_size", strconv.Itoa(len(captures)))
	a.respondJSON(w, http.StatusCreated, batchResponse{CaptureIDs: ids, Batch: batch})
}

func (a *API) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid capture id: %w", err))
		return
	}
	capture, err := a.Store.GetCapture(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		a.respondError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}
	a.respondJSON(w, http.StatusOK, capture)
}

func (a *API) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid capture id: %w", err))
		return
	}
	results, err := a.Store.ResultsForCapture(r.Context(), id)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	application := chi.URLParam(r, "application")
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			a.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid since: %w", err))
			return
		}
		since = parsed
	}
	stats, err := a.Store.Stats(r.Context(), application, since)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}
	a.respondJSON(w, http.StatusOK, stats)
}

func (a *API) handleRecentDrift(w http.ResponseWriter, r *http.Request) {
	application := chi.URLParam(r, "application")
	limit := queryInt(r, "limit", defaultListLimit)
	metrics, err := a.Store.RecentMetrics(r.Context(), application, limit)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"metrics": metrics})
}

func (a *API) handleDetectDrift(w http.ResponseWriter, r *http.Request) {
	application := chi.URLParam(r, "application")
	metrics, err := a.Detector.DetectDrift(r.Context(), application, nil, nil)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if len(metrics) > 0 {
		if err := a.Store.SaveMetrics(r.Context(), application, metrics); err != nil {
			a.respondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"metrics": metrics})
}

func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	alerts, err := a.Store.RecentAlerts(r.Context(), limit)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

type invariantInfo struct {
	Metadata invariant.Metadata `json:"metadata"`
	Config   invariant.Config   `json:"config"`
}

func (a *API) handleInvariants(w http.ResponseWriter, r *http.Request) {
	all := a.Registry.All()
	infos := make([]invariantInfo, 0, len(all))
	for _, inv := range all {
		infos = append(infos, invariantInfo{Metadata: inv.Metadata(), Config: inv.Config()})
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"invariants": infos})
}

func (a *API) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("encode response", "error", err)
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed", "status", status, "error", err)
	}
	a.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
