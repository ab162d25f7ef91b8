// Package api exposes the approval service over HTTP.
package api

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
	"contentgate/internal/infrastructure/scheduler"
	"contentgate/internal/ports"
	"contentgate/internal/usecase/approval"
)

const maxBodyBytes = 1 << 20

type Service interface {
	SubmitDraft(ctx context.Context, input approval.SubmitInput) (approval.SubmitResult, error)
	EvaluateDraft(ctx context.Context, input approval.EvaluateInput) (approval.Evaluation, error)
	ListContent(ctx context.Context, filter ports.ContentFilter) ([]ports.ContentItem, error)
	GetContentDetail(ctx context.Context, contentID string) (approval.ContentDetail, error)
	AdvanceWorkflow(ctx context.Context, input approval.AdvanceInput) (approval.WorkflowSnapshot, error)
	BulkAdvance(ctx context.Context, input approval.BulkInput) ([]approval.ItemResult, error)
	RecordFeedback(ctx context.Context, input approval.FeedbackInput) (approval.FeedbackResult, error)
	ListSuggestions(ctx context.Context, status ports.SuggestionStatus, limit int) ([]ports.Suggestion, error)
	ReviewSuggestion(ctx context.Context, input approval.ReviewInput) (ports.Suggestion, error)
	ListRules(ctx context.Context, includeInactive bool) ([]ports.RuleVersion, error)
	ActiveEngineConfig(ctx context.Context) (quality.EngineConfig, error)
	UpdateEngineConfig(ctx context.Context, input approval.UpdateEngineConfigInput) (quality.EngineConfig, error)
	ListMetrics(ctx context.Context, limit int) ([]quality.PerformanceMetrics, error)
	SweepStatus(ctx context.Context) (map[string]string, error)
}

// SweepTrigger runs a named sweep synchronously.
type SweepTrigger interface {
	Trigger(name string) error
}

type Options struct {
	// Token, when set, is required as a bearer token on every request except
	// the health check.
	Token string
}

type handler struct {
	svc    Service
	sweeps SweepTrigger
	token  string
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(svc Service, sweeps SweepTrigger, opts Options) http.Handler {
	h := &handler{svc: svc, sweeps: sweeps, token: strings.TrimSpace(opts.Token)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authorize)

		r.Route("/content", func(r chi.Router) {
			r.Get("/", h.listContent)
			r.Post("/", h.submitDraft)
			r.Get("/{contentID}", h.getContent)
			r.Post("/{contentID}/{action}", h.advance)
		})
		r.Post("/workflow/bulk", h.bulkAdvance)
		r.Post("/evaluate", h.evaluate)

		r.Post("/feedback", h.recordFeedback)
		r.Get("/suggestions", h.listSuggestions)
		r.Post("/suggestions/{suggestionID}/review", h.reviewSuggestion)

		r.Get("/rules", h.listRules)
		r.Get("/rules/schema", h.ruleSchema)
		r.Get("/engine-config", h.engineConfig)
		r.Post("/engine-config", h.updateEngineConfig)

		r.Get("/metrics", h.listMetrics)
		r.Get("/sweeps", h.sweepStatus)
		r.Post("/sweeps/{name}", h.triggerSweep)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithAttrs(logging.WithComponent(r.Context(), "api"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.Debug(ctx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(started)),
		)
	})
}

func (h *handler) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer ")
		if !ok || !hmac.Equal([]byte(strings.TrimSpace(got)), []byte(h.token)) {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type submitRequest struct {
	ExternalRef string               `json:"external_ref"`
	Draft       quality.Draft        `json:"draft"`
	Inputs      quality.SignalInputs `json:"inputs"`
	PublishAt   time.Time            `json:"publish_at"`
	SubmittedBy string               `json:"submitted_by"`
	ProcessNow  bool                 `json:"process_now"`
}

func (h *handler) submitDraft(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := h.svc.SubmitDraft(r.Context(), approval.SubmitInput{
		ExternalRef: req.ExternalRef,
		Draft:       req.Draft,
		Inputs:      req.Inputs,
		PublishAt:   req.PublishAt,
		SubmittedBy: req.SubmittedBy,
		ProcessNow:  req.ProcessNow,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out.Item)
}

func (h *handler) listContent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ports.ContentFilter{
		ContentType: quality.ContentType(strings.TrimSpace(query.Get("type"))),
		Limit:       intParam(query.Get("limit")),
	}
	for _, raw := range query["state"] {
		for _, state := range strings.Split(raw, ",") {
			if state = strings.TrimSpace(state); state != "" {
				filter.States = append(filter.States, quality.WorkflowState(state))
			}
		}
	}
	items, err := h.svc.ListContent(r.Context(), filter)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) getContent(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetContentDetail(r.Context(), chi.URLParam(r, "contentID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type advanceRequest struct {
	Actor           string                `json:"actor"`
	Reason          string                `json:"reason"`
	Comment         string                `json:"comment"`
	PublishAt       time.Time             `json:"publish_at"`
	Rescore         bool                  `json:"rescore"`
	ExpectedVersion int64                 `json:"expected_version"`
	Draft           *quality.Draft        `json:"draft"`
	Inputs          *quality.SignalInputs `json:"inputs"`
}

func (h *handler) advance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snapshot, err := h.svc.AdvanceWorkflow(r.Context(), approval.AdvanceInput{
		ContentID:       chi.URLParam(r, "contentID"),
		Action:          quality.WorkflowAction(chi.URLParam(r, "action")),
		Actor:           req.Actor,
		Reason:          req.Reason,
		Comment:         req.Comment,
		PublishAt:       req.PublishAt,
		Rescore:         req.Rescore,
		ExpectedVersion: req.ExpectedVersion,
		Draft:           req.Draft,
		Inputs:          req.Inputs,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type bulkRequest struct {
	ContentIDs []string  `json:"content_ids"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason"`
	Comment    string    `json:"comment"`
	PublishAt  time.Time `json:"publish_at"`
	Rescore    bool      `json:"rescore"`
}

func (h *handler) bulkAdvance(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, err := h.svc.BulkAdvance(r.Context(), approval.BulkInput{
		ContentIDs: req.ContentIDs,
		Action:     quality.WorkflowAction(req.Action),
		Actor:      req.Actor,
		Reason:     req.Reason,
		Comment:    req.Comment,
		PublishAt:  req.PublishAt,
		Rescore:    req.Rescore,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type evaluateRequest struct {
	Draft  quality.Draft        `json:"draft"`
	Inputs quality.SignalInputs `json:"inputs"`
}

func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := h.svc.EvaluateDraft(r.Context(), approval.EvaluateInput{Draft: req.Draft, Inputs: req.Inputs})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type feedbackRequest struct {
	ContentID       string `json:"content_id"`
	ReviewerID      string `json:"reviewer_id"`
	Type            string `json:"type"`
	Rating          int    `json:"rating"`
	Comment         string `json:"comment"`
	Category        string `json:"category"`
	DecisionCorrect bool   `json:"decision_correct"`
	RuleID          string `json:"rule_id"`
}

func (h *handler) recordFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := h.svc.RecordFeedback(r.Context(), approval.FeedbackInput{
		ContentID:       req.ContentID,
		ReviewerID:      req.ReviewerID,
		Type:            quality.FeedbackType(req.Type),
		Rating:          req.Rating,
		Comment:         req.Comment,
		Category:        req.Category,
		DecisionCorrect: req.DecisionCorrect,
		RuleID:          req.RuleID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *handler) listSuggestions(w http.ResponseWriter, r *http.Request) {
	status := ports.SuggestionStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	out, err := h.svc.ListSuggestions(r.Context(), status, intParam(r.URL.Query().Get("limit")))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type reviewRequest struct {
	Reviewer string `json:"reviewer"`
	Approve  bool   `json:"approve"`
	Note     string `json:"note"`
}

func (h *handler) reviewSuggestion(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := h.svc.ReviewSuggestion(r.Context(), approval.ReviewInput{
		SuggestionID: chi.URLParam(r, "suggestionID"),
		Approve:      req.Approve,
		Reviewer:     req.Reviewer,
		Note:         req.Note,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) listRules(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	out, err := h.svc.ListRules(r.Context(), includeInactive)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) ruleSchema(w http.ResponseWriter, r *http.Request) {
	raw, err := approval.RuleSchema()
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (h *handler) engineConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.ActiveEngineConfig(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type engineConfigRequest struct {
	Target string  `json:"target"`
	Value  float64 `json:"value"`
	Actor  string  `json:"actor"`
	Reason string  `json:"reason"`
}

func (h *handler) updateEngineConfig(w http.ResponseWriter, r *http.Request) {
	var req engineConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cfg, err := h.svc.UpdateEngineConfig(r.Context(), approval.UpdateEngineConfigInput{
		Target: req.Target,
		Value:  req.Value,
		Actor:  req.Actor,
		Reason: req.Reason,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) listMetrics(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListMetrics(r.Context(), intParam(r.URL.Query().Get("limit")))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) sweepStatus(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.SweepStatus(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) triggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeps == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeps are not configured")
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.sweeps.Trigger(name); err != nil {
		if errors.Is(err, scheduler.ErrJobRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sweep": name, "status": "completed"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func intParam(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, quality.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, quality.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, quality.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, quality.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quality.ErrUpstreamData):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error(ctx, "request failed", slog.Any("err", errs.Loggable(err)))
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
