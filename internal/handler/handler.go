// Package handler exposes the interview engine as a JSON API.
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/dkarpov/intake/internal/mapping"
	"github.com/dkarpov/intake/internal/model"
	"github.com/dkarpov/intake/internal/session"
	"github.com/dkarpov/intake/internal/store"
)

// Handler holds shared dependencies for HTTP handlers. Live controllers are
// cached in memory and lazily restored from the store after a restart.
type Handler struct {
	store  *store.Store
	reg    *mapping.Registry
	config model.EngineConfig

	mu       sync.Mutex
	sessions map[string]*session.Controller
}

// New creates a new Handler.
func New(s *store.Store, reg *mapping.Registry, cfg model.EngineConfig) (*Handler, error) {
	if cfg.DefaultTier == "" {
		cfg.DefaultTier = model.TierStandard
	}
	return &Handler{
		store:    s,
		reg:      reg,
		config:   cfg,
		sessions: make(map[string]*session.Controller),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/templates", h.handleListTemplates)
	r.Post("/interviews", h.handleStart)
	r.Get("/interviews/{sessionID}", h.handleResume)
	r.Post("/interviews/{sessionID}/answers", h.handleAnswer)
	r.Post("/interviews/{sessionID}/previous", h.handlePrevious)
	r.Post("/interviews/{sessionID}/jump", h.handleJump)
	r.Post("/interviews/{sessionID}/complete", h.handleComplete)
}

type startRequest struct {
	TemplateID string          `json:"template_id"`
	JobType    string          `json:"job_type"`
	TierLevel  model.TierLevel `json:"tier_level"`
}

type interviewResponse struct {
	SessionID        string                   `json:"session_id"`
	Question         *model.Question          `json:"question,omitempty"`
	UpgradeRequired  bool                     `json:"upgrade_required"`
	CurrentTier      int                      `json:"current_tier"`
	Status           model.SessionStatus      `json:"status"`
	AnsweredCount    int                      `json:"answered_count"`
	TotalQuestions   int                      `json:"total_questions"`
	QuestionsByTier  map[int][]model.Question `json:"questions_by_tier,omitempty"`
	StandardsCovered []string                 `json:"standards_covered,omitempty"`
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
	Confidence int    `json:"confidence,omitempty"`
}

type jumpRequest struct {
	QuestionID string `json:"question_id"`
}

type completeRequest struct {
	ExistingFields map[string]any `json:"existing_fields,omitempty"`
}

type completeResponse struct {
	AutoPopulatedFields map[string]model.AutoPopulatedField `json:"auto_populated_fields"`
	MergeResult         *model.MergeResult                  `json:"merge_result,omitempty"`
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.ListTemplates()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: decode request: %v", model.ErrValidation, err))
		return
	}
	if req.TierLevel == "" {
		req.TierLevel = h.config.DefaultTier
	}

	g, err := h.store.GetGraph(req.TemplateID)
	if err != nil {
		writeError(w, err)
		return
	}

	ctrl, err := session.Start(g, req.TierLevel, h.reg, h.store)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.CreateSession(model.Session{
		ID:         ctrl.SessionID(),
		TemplateID: req.TemplateID,
		JobType:    req.JobType,
		TierLevel:  req.TierLevel,
		Status:     ctrl.Status(),
	}); err != nil {
		writeError(w, fmt.Errorf("%w: create session: %v", model.ErrPersistence, err))
		return
	}

	h.mu.Lock()
	h.sessions[ctrl.SessionID()] = ctrl
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, h.progressResponse(ctrl, true))
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.progressResponse(ctrl, true))
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: decode request: %v", model.ErrValidation, err))
		return
	}

	current := ctrl.Progress().Question
	if current == nil || current.ID != req.QuestionID {
		writeError(w, fmt.Errorf("%w: question %q is not the session's current question",
			model.ErrInvalidState, req.QuestionID))
		return
	}

	value, err := model.FromAny(req.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	step, err := ctrl.Answer(r.Context(), value, req.Confidence)
	if err != nil {
		writeError(w, err)
		return
	}

	if step.Status == model.StatusCompleted {
		if err := h.store.UpdateSessionStatus(ctrl.SessionID(), model.StatusCompleted); err != nil {
			slog.Error("mark session completed", "session", ctrl.SessionID(), "error", err)
		}
	}

	writeJSON(w, http.StatusOK, h.stepResponse(ctrl, step))
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	step, err := ctrl.Previous()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.stepResponse(ctrl, step))
}

func (h *Handler) handleJump(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req jumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: decode request: %v", model.ErrValidation, err))
		return
	}

	step, err := ctrl.JumpTo(req.QuestionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.stepResponse(ctrl, step))
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctrl, err := h.controller(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req completeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: decode request: %v", model.ErrValidation, err))
			return
		}
	}

	resp := completeResponse{AutoPopulatedFields: ctrl.Fields()}
	if req.ExistingFields != nil {
		result, err := ctrl.Merge(req.ExistingFields)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.MergeResult = &result
	} else if ctrl.Status() != model.StatusCompleted {
		writeError(w, fmt.Errorf("%w: session is not completed", model.ErrInvalidState))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// controller returns the live controller for a session, restoring it from
// the store when the process has restarted since the session began.
func (h *Handler) controller(sessionID string) (*session.Controller, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ctrl, ok := h.sessions[sessionID]; ok {
		return ctrl, nil
	}

	sess, err := h.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	g, err := h.store.GetGraph(sess.TemplateID)
	if err != nil {
		return nil, err
	}
	records, err := h.store.ListAnswers(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list answers: %v", model.ErrPersistence, err)
	}

	ctrl, err := session.Restore(g, sessionID, sess.TierLevel, records, h.reg, h.store)
	if err != nil {
		return nil, err
	}
	h.sessions[sessionID] = ctrl
	return ctrl, nil
}

func (h *Handler) progressResponse(ctrl *session.Controller, includeCatalogue bool) interviewResponse {
	return h.stepResponseWith(ctrl, ctrl.Progress(), includeCatalogue)
}

func (h *Handler) stepResponse(ctrl *session.Controller, step session.Step) interviewResponse {
	return h.stepResponseWith(ctrl, step, false)
}

func (h *Handler) stepResponseWith(ctrl *session.Controller, step session.Step, includeCatalogue bool) interviewResponse {
	resp := interviewResponse{
		SessionID:       ctrl.SessionID(),
		Question:        step.Question,
		UpgradeRequired: step.UpgradeRequired,
		CurrentTier:     step.CurrentTier,
		Status:          step.Status,
		AnsweredCount:   step.AnsweredCount,
		TotalQuestions:  step.TotalQuestions,
	}
	if includeCatalogue {
		resp.QuestionsByTier = ctrl.Graph().ByTier()
		resp.StandardsCovered = ctrl.Graph().Standards()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, model.ErrConfiguration):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrPersistence):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
