package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openethics/openethics/internal/middleware"
	"github.com/openethics/openethics/internal/services"
	"github.com/openethics/openethics/internal/workflow"
)

// ApplicationHandler exposes the ethics application lifecycle over HTTP.
type ApplicationHandler struct {
	apps      *services.ApplicationService
	checklist *services.ChecklistService
	form      *services.FormService
	answers   *services.AnswerService
	logger    *zap.Logger
}

func NewApplicationHandler(
	apps *services.ApplicationService,
	checklist *services.ChecklistService,
	form *services.FormService,
	answers *services.AnswerService,
	logger *zap.Logger,
) *ApplicationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationHandler{apps: apps, checklist: checklist, form: form, answers: answers, logger: logger}
}

func actorID(r *http.Request) int64 {
	uid, _ := middleware.UserIDFromContext(r.Context())
	return uid
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, services.NewNotFoundError("invalid id")
	}
	return id, nil
}

type applicationView struct {
	services.EthicsApplication
	State         workflow.State `json:"state,omitempty"`
	ReadyToSubmit bool           `json:"ready_to_submit"`
}

func (h *ApplicationHandler) view(r *http.Request, app *services.EthicsApplication) applicationView {
	v := applicationView{EthicsApplication: *app}
	state, err := h.apps.State(r.Context(), app.ID)
	if err != nil {
		h.logger.Error("failed to load workflow state",
			zap.Int64("application_id", app.ID),
			zap.Error(err))
	} else {
		v.State = state
	}
	ready, err := h.apps.IsReadyToSubmit(r.Context(), app)
	if err != nil {
		h.logger.Error("failed to evaluate submission readiness",
			zap.Int64("application_id", app.ID),
			zap.Error(err))
	} else {
		v.ReadyToSubmit = ready
	}
	return v
}

func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, services.NewInvalidError("invalid request body"))
		return
	}
	app, err := h.apps.Create(r.Context(), req.Title, actorID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(r, app))
}

func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.apps.ActiveApplications(r.Context(), actorID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}
	app, err := h.apps.Get(r.Context(), id, actorID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, app))
}

func (h *ApplicationHandler) ChangePI(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, services.NewInvalidError("invalid request body"))
		return
	}
	app, err := h.apps.ChangePrincipalInvestigator(r.Context(), id, actorID(r), req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, app))
}

func (h *ApplicationHandler) StartChecklist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}
	app, err := h.checklist.Start(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, app))
}

func (h *ApplicationHandler) ConfigureForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}
	app, err := h.form.Configure(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, app))
}

func (h *ApplicationHandler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionnaireID int64  `json:"questionnaire_id"`
		GroupID         int64  `json:"group_id"`
		QuestionID      int64  `json:"question_id"`
		Value           string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, services.NewInvalidError("invalid request body"))
		return
	}
	a, err := h.answers.Record(r.Context(), actorID(r), req.QuestionnaireID, req.GroupID, req.QuestionID, req.Value)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.apps.SubmitForReview)
}

func (h *ApplicationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.apps.Approve)
}

func (h *ApplicationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.apps.Reject)
}

func (h *ApplicationHandler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, applicationID, actorID int64) (*services.EthicsApplication, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}
	app, err := op(r.Context(), id, actorID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, app))
}
