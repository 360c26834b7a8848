package api

import (
	"encoding/json"
	"net/http"

	"github.com/openethics/openethics/internal/services"
	"github.com/openethics/openethics/internal/store"
)

// QuestionBankHandler maintains the groups, questions and checklist links the
// portal composes questionnaires from.
type QuestionBankHandler struct {
	store store.Store
}

func NewQuestionBankHandler(st store.Store) *QuestionBankHandler {
	return &QuestionBankHandler{store: st}
}

func (h *QuestionBankHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeErr(w, services.NewInvalidError("name is required"))
		return
	}
	g, err := h.store.CreateQuestionGroup(r.Context(), &services.QuestionGroup{Name: req.Name})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *QuestionBankHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "id")
	if err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Label string `json:"label"`
		Type  string `json:"type"`
		Order int    `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Label == "" {
		writeErr(w, services.NewInvalidError("label is required"))
		return
	}
	if req.Type == "" {
		req.Type = services.QuestionTypeText
	}
	group, err := h.store.GetQuestionGroup(r.Context(), groupID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if group == nil {
		writeErr(w, services.NewNotFoundError("group not found"))
		return
	}
	q, err := h.store.CreateQuestion(r.Context(), &services.Question{
		GroupID: groupID,
		Label:   req.Label,
		Type:    req.Type,
		Order:   req.Order,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *QuestionBankHandler) CreateChecklistLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID int64 `json:"question_id"`
		GroupID    int64 `json:"group_id"`
		Order      int   `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == 0 || req.GroupID == 0 {
		writeErr(w, services.NewInvalidError("question_id and group_id are required"))
		return
	}
	group, err := h.store.GetQuestionGroup(r.Context(), req.GroupID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if group == nil {
		writeErr(w, services.NewNotFoundError("group not found"))
		return
	}
	l, err := h.store.CreateChecklistLink(r.Context(), &services.ChecklistLink{
		QuestionID: req.QuestionID,
		GroupID:    req.GroupID,
		Order:      req.Order,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}
