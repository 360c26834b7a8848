package api

import (
	"encoding/json"
	"net/http"

	"github.com/openethics/openethics/internal/services"
)

// CommitteeHandler administers the review committee.
type CommitteeHandler struct {
	review *services.ReviewService
}

func NewCommitteeHandler(review *services.ReviewService) *CommitteeHandler {
	return &CommitteeHandler{review: review}
}

func (h *CommitteeHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.review.ListMembers(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *CommitteeHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, services.NewInvalidError("invalid request body"))
		return
	}
	m, err := h.review.AddMember(r.Context(), req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
