package api

import (
	"encoding/json"
	"net/http"

	"github.com/openethics/openethics/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeErr maps the service error taxonomy onto HTTP statuses. A checklist
// precondition failure is not-found-style per the portal contract; a
// misconfiguration is a server error.
func writeErr(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusInternalServerError
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound, services.ErrorPrecondition:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorMisconfigured:
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorBody{Error: se.Message, Code: string(se.Code)})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}
