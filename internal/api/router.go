package api

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	mw "github.com/openethics/openethics/internal/middleware"
)

// NewRouter assembles the portal's HTTP surface. Everything except
// registration and login requires a valid bearer token; object-level
// permission checks happen in the services.
func NewRouter(
	auth *mw.TokenAuth,
	logger *zap.Logger,
	authH *AuthHandler,
	appH *ApplicationHandler,
	committeeH *CommitteeHandler,
	bankH *QuestionBankHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(mw.RequestLogger(logger))
	r.Use(mw.CORS)
	r.Use(auth.WithAuth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authH.Register)
		r.Post("/auth/login", authH.Login)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth)

			r.Post("/applications", appH.Create)
			r.Get("/applications", appH.List)
			r.Get("/applications/{id}", appH.Get)
			r.Put("/applications/{id}/principal-investigator", appH.ChangePI)

			r.Post("/applications/{id}/checklist", appH.StartChecklist)
			r.Post("/applications/{id}/form", appH.ConfigureForm)
			r.Post("/answers", appH.RecordAnswer)

			r.Post("/applications/{id}/submit", appH.Submit)
			r.Post("/applications/{id}/approve", appH.Approve)
			r.Post("/applications/{id}/reject", appH.Reject)

			r.Get("/committee", committeeH.List)
			r.Post("/committee", committeeH.Add)

			r.Post("/groups", bankH.CreateGroup)
			r.Post("/groups/{id}/questions", bankH.CreateQuestion)
			r.Post("/checklist-links", bankH.CreateChecklistLink)
		})
	})

	return r
}
