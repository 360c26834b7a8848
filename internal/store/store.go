// Package store provides the persistence layer behind the service, workflow
// and permission interfaces: an in-memory implementation for tests and local
// development, and a SQLite implementation for deployments.
package store

import (
	"context"

	"github.com/openethics/openethics/internal/permissions"
	"github.com/openethics/openethics/internal/services"
	"github.com/openethics/openethics/internal/workflow"
)

// Store is the union of every narrow persistence interface the portal
// consumes, plus the administrative write paths used to maintain the
// question bank.
type Store interface {
	services.AuthStore
	services.AnswerStore
	services.ChecklistStore
	services.FormStore
	services.ReviewStore
	services.ApplicationStore
	workflow.StateStore
	permissions.RoleStore

	CreateQuestionGroup(ctx context.Context, g *services.QuestionGroup) (*services.QuestionGroup, error)
	CreateQuestion(ctx context.Context, q *services.Question) (*services.Question, error)
	CreateChecklistLink(ctx context.Context, l *services.ChecklistLink) (*services.ChecklistLink, error)
}
