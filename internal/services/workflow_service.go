package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"parts-tracker/internal/entities"
	"parts-tracker/internal/workflow"
)

type PartWorkflowServiceInterface interface {
	Approve(ctx context.Context, id int64, category string) (*entities.Part, error)
	Assign(ctx context.Context, id int64, user string, alreadyStarted bool) (*entities.Part, error)
	Unclaim(ctx context.Context, id int64) (*entities.Part, error)
	Start(ctx context.Context, id int64) (*entities.Part, error)
	Complete(ctx context.Context, id int64, completedAmount *int) (*entities.Part, error)
	Revert(ctx context.Context, id int64, category string) (*entities.Part, error)
}

// PartWorkflowService applies workflow transitions under the per-part lock.
type PartWorkflowService struct {
	*BaseService
}

func NewPartWorkflowService(base *BaseService) *PartWorkflowService {
	return &PartWorkflowService{BaseService: base}
}

func (s *PartWorkflowService) apply(ctx context.Context, id int64, t workflow.Named) (*entities.Part, error) {
	return s.mutatePart(ctx, id, t.Action, func(_ *sql.Tx, p entities.Part, now time.Time) (entities.Part, bool, error) {
		return t.Apply(p, now)
	})
}

func (s *PartWorkflowService) Approve(ctx context.Context, id int64, category string) (*entities.Part, error) {
	return s.apply(ctx, id, workflow.Approve(entities.Category(strings.ToLower(category))))
}

func (s *PartWorkflowService) Assign(ctx context.Context, id int64, user string, alreadyStarted bool) (*entities.Part, error) {
	return s.apply(ctx, id, workflow.Assign(user, alreadyStarted))
}

func (s *PartWorkflowService) Unclaim(ctx context.Context, id int64) (*entities.Part, error) {
	return s.apply(ctx, id, workflow.Unclaim())
}

func (s *PartWorkflowService) Start(ctx context.Context, id int64) (*entities.Part, error) {
	return s.apply(ctx, id, workflow.MarkInProgress())
}

func (s *PartWorkflowService) Complete(ctx context.Context, id int64, completedAmount *int) (*entities.Part, error) {
	return s.apply(ctx, id, workflow.Complete(completedAmount))
}

func (s *PartWorkflowService) Revert(ctx context.Context, id int64, category string) (*entities.Part, error) {
	return s.apply(ctx, id, workflow.Revert(entities.Category(strings.ToLower(category))))
}
