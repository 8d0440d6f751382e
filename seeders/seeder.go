package seeders

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"parts-tracker/internal/services"
	apperrors "parts-tracker/pkg/errors"
)

// Result counts what SeedDemoParts did.
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// SeedDemoParts creates a small set of parts spread over every category.
// Parts whose id already exists are skipped, so seeding twice is harmless.
func SeedDemoParts(
	ctx context.Context,
	parts services.PartServiceInterface,
	wf services.PartWorkflowServiceInterface,
	logger *zap.Logger,
) (Result, error) {
	var res Result
	for _, demo := range demoParts {
		part, err := parts.CreatePart(ctx, demo.Part)
		if errors.Is(err, apperrors.ErrDuplicatePartID) {
			logger.Debug("seed part exists", zap.String("partId", demo.Part.PartID))
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed %s: %w", demo.Part.PartID, err)
		}

		for _, step := range demo.Steps {
			if err := applyStep(ctx, wf, part.ID, step); err != nil {
				return res, fmt.Errorf("seed %s %s: %w", demo.Part.PartID, step.Action, err)
			}
		}
		logger.Info("seed part created", zap.String("partId", demo.Part.PartID))
		res.Created++
	}
	return res, nil
}

func applyStep(ctx context.Context, wf services.PartWorkflowServiceInterface, id int64, step demoStep) error {
	var err error
	switch step.Action {
	case "approve":
		_, err = wf.Approve(ctx, id, step.Category)
	case "assign":
		_, err = wf.Assign(ctx, id, step.User, false)
	case "start":
		_, err = wf.Start(ctx, id)
	case "complete":
		_, err = wf.Complete(ctx, id, step.Amount)
	default:
		err = fmt.Errorf("unknown seed step %q", step.Action)
	}
	return err
}
