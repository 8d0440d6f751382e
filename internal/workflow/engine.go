package workflow

import (
	"fmt"
	"strings"
	"time"

	"parts-tracker/internal/entities"
	apperrors "parts-tracker/pkg/errors"
)

// Transition applies one workflow operation to a copy of p. It returns the
// new part, whether anything changed, and a domain error when the
// operation is illegal. The input part is never modified.
type Transition func(p entities.Part, now time.Time) (entities.Part, bool, error)

// Named pairs a transition with the action name used in logs and events.
type Named struct {
	Action string
	Apply  Transition
}

func Approve(target entities.Category) Named {
	return Named{Action: "approve", Apply: func(p entities.Part, now time.Time) (entities.Part, bool, error) {
		if !target.Valid() {
			return p, false, apperrors.NewFieldError("category", "unknown category %q", target)
		}
		allowed := containsCategory(ApprovalTargets(p.Type), target)
		if p.Category != entities.CategoryReview {
			if p.Category == target && allowed {
				return p, false, nil
			}
			return p, false, fmt.Errorf("approve from %s: %w", p.Category, apperrors.ErrInvalidTransition)
		}
		if !CanMove(p.Category, target) || !allowed {
			return p, false, fmt.Errorf("%s part cannot be approved into %s: %w", p.Type, target, apperrors.ErrInvalidTransition)
		}

		next := p.Clone()
		next.Category = target
		switch {
		case target == entities.CategoryCompleted:
			next.Status = entities.StatusCompleted
			next.CompletedAt = &now
			amount := p.Amount
			next.CompletedAmount = &amount
		case p.Assigned != nil && (p.Status == entities.StatusInProgress || p.Status == entities.StatusAlreadyStarted):
			// Work already begun during review carries over.
		default:
			next.Status = entities.StatusReviewed
		}
		return next, true, nil
	}}
}

func Assign(user string, alreadyStarted bool) Named {
	return Named{Action: "assign", Apply: func(p entities.Part, now time.Time) (entities.Part, bool, error) {
		name := strings.TrimSpace(user)
		if name == "" {
			return p, false, apperrors.NewFieldError("assigned", "assignee is required")
		}
		if len(name) > 100 {
			return p, false, apperrors.NewFieldError("assigned", "assignee exceeds 100 characters")
		}
		if p.Category == entities.CategoryCompleted {
			return p, false, fmt.Errorf("assign completed part: %w", apperrors.ErrInvalidState)
		}

		target := p.Status
		switch {
		case alreadyStarted:
			target = entities.StatusAlreadyStarted
		case p.Status == entities.StatusPending || p.Status == entities.StatusReviewed:
			target = entities.StatusInProgress
		}
		if p.Assigned != nil && *p.Assigned == name && target == p.Status {
			return p, false, nil
		}

		next := p.Clone()
		next.Assigned = &name
		next.ClaimedDate = &now
		next.Status = target
		return next, true, nil
	}}
}

func Unclaim() Named {
	return Named{Action: "unclaim", Apply: func(p entities.Part, now time.Time) (entities.Part, bool, error) {
		if p.Assigned == nil {
			return p, false, fmt.Errorf("unclaim unassigned part: %w", apperrors.ErrInvalidState)
		}
		next := p.Clone()
		next.Assigned = nil
		next.ClaimedDate = nil
		if p.Status == entities.StatusInProgress {
			if p.Category == entities.CategoryReview {
				next.Status = entities.StatusPending
			} else if p.Category.IsProduction() {
				next.Status = entities.StatusReviewed
			}
		}
		return next, true, nil
	}}
}

func MarkInProgress() Named {
	return Named{Action: "start", Apply: func(p entities.Part, now time.Time) (entities.Part, bool, error) {
		if !p.Category.IsProduction() {
			return p, false, fmt.Errorf("start work in %s: %w", p.Category, apperrors.ErrInvalidTransition)
		}
		switch p.Status {
		case entities.StatusInProgress:
			return p, false, nil
		case entities.StatusReviewed:
			next := p.Clone()
			next.Status = entities.StatusInProgress
			return next, true, nil
		}
		return p, false, fmt.Errorf("start work from %q: %w", p.Status, apperrors.ErrInvalidTransition)
	}}
}

// Complete moves a production part to completed. completedAmount only
// applies to misc parts and defaults to the full amount.
func Complete(completedAmount *int) Named {
	return Named{Action: "complete", Apply: func(p entities.Part, now time.Time) (entities.Part, bool, error) {
		if !p.Category.IsProduction() && p.Category != entities.CategoryCompleted {
			return p, false, fmt.Errorf("complete from %s: %w", p.Category, apperrors.ErrInvalidTransition)
		}

		var amount *int
		if p.Type == entities.PartTypeMisc {
			v := p.Amount
			if completedAmount != nil {
				v = *completedAmount
			}
			if v < 0 || v > p.Amount {
				return p, false, apperrors.NewFieldError("completed_amount", "must be between 0 and %d", p.Amount)
			}
			amount = &v
		}

		if p.Category == entities.CategoryCompleted {
			if completedAmount == nil || sameAmount(p.CompletedAmount, amount) {
				return p, false, nil
			}
			return p, false, fmt.Errorf("part already completed: %w", apperrors.ErrInvalidTransition)
		}
		next := p.Clone()
		next.Category = entities.CategoryCompleted
		next.Status = entities.StatusCompleted
		next.CompletedAt = &now
		next.CompletedAmount = amount
		return next, true, nil
	}}
}

func Revert(target entities.Category) Named {
	return Named{Action: "revert", Apply: func(p entities.Part, now time.Time) (entities.Part, bool, error) {
		if !target.Valid() {
			return p, false, apperrors.NewFieldError("category", "unknown category %q", target)
		}
		// Only completed parts can be reverted; a repeated revert is rejected.
		if p.Category != entities.CategoryCompleted {
			return p, false, fmt.Errorf("revert from %s: %w", p.Category, apperrors.ErrInvalidTransition)
		}
		if !CanMove(p.Category, target) || !containsCategory(RevertTargets(p.Type), target) {
			return p, false, fmt.Errorf("%s part cannot be reverted to %s: %w", p.Type, target, apperrors.ErrInvalidTransition)
		}

		next := p.Clone()
		next.Category = target
		next.Status = entities.StatusInProgress
		next.CompletedAt = nil
		next.CompletedAmount = nil
		return next, true, nil
	}}
}

// Validate checks the structural invariants every stored part must hold.
func Validate(p entities.Part) error {
	if !p.Type.Valid() {
		return apperrors.NewFieldError("type", "unknown part type %q", p.Type)
	}
	if !ValidPair(p.Category, p.Status) {
		return fmt.Errorf("status %q in category %q: %w", p.Status, p.Category, apperrors.ErrInvalidState)
	}
	if (p.Assigned == nil) != (p.ClaimedDate == nil) {
		return fmt.Errorf("assignment without claim date: %w", apperrors.ErrInvalidState)
	}
	return nil
}

func sameAmount(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
