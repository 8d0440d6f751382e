package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parts-tracker/internal/entities"
	apperrors "parts-tracker/pkg/errors"
	"parts-tracker/pkg/utils"
)

func TestWorkflow_HandPartRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	part := f.create(t, "H-1", entities.PartTypeHand)

	_, err := f.workflow.Approve(ctx, part.ID, "cnc")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	part, err = f.workflow.Approve(ctx, part.ID, "HAND")
	require.NoError(t, err)
	assert.Equal(t, entities.CategoryHand, part.Category)
	assert.Equal(t, entities.StatusReviewed, part.Status)

	part, err = f.workflow.Assign(ctx, part.ID, " Sam ", false)
	require.NoError(t, err)
	assert.Equal(t, "Sam", utils.SafeDeref(part.Assigned))
	assert.Equal(t, entities.StatusInProgress, part.Status)
	require.NotNil(t, part.ClaimedDate)

	part, err = f.workflow.Unclaim(ctx, part.ID)
	require.NoError(t, err)
	assert.Nil(t, part.Assigned)
	assert.Nil(t, part.ClaimedDate)
	assert.Equal(t, entities.StatusReviewed, part.Status)

	_, err = f.workflow.Unclaim(ctx, part.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	part, err = f.workflow.Start(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusInProgress, part.Status)

	part, err = f.workflow.Complete(ctx, part.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, entities.CategoryCompleted, part.Category)
	assert.Nil(t, part.CompletedAmount)
	require.NotNil(t, part.CompletedAt)

	_, err = f.workflow.Assign(ctx, part.ID, "Sam", false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	part, err = f.workflow.Revert(ctx, part.ID, "misc")
	require.NoError(t, err)
	assert.Equal(t, entities.CategoryMisc, part.Category)
	assert.Equal(t, entities.StatusInProgress, part.Status)
	assert.Nil(t, part.CompletedAt)
}

func TestWorkflow_MiscApprovedStraightToCompleted(t *testing.T) {
	f := newFixture(t)
	part := f.create(t, "M-1", entities.PartTypeMisc)

	part, err := f.workflow.Approve(context.Background(), part.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, entities.CategoryCompleted, part.Category)
	assert.Equal(t, entities.StatusCompleted, part.Status)
	require.NotNil(t, part.CompletedAmount)
	assert.Equal(t, part.Amount, *part.CompletedAmount)
}

func TestWorkflow_NoOpDoesNotPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	part := f.create(t, "N-1", entities.PartTypeCNC)

	_, err := f.workflow.Approve(ctx, part.ID, "cnc")
	require.NoError(t, err)
	_, err = f.workflow.Approve(ctx, part.ID, "cnc")
	require.NoError(t, err)

	f.bus.Wait()
	assert.Equal(t, []string{"created", "approve"}, f.events.actions())
}

func TestWorkflow_ConcurrentAssignmentsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	part := f.create(t, "C-1", entities.PartTypeCNC)
	_, err := f.workflow.Approve(ctx, part.ID, "cnc")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.workflow.Assign(ctx, part.ID, fmt.Sprintf("user-%d", i), false)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	final, err := f.parts.GetPart(ctx, part.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusInProgress, final.Status)
	assert.Regexp(t, `^user-\d$`, utils.SafeDeref(final.Assigned))
}

// Assign and Complete racing on one part end in a state one of the two
// orderings produces: assign then complete, or complete then a rejected assign.
func TestWorkflow_ConcurrentAssignAndCompleteSerialize(t *testing.T) {
	for i := 0; i < 10; i++ {
		t.Run(fmt.Sprintf("run-%d", i), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			part := f.create(t, "AC-1", entities.PartTypeCNC)
			_, err := f.workflow.Approve(ctx, part.ID, "cnc")
			require.NoError(t, err)

			var wg sync.WaitGroup
			var assignErr, completeErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, assignErr = f.workflow.Assign(ctx, part.ID, "alice", false)
			}()
			go func() {
				defer wg.Done()
				_, completeErr = f.workflow.Complete(ctx, part.ID, nil)
			}()
			wg.Wait()

			require.NoError(t, completeErr)
			final, err := f.parts.GetPart(ctx, part.ID)
			require.NoError(t, err)
			assert.Equal(t, entities.CategoryCompleted, final.Category)
			assert.Equal(t, entities.StatusCompleted, final.Status)
			assert.Equal(t, final.Assigned == nil, final.ClaimedDate == nil)

			if assignErr != nil {
				// Complete ran first.
				assert.ErrorIs(t, assignErr, apperrors.ErrInvalidState)
				assert.Nil(t, final.Assigned)
				return
			}
			assert.Equal(t, "alice", utils.SafeDeref(final.Assigned))
		})
	}
}

func TestWorkflow_UnknownPart(t *testing.T) {
	f := newFixture(t)
	_, err := f.workflow.Start(context.Background(), 42)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
