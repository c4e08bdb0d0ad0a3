package segment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proposalForReview(t *testing.T) Plan {
	t.Helper()

	analyses := pages(6)
	analyses[3] = blankPage(3)

	plan, err := Segment(analyses, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}}, plan.Partition())
	return plan
}

func TestAutoConfirmReturnsProposal(t *testing.T) {
	plan := proposalForReview(t)
	revised, err := AutoConfirm{}.Review(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, plan.Partition(), revised)
	require.NoError(t, ValidateRevision(plan, revised, DefaultConfig()))
}

func TestValidateRevisionMovedBoundary(t *testing.T) {
	plan := proposalForReview(t)
	// Moving the boundary one page earlier keeps the same page sequence.
	revised := [][]int{{0, 1}, {2, 3, 4, 5}}
	require.NoError(t, ValidateRevision(plan, revised, DefaultConfig()))
}

func TestValidateRevisionMergedDocuments(t *testing.T) {
	plan := proposalForReview(t)
	require.NoError(t, ValidateRevision(plan, [][]int{{0, 1, 2, 3, 4, 5}}, DefaultConfig()))
}

func TestValidateRevisionRejectsLostPage(t *testing.T) {
	plan := proposalForReview(t)
	err := ValidateRevision(plan, [][]int{{0, 1, 2}, {3, 4}}, DefaultConfig())
	require.Error(t, err)
}

func TestValidateRevisionRejectsDuplicatedPage(t *testing.T) {
	plan := proposalForReview(t)
	err := ValidateRevision(plan, [][]int{{0, 1, 2, 3}, {3, 4, 5}}, DefaultConfig())
	require.Error(t, err)
}

func TestValidateRevisionRejectsReorderedPages(t *testing.T) {
	plan := proposalForReview(t)
	err := ValidateRevision(plan, [][]int{{0, 2, 1}, {3, 4, 5}}, DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alters the page sequence")
}

func TestValidateRevisionRejectsEmptyDocument(t *testing.T) {
	plan := proposalForReview(t)
	err := ValidateRevision(plan, [][]int{{0, 1, 2, 3, 4, 5}, {}}, DefaultConfig())
	require.Error(t, err)
}

func TestValidateRevisionEnforcesMinimumFloor(t *testing.T) {
	plan := proposalForReview(t)
	cfg := DefaultConfig()
	cfg.MinimumPages = 2

	// Interior document below the floor is rejected.
	err := ValidateRevision(plan, [][]int{{0}, {1, 2, 3, 4, 5}}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum")

	// Trailing document below the floor is exempt by default.
	require.NoError(t, ValidateRevision(plan, [][]int{{0, 1, 2, 3, 4}, {5}}, cfg))

	cfg.EnforceMinimumOnTail = true
	err = ValidateRevision(plan, [][]int{{0, 1, 2, 3, 4}, {5}}, cfg)
	require.Error(t, err)
}

func TestValidateRevisionIgnoresOriginalTriggers(t *testing.T) {
	// The reviewer may place boundaries where no signal fired.
	plan := proposalForReview(t)
	require.NoError(t, ValidateRevision(plan, [][]int{{0}, {1}, {2}, {3}, {4}, {5}}, DefaultConfig()))
}

func TestApplyRevision(t *testing.T) {
	analyses := pages(6)
	analyses[3] = blankPage(3)

	cfg := DefaultConfig()
	cfg.DeleteBlankPages = true
	plan, err := Segment(analyses, cfg)
	require.NoError(t, err)
	require.Equal(t, [][]int{{0, 1, 2}, {4, 5}}, plan.Partition())

	revised := [][]int{{0, 1}, {2, 4, 5}}
	require.NoError(t, ValidateRevision(plan, revised, cfg))

	applied := ApplyRevision(plan, revised)
	require.Len(t, applied.Documents, 2)
	assert.Equal(t, []int{0, 1}, applied.Documents[0].Pages)
	assert.Equal(t, []int{2, 4, 5}, applied.Documents[1].Pages)
	assert.Equal(t, TriggerNone, applied.Documents[0].Trigger)
	assert.Equal(t, TriggerNone, applied.Documents[1].Trigger)
	// Dropped pages survive the revision.
	require.Len(t, applied.Dropped, 1)
	assert.Equal(t, 3, applied.Dropped[0].Index)
	require.NoError(t, Verify(applied, analyses))
}
