package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"clearance/internal/models"
	"clearance/internal/notifications"
)

func TestCreateCollection_NameLimit(t *testing.T) {
	f := newFixture(t)
	f.collections.NameLengthLimit = 10

	_, err := f.collections.CreateCollection(context.Background(), strings.Repeat("x", 11), &f.author, f.workflow.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "limited to 10")

	_, err = f.collections.CreateCollection(context.Background(), strings.Repeat("x", 10), &f.author, f.workflow.ID)
	require.NoError(t, err)
}

func TestAddVersion_GetOrCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.newVersion(t, f.author.ID, nil)

	request1, added1, err := f.collections.AddVersion(ctx, f.collection.ID, v.ID, &f.author, false)
	require.NoError(t, err)
	require.Equal(t, 1, added1)

	request2, added2, err := f.collections.AddVersion(ctx, f.collection.ID, v.ID, &f.author, false)
	require.NoError(t, err)
	require.Equal(t, 0, added2)
	require.Equal(t, request1.ID, request2.ID)

	var count int64
	require.NoError(t, f.db.Model(&models.ModerationRequest{}).
		Where("collection_id = ?", f.collection.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestAddVersion_NewRequestIsBornActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.newVersion(t, f.author.ID, nil)

	request, _, err := f.collections.AddVersion(ctx, f.collection.ID, v.ID, &f.author, false)
	require.NoError(t, err)
	require.True(t, f.reloadRequest(t, request.ID).IsActive)

	// The cancel cascade reaches requests that never saw a reviewer.
	require.NoError(t, f.collections.Cancel(ctx, f.collection.ID, &f.author))
	reloaded := f.reloadRequest(t, request.ID)
	require.False(t, reloaded.IsActive)
	require.Equal(t, models.ActionCancelled, reloaded.LastAction().Action)
}

func TestAddVersion_ClaimedByAnotherCollectionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.newVersion(t, f.author.ID, nil)

	_, _, err := f.collections.AddVersion(ctx, f.collection.ID, v.ID, &f.author, false)
	require.NoError(t, err)

	other, err := f.collections.CreateCollection(ctx, "Second batch", &f.author, f.workflow.ID)
	require.NoError(t, err)

	_, _, err = f.collections.AddVersion(ctx, other.ID, v.ID, &f.author, false)
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	require.Contains(t, err.Error(), "another collection")

	// Cancelling the first batch releases the version for re-use.
	require.NoError(t, f.collections.Cancel(ctx, f.collection.ID, &f.author))
	_, added, err := f.collections.AddVersion(ctx, other.ID, v.ID, &f.author, false)
	require.NoError(t, err)
	require.Equal(t, 1, added)
}

func TestAddVersion_LockedRootFails(t *testing.T) {
	f := newFixture(t)
	// A draft owned by someone else is locked away from the author.
	v := f.newVersion(t, f.reviewer1.ID, nil)

	_, _, err := f.collections.AddVersion(context.Background(), f.collection.ID, v.ID, &f.author, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "locked")
}

func TestAddVersion_WithChildrenSkipsLockedOnes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := f.newVersion(t, f.author.ID, nil)
	ownChild := f.newVersion(t, f.author.ID, &root.ID)
	lockedChild := f.newVersion(t, f.reviewer1.ID, &root.ID)
	grandChild := f.newVersion(t, f.author.ID, &ownChild.ID)

	request, added, err := f.collections.AddVersion(ctx, f.collection.ID, root.ID, &f.author, true)
	require.NoError(t, err)
	// Root, own child and grandchild; the locked child is skipped silently.
	require.Equal(t, 3, added)

	var requests []models.ModerationRequest
	require.NoError(t, f.db.Where("collection_id = ?", f.collection.ID).Find(&requests).Error)
	require.Len(t, requests, 3)
	versionIDs := map[uint]bool{}
	for _, r := range requests {
		versionIDs[r.VersionID] = true
	}
	require.True(t, versionIDs[root.ID])
	require.True(t, versionIDs[ownChild.ID])
	require.True(t, versionIDs[grandChild.ID])
	require.False(t, versionIDs[lockedChild.ID])

	// Tree nodes mirror the nesting: one root node, children pointing at it.
	var nodes []models.ModerationRequestTreeNode
	require.NoError(t, f.db.Where("collection_id = ?", f.collection.ID).Find(&nodes).Error)
	require.Len(t, nodes, 3)
	roots := 0
	for _, n := range nodes {
		if n.IsRoot() {
			roots++
			require.Equal(t, request.ID, n.ModerationRequestID)
		}
	}
	require.Equal(t, 1, roots)
}

func TestAddVersion_LockedCollectionRefusesNewVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := f.newVersion(t, f.author.ID, nil)
	f.addAndSubmit(t, v)

	other := f.newVersion(t, f.author.ID, nil)
	_, _, err := f.collections.AddVersion(ctx, f.collection.ID, other.ID, &f.author, false)
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CONFLICT", appErr.Code)
}

func TestSubmitForReview_FansOutStartedActions(t *testing.T) {
	f := newFixture(t)

	v1 := f.newVersion(t, f.author.ID, nil)
	v2 := f.newVersion(t, f.author.ID, nil)
	requestIDs := f.addAndSubmit(t, v1, v2)

	collection := f.reloadCollection(t)
	require.Equal(t, models.StatusInReview, collection.Status)

	for _, id := range requestIDs {
		request := f.reloadRequest(t, id)
		require.True(t, request.IsActive)
		first := request.FirstAction()
		require.NotNil(t, first)
		require.Equal(t, models.ActionStarted, first.Action)
		require.NotNil(t, first.ToRoleID)
	}

	// One batched reviewer notification covering both requests.
	reviewEvents := f.notifier.eventsOfType(notifications.EventReviewRequested)
	require.Len(t, reviewEvents, 1)
	require.Equal(t, f.reviewer1.ID, reviewEvents[0].userID)
	require.Len(t, reviewEvents[0].event.RequestIDs, 2)
	require.False(t, reviewEvents[0].event.Rework)
}

func TestSubmitForReview_OptionalOnlyWorkflowApprovesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role := models.Role{Name: "Optional reviewer", UserID: &f.reviewer1.ID}
	require.NoError(t, f.db.Create(&role).Error)
	workflow := models.Workflow{Name: "Optional only"}
	require.NoError(t, f.db.Create(&workflow).Error)
	require.NoError(t, f.db.Create(&models.WorkflowStep{WorkflowID: workflow.ID, RoleID: role.ID, IsRequired: false, Order: 1}).Error)

	collection, err := f.collections.CreateCollection(ctx, "Optional batch", &f.author, workflow.ID)
	require.NoError(t, err)
	v := f.newVersion(t, f.author.ID, nil)
	request, _, err := f.collections.AddVersion(ctx, collection.ID, v.ID, &f.author, false)
	require.NoError(t, err)
	require.NoError(t, f.collections.SubmitForReview(ctx, collection.ID, &f.author, nil))

	// No required steps pending: the request counts as approved while active.
	reloaded := f.reloadRequest(t, request.ID)
	require.True(t, reloaded.IsActive)
	require.True(t, reloaded.IsApproved(&reloaded.Collection.Workflow))

	archived, err := f.collections.ArchiveIfComplete(ctx, collection.ID)
	require.NoError(t, err)
	require.True(t, archived)
}

func TestSubmitForReview_OnlyAuthorWithRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Empty collection cannot be submitted.
	err := f.collections.SubmitForReview(ctx, f.collection.ID, &f.author, nil)
	require.Error(t, err)

	v := f.newVersion(t, f.author.ID, nil)
	_, _, err = f.collections.AddVersion(ctx, f.collection.ID, v.ID, &f.author, false)
	require.NoError(t, err)

	// Non-author cannot submit.
	err = f.collections.SubmitForReview(ctx, f.collection.ID, &f.reviewer1, nil)
	require.Error(t, err)

	require.NoError(t, f.collections.SubmitForReview(ctx, f.collection.ID, &f.author, nil))

	// Resubmitting a collection already in review fails.
	err = f.collections.SubmitForReview(ctx, f.collection.ID, &f.author, nil)
	require.Error(t, err)
}

func TestCancel_CascadesToActiveRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v1 := f.newVersion(t, f.author.ID, nil)
	v2 := f.newVersion(t, f.author.ID, nil)
	requestIDs := f.addAndSubmit(t, v1, v2)

	require.NoError(t, f.collections.Cancel(ctx, f.collection.ID, &f.author))

	collection := f.reloadCollection(t)
	require.Equal(t, models.StatusCancelled, collection.Status)

	for _, id := range requestIDs {
		request := f.reloadRequest(t, id)
		require.False(t, request.IsActive)
		last := request.LastAction()
		require.Equal(t, models.ActionCancelled, last.Action)
	}

	// Terminal status: a second cancel is refused.
	require.Error(t, f.collections.Cancel(ctx, f.collection.ID, &f.author))
}

func TestCancel_AuthorOnly(t *testing.T) {
	f := newFixture(t)
	err := f.collections.Cancel(context.Background(), f.collection.ID, &f.reviewer1)
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "FORBIDDEN", appErr.Code)
}

func TestArchiveIfComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v1 := f.newVersion(t, f.author.ID, nil)
	v2 := f.newVersion(t, f.author.ID, nil)
	requestIDs := f.addAndSubmit(t, v1, v2)

	// One approved request, one untouched: no archive.
	_, err := f.moderation.UpdateStatus(ctx, requestIDs[0], models.ActionApproved, &f.reviewer1, nil, "")
	require.NoError(t, err)
	_, err = f.moderation.UpdateStatus(ctx, requestIDs[0], models.ActionApproved, &f.reviewer2, nil, "")
	require.NoError(t, err)

	archived, err := f.collections.ArchiveIfComplete(ctx, f.collection.ID)
	require.NoError(t, err)
	require.False(t, archived)
	require.Equal(t, models.StatusInReview, f.reloadCollection(t).Status)

	// Approve the second request and re-run the post-action hook.
	_, err = f.moderation.UpdateStatus(ctx, requestIDs[1], models.ActionApproved, &f.reviewer1, nil, "")
	require.NoError(t, err)
	_, err = f.moderation.UpdateStatus(ctx, requestIDs[1], models.ActionApproved, &f.reviewer2, nil, "")
	require.NoError(t, err)

	archived, err = f.collections.ArchiveIfComplete(ctx, f.collection.ID)
	require.NoError(t, err)
	require.True(t, archived)
	require.Equal(t, models.StatusArchived, f.reloadCollection(t).Status)

	// Idempotent: archived collections stay archived, no transition reported.
	archived, err = f.collections.ArchiveIfComplete(ctx, f.collection.ID)
	require.NoError(t, err)
	require.False(t, archived)
}

func TestUpdateCollection_WorkflowLockedOnceInReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := models.Workflow{Name: "Legal review"}
	require.NoError(t, f.db.Create(&other).Error)

	v := f.newVersion(t, f.author.ID, nil)
	f.addAndSubmit(t, v)

	_, err := f.collections.UpdateCollection(ctx, f.collection.ID, &f.author, "renamed", other.ID)
	require.Error(t, err)

	// Renaming alone is still allowed.
	updated, err := f.collections.UpdateCollection(ctx, f.collection.ID, &f.author, "renamed", 0)
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Name)
}
