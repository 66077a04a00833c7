package service

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"clearance/internal/models"
)

func TestApprovalChain_TwoRequiredSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := f.newVersion(t, f.author.ID, nil)
	requestIDs := f.addAndSubmit(t, v)
	requestID := requestIDs[0]

	request := f.reloadRequest(t, requestID)
	workflow := &request.Collection.Workflow
	require.True(t, request.IsActive)
	require.Len(t, request.PendingRequiredSteps(workflow), 2)
	require.False(t, request.IsApproved(workflow))

	// First reviewer approves: exactly the second step remains.
	action, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionApproved, &f.reviewer1, nil, "looks good")
	require.NoError(t, err)
	require.NotNil(t, action.StepApprovedID)
	require.NotNil(t, action.ToRoleID)

	request = f.reloadRequest(t, requestID)
	pending := request.PendingRequiredSteps(workflow)
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].Order)
	require.False(t, request.IsApproved(workflow))

	// Second reviewer approves: fully approved, no next role.
	action, err = f.moderation.UpdateStatus(ctx, requestID, models.ActionApproved, &f.reviewer2, nil, "")
	require.NoError(t, err)
	require.Nil(t, action.ToRoleID)

	request = f.reloadRequest(t, requestID)
	require.Empty(t, request.PendingRequiredSteps(workflow))
	require.True(t, request.IsApproved(workflow))
}

func TestRejection_ArchivesHistoryAndResetsPendingSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := f.newVersion(t, f.author.ID, nil)
	requestID := f.addAndSubmit(t, v)[0]

	_, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionApproved, &f.reviewer1, nil, "")
	require.NoError(t, err)

	action, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionRejected, &f.reviewer2, nil, "needs work")
	require.NoError(t, err)
	require.Nil(t, action.ToRoleID)

	request := f.reloadRequest(t, requestID)
	workflow := &request.Collection.Workflow
	require.True(t, request.IsActive)
	require.True(t, request.IsRejected())

	// Every action except the rejection itself is archived.
	for _, a := range request.SortedActions() {
		if a.Action == models.ActionRejected {
			require.False(t, a.IsArchived)
			continue
		}
		require.True(t, a.IsArchived, "action %s should be archived", a.Action)
	}

	// The pending-step computation is fully reset.
	require.Len(t, request.PendingSteps(workflow), 2)

	// Nobody can approve; only the author may resubmit.
	require.False(t, request.UserCanTakeModerationAction(workflow, &f.reviewer1))
	require.False(t, request.UserCanTakeModerationAction(workflow, &f.reviewer2))
	require.True(t, request.UserCanResubmit(&f.author))
	require.False(t, request.UserCanResubmit(&f.reviewer1))
}

func TestResubmit_RoutesBackToFirstStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := f.newVersion(t, f.author.ID, nil)
	requestID := f.addAndSubmit(t, v)[0]

	_, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionRejected, &f.reviewer1, nil, "")
	require.NoError(t, err)

	action, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionResubmitted, &f.author, nil, "fixed")
	require.NoError(t, err)
	require.NotNil(t, action.ToRoleID)

	request := f.reloadRequest(t, requestID)
	workflow := &request.Collection.Workflow
	first := workflow.FirstStep()
	require.Equal(t, first.RoleID, *action.ToRoleID)
	require.True(t, request.IsActive)
	require.False(t, request.IsRejected())
	require.True(t, request.UserCanTakeModerationAction(workflow, &f.reviewer1))
}

func TestUpdateStatus_CancelDeactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := f.newVersion(t, f.author.ID, nil)
	requestID := f.addAndSubmit(t, v)[0]

	_, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionCancelled, &f.author, nil, "")
	require.NoError(t, err)

	request := f.reloadRequest(t, requestID)
	require.False(t, request.IsActive)
}

func TestUpdateStatus_ExplicitHandover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := f.newVersion(t, f.author.ID, nil)
	requestID := f.addAndSubmit(t, v)[0]

	// First reviewer approves and hands over explicitly to the second.
	action, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionApproved, &f.reviewer1, &f.reviewer2, "over to you")
	require.NoError(t, err)
	require.NotNil(t, action.ToUserID)
	require.Equal(t, f.reviewer2.ID, *action.ToUserID)
	require.NotNil(t, action.ToRoleID)

	request := f.reloadRequest(t, requestID)
	step := request.Collection.Workflow.StepForRole(*action.ToRoleID)
	require.NotNil(t, step)
	require.Equal(t, 2, step.Order)
}

func TestUpdateStatus_ExplicitHandoverToNonReviewerFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v := f.newVersion(t, f.author.ID, nil)
	requestID := f.addAndSubmit(t, v)[0]

	_, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionApproved, &f.reviewer1, &f.author, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a reviewer")
}

func TestUpdateStatus_UnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.moderation.UpdateStatus(context.Background(), 9999, models.ActionApproved, &f.reviewer1, nil, "")
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestComplianceNumber_MintedOnceOnFullApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Model(&models.Workflow{}).
		Where("id = ?", f.workflow.ID).
		Updates(map[string]interface{}{
			"requires_compliance_number": true,
			"compliance_number_backend":  ComplianceBackendSequential,
		}).Error)

	v := f.newVersion(t, f.author.ID, nil)
	requestID := f.addAndSubmit(t, v)[0]

	_, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionApproved, &f.reviewer1, nil, "")
	require.NoError(t, err)
	request := f.reloadRequest(t, requestID)
	require.Nil(t, request.ComplianceNumber, "number must not be minted before full approval")

	_, err = f.moderation.UpdateStatus(ctx, requestID, models.ActionApproved, &f.reviewer2, nil, "")
	require.NoError(t, err)
	request = f.reloadRequest(t, requestID)
	require.NotNil(t, request.ComplianceNumber)
	minted := *request.ComplianceNumber

	// A later action must never change an already minted number.
	_, err = f.moderation.UpdateStatus(ctx, requestID, models.ActionFinished, &f.author, nil, "")
	require.NoError(t, err)
	request = f.reloadRequest(t, requestID)
	require.NotNil(t, request.ComplianceNumber)
	require.Equal(t, minted, *request.ComplianceNumber)
}

func TestComplianceNumber_FallsBackToConfiguredDefaultBackend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.moderation.WithDefaultComplianceBackend(ComplianceBackendSequential)

	// The workflow wants a number but names no backend of its own.
	require.NoError(t, f.db.Model(&models.Workflow{}).
		Where("id = ?", f.workflow.ID).
		Update("requires_compliance_number", true).Error)

	v := f.newVersion(t, f.author.ID, nil)
	requestID := f.addAndSubmit(t, v)[0]

	_, err := f.moderation.UpdateStatus(ctx, requestID, models.ActionApproved, &f.reviewer1, nil, "")
	require.NoError(t, err)
	_, err = f.moderation.UpdateStatus(ctx, requestID, models.ActionApproved, &f.reviewer2, nil, "")
	require.NoError(t, err)

	request := f.reloadRequest(t, requestID)
	require.NotNil(t, request.ComplianceNumber)
	require.Equal(t, strconv.FormatUint(uint64(requestID), 10), *request.ComplianceNumber)
}

func TestStepOrdering_LaterReviewerCannotJumpAhead(t *testing.T) {
	f := newFixture(t)

	v := f.newVersion(t, f.author.ID, nil)
	requestID := f.addAndSubmit(t, v)[0]

	request := f.reloadRequest(t, requestID)
	workflow := &request.Collection.Workflow
	require.False(t, request.UserCanTakeModerationAction(workflow, &f.reviewer2))
	require.True(t, request.UserCanTakeModerationAction(workflow, &f.reviewer1))
}
