package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"clearance/internal/models"
	"clearance/internal/notifications"
	"clearance/internal/observability"
)

// Notifier delivers moderation events to users. Implementations are best
// effort; delivery failures never roll back a state transition.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uint, event notifications.Event) error
	NotifyUsers(ctx context.Context, userIDs []uint, event notifications.Event) error
}

// ModerationService owns the per-request state machine. UpdateStatus is the
// single mutating entry point; eligibility is checked by callers with the
// model predicates, so the service only fails on data invariant problems.
type ModerationService struct {
	db               *gorm.DB
	complianceNumber ComplianceNumberFunc
	defaultBackend   string
	transitions      *observability.TransitionLogger
}

// NewModerationService returns a new ModerationService.
func NewModerationService(db *gorm.DB) *ModerationService {
	return &ModerationService{
		db:          db,
		transitions: observability.NewTransitionLogger(),
	}
}

// WithComplianceNumberFunc overrides the compliance number strategy; used by
// tests and deployments with bespoke numbering schemes.
func (s *ModerationService) WithComplianceNumberFunc(fn ComplianceNumberFunc) *ModerationService {
	s.complianceNumber = fn
	return s
}

// WithDefaultComplianceBackend sets the backend used for workflows that do
// not name one of their own.
func (s *ModerationService) WithDefaultComplianceBackend(name string) *ModerationService {
	s.defaultBackend = name
	return s
}

func requestPreloads(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Actions").
		Preload("Version").
		Preload("Author").
		Preload("Collection").
		Preload("Collection.Workflow.Steps.Role.User").
		Preload("Collection.Workflow.Steps.Role.Group.Users")
}

// GetRequest loads a request with everything the state machine needs: the
// action log, the version, and the collection's workflow down to role members.
func (s *ModerationService) GetRequest(ctx context.Context, id uint) (*models.ModerationRequest, error) {
	return getRequest(s.db.WithContext(ctx), id)
}

func getRequest(db *gorm.DB, id uint) (*models.ModerationRequest, error) {
	var request models.ModerationRequest
	if err := requestPreloads(db).First(&request, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("moderation request", id)
		}
		return nil, err
	}
	return &request, nil
}

// UpdateStatus applies one action to a request atomically: the archival wipe
// on rejection, the active-flag recomputation, the new action row with its
// resolved next reviewer, and compliance number minting when the request just
// cleared its last required step.
func (s *ModerationService) UpdateStatus(
	ctx context.Context,
	requestID uint,
	action models.ModerationAction,
	byUser *models.User,
	toUser *models.User,
	message string,
) (*models.ModerationRequestAction, error) {
	var created *models.ModerationRequestAction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = s.updateStatus(tx, requestID, action, byUser, toUser, message)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.ModerationActionsTotal.WithLabelValues(string(action)).Inc()
	s.transitions.LogAction(ctx, requestID, string(action), byUser.ID, nil)
	return created, nil
}

// updateStatus is the transaction body, shared with the collection and bulk
// services so multi-request operations commit as one unit.
func (s *ModerationService) updateStatus(
	tx *gorm.DB,
	requestID uint,
	action models.ModerationAction,
	byUser *models.User,
	toUser *models.User,
	message string,
) (*models.ModerationRequestAction, error) {
	request, err := getRequest(tx, requestID)
	if err != nil {
		return nil, err
	}
	workflow := &request.Collection.Workflow

	// The next reviewer and the satisfied step are resolved against the
	// pending set as it stands before this action lands.
	var stepApprovedID *uint
	if action == models.ActionApproved {
		if step := request.UserGetStep(workflow, byUser); step != nil {
			stepApprovedID = &step.ID
		}
	}
	toRoleID, err := resolveNextRole(request, workflow, action, byUser, toUser)
	if err != nil {
		return nil, err
	}

	if action == models.ActionRejected {
		// Invalidate the whole satisfaction history. The rows stay for audit;
		// only their contribution to pending-step computation is wiped.
		if err := tx.Model(&models.ModerationRequestAction{}).
			Where("request_id = ?", request.ID).
			Update("is_archived", true).Error; err != nil {
			return nil, err
		}
	}

	isActive := action.KeepsRequestActive()
	if err := tx.Model(&models.ModerationRequest{}).
		Where("id = ?", request.ID).
		Update("is_active", isActive).Error; err != nil {
		return nil, err
	}

	newAction := &models.ModerationRequestAction{
		RequestID:      request.ID,
		Action:         action,
		ByUserID:       byUser.ID,
		ToRoleID:       toRoleID,
		StepApprovedID: stepApprovedID,
		Message:        message,
	}
	if toUser != nil {
		newAction.ToUserID = &toUser.ID
	}
	if err := tx.Create(newAction).Error; err != nil {
		return nil, err
	}

	request.IsActive = isActive
	if action == models.ActionRejected {
		for i := range request.Actions {
			request.Actions[i].IsArchived = true
		}
	}
	request.Actions = append(request.Actions, *newAction)

	if request.ShouldSetComplianceNumber(workflow) {
		number, err := s.mintComplianceNumber(request, workflow)
		if err != nil {
			return nil, err
		}
		if err := tx.Model(&models.ModerationRequest{}).
			Where("id = ? AND compliance_number IS NULL", request.ID).
			Update("compliance_number", number).Error; err != nil {
			return nil, fmt.Errorf("persist compliance number: %w", err)
		}
	}

	return newAction, nil
}

func (s *ModerationService) mintComplianceNumber(request *models.ModerationRequest, workflow *models.Workflow) (string, error) {
	if s.complianceNumber != nil {
		return s.complianceNumber(request, workflow), nil
	}
	name := workflow.ComplianceNumberBackend
	if name == "" {
		name = s.defaultBackend
	}
	return mintWithBackend(name, request, workflow)
}

// resolveNextRole decides who is up next, recorded on the action at creation
// time. Precedence: rejections route nowhere (the author must resubmit), an
// explicit handover targets the step that user occupies, start/resubmit go to
// the first step, and an approval advances past the acting user's step.
func resolveNextRole(
	request *models.ModerationRequest,
	workflow *models.Workflow,
	action models.ModerationAction,
	byUser *models.User,
	toUser *models.User,
) (*uint, error) {
	switch {
	case action == models.ActionRejected:
		return nil, nil
	case toUser != nil:
		step := request.UserGetStep(workflow, toUser)
		if step == nil {
			return nil, models.NewValidationError("assigned user is not a reviewer on any pending step")
		}
		return &step.RoleID, nil
	case action == models.ActionStarted || action == models.ActionResubmitted:
		first := workflow.FirstStep()
		if first == nil {
			return nil, nil
		}
		return &first.RoleID, nil
	default:
		current := request.UserGetStep(workflow, byUser)
		if current == nil {
			return nil, nil
		}
		next := workflow.NextStep(current)
		if next == nil {
			return nil, nil
		}
		return &next.RoleID, nil
	}
}

// Reviewers resolves the concrete users behind an action's routing target,
// for callers that deliver their own notifications.
func (s *ModerationService) Reviewers(workflow *models.Workflow, action *models.ModerationRequestAction) []uint {
	return reviewerIDs(workflow, action)
}

// reviewerIDs resolves the concrete users behind an action's routing target.
func reviewerIDs(workflow *models.Workflow, action *models.ModerationRequestAction) []uint {
	if action.ToUserID != nil {
		return []uint{*action.ToUserID}
	}
	if action.ToRoleID == nil {
		return nil
	}
	for _, step := range workflow.SortedSteps() {
		if step.RoleID != *action.ToRoleID {
			continue
		}
		members := step.Role.Members()
		ids := make([]uint, 0, len(members))
		for i := range members {
			ids = append(ids, members[i].ID)
		}
		return ids
	}
	return nil
}
