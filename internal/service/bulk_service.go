package service

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"clearance/internal/content"
	"clearance/internal/middleware"
	"clearance/internal/models"
	"clearance/internal/notifications"
)

// BulkService applies one moderation operation across a selection of requests
// in a collection. Ineligible requests are skipped silently; the returned
// count covers only the requests that were actually acted on.
type BulkService struct {
	db          *gorm.DB
	moderation  *ModerationService
	collections *CollectionService
	publisher   content.Publisher
	notifier    Notifier
}

// NewBulkService returns a new BulkService.
func NewBulkService(db *gorm.DB, moderation *ModerationService, collections *CollectionService, publisher content.Publisher, notifier Notifier) *BulkService {
	return &BulkService{
		db:          db,
		moderation:  moderation,
		collections: collections,
		publisher:   publisher,
		notifier:    notifier,
	}
}

// selectRequests narrows the selection to requests that belong to the
// collection, fully preloaded for the eligibility predicates.
func (s *BulkService) selectRequests(ctx context.Context, collectionID uint, requestIDs []uint) (*models.ModerationCollection, []models.ModerationRequest, error) {
	collection, err := s.collections.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, nil, err
	}
	if len(requestIDs) == 0 {
		return collection, nil, nil
	}

	var requests []models.ModerationRequest
	err = requestPreloads(s.db.WithContext(ctx)).
		Where("collection_id = ? AND id IN ?", collectionID, requestIDs).
		Find(&requests).Error
	if err != nil {
		return nil, nil, err
	}
	return collection, requests, nil
}

// Approve applies an approval to every eligible selected request. Resulting
// actions are grouped by the step they satisfied, and each group's next
// reviewers get exactly one batched notification instead of one per request.
func (s *BulkService) Approve(ctx context.Context, collectionID uint, requestIDs []uint, byUser *models.User, message string) (int, error) {
	collection, requests, err := s.selectRequests(ctx, collectionID, requestIDs)
	if err != nil {
		return 0, err
	}
	workflow := &collection.Workflow

	// Parallel maps keyed by the satisfied step: the requests that landed
	// there, and one sample action carrying the routing target. Step id zero
	// collects approvals that satisfied no concrete step.
	groupRequests := make(map[uint][]uint)
	groupAction := make(map[uint]*models.ModerationRequestAction)
	approved := 0

	for i := range requests {
		request := &requests[i]
		if !request.UserCanTakeModerationAction(workflow, byUser) {
			continue
		}
		action, err := s.moderation.UpdateStatus(ctx, request.ID, models.ActionApproved, byUser, nil, message)
		if err != nil {
			return approved, err
		}
		approved++

		if action.ToUserID == nil && action.ToRoleID == nil {
			continue
		}
		var key uint
		if action.StepApprovedID != nil {
			key = *action.StepApprovedID
		}
		groupRequests[key] = append(groupRequests[key], request.ID)
		if _, ok := groupAction[key]; !ok {
			groupAction[key] = action
		}
	}

	for key, ids := range groupRequests {
		event := notifications.Event{
			Type:           notifications.EventReviewRequested,
			CollectionID:   collection.ID,
			CollectionName: collection.Name,
			RequestIDs:     ids,
			ByUserID:       byUser.ID,
		}
		if err := s.notifier.NotifyUsers(ctx, reviewerIDs(workflow, groupAction[key]), event); err != nil {
			middleware.Logger.WarnContext(ctx, "bulk approve notification failed", slog.String("error", err.Error()))
		}
	}

	if _, err := s.collections.ArchiveIfComplete(ctx, collectionID); err != nil {
		return approved, err
	}
	return approved, nil
}

// Reject sends every eligible selected request back to its author for rework.
// The author gets one batched notification for the whole selection.
func (s *BulkService) Reject(ctx context.Context, collectionID uint, requestIDs []uint, byUser *models.User, message string) (int, error) {
	collection, requests, err := s.selectRequests(ctx, collectionID, requestIDs)
	if err != nil {
		return 0, err
	}
	workflow := &collection.Workflow

	rejected := 0
	var rejectedIDs []uint
	for i := range requests {
		request := &requests[i]
		if !request.UserCanTakeModerationAction(workflow, byUser) {
			continue
		}
		if _, err := s.moderation.UpdateStatus(ctx, request.ID, models.ActionRejected, byUser, nil, message); err != nil {
			return rejected, err
		}
		rejected++
		rejectedIDs = append(rejectedIDs, request.ID)
	}

	if len(rejectedIDs) > 0 {
		_ = s.notifier.NotifyUser(ctx, collection.AuthorID, notifications.Event{
			Type:           notifications.EventRequestRejected,
			CollectionID:   collection.ID,
			CollectionName: collection.Name,
			RequestIDs:     rejectedIDs,
			ByUserID:       byUser.ID,
			Message:        message,
		})
	}

	if _, err := s.collections.ArchiveIfComplete(ctx, collectionID); err != nil {
		return rejected, err
	}
	return rejected, nil
}

// Resubmit restarts review for every eligible rejected request in the
// selection and notifies the first step's reviewers with a rework flag.
func (s *BulkService) Resubmit(ctx context.Context, collectionID uint, requestIDs []uint, byUser *models.User, message string) (int, error) {
	collection, requests, err := s.selectRequests(ctx, collectionID, requestIDs)
	if err != nil {
		return 0, err
	}
	workflow := &collection.Workflow

	resubmitted := 0
	var resubmittedIDs []uint
	var sample *models.ModerationRequestAction
	for i := range requests {
		request := &requests[i]
		if !request.UserCanResubmit(byUser) {
			continue
		}
		action, err := s.moderation.UpdateStatus(ctx, request.ID, models.ActionResubmitted, byUser, nil, message)
		if err != nil {
			return resubmitted, err
		}
		resubmitted++
		resubmittedIDs = append(resubmittedIDs, request.ID)
		if sample == nil {
			sample = action
		}
	}

	if sample != nil {
		_ = s.notifier.NotifyUsers(ctx, reviewerIDs(workflow, sample), notifications.Event{
			Type:           notifications.EventRequestResubmitted,
			CollectionID:   collection.ID,
			CollectionName: collection.Name,
			RequestIDs:     resubmittedIDs,
			ByUserID:       byUser.ID,
			Message:        message,
			Rework:         true,
		})
	}

	if _, err := s.collections.ArchiveIfComplete(ctx, collectionID); err != nil {
		return resubmitted, err
	}
	return resubmitted, nil
}

// Publish pushes every approved, publishable selected request live and closes
// it with a FINISHED action. Publishing is author-only.
func (s *BulkService) Publish(ctx context.Context, collectionID uint, requestIDs []uint, byUser *models.User) (int, error) {
	collection, requests, err := s.selectRequests(ctx, collectionID, requestIDs)
	if err != nil {
		return 0, err
	}
	if byUser == nil || byUser.ID != collection.AuthorID {
		return 0, models.NewForbiddenError("only the author may publish a collection's requests")
	}
	workflow := &collection.Workflow

	published := 0
	var publishedIDs []uint
	for i := range requests {
		request := &requests[i]
		if !request.IsApproved(workflow) || !request.VersionCanBePublished() {
			continue
		}
		if err := s.publisher.Publish(ctx, request.VersionID, byUser.ID); err != nil {
			middleware.Logger.WarnContext(ctx, "publish failed",
				slog.Uint64("request_id", uint64(request.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, err := s.moderation.UpdateStatus(ctx, request.ID, models.ActionFinished, byUser, nil, ""); err != nil {
			return published, err
		}
		published++
		publishedIDs = append(publishedIDs, request.ID)
	}

	if len(publishedIDs) > 0 {
		_ = s.notifier.NotifyUser(ctx, collection.AuthorID, notifications.Event{
			Type:           notifications.EventCollectionPublished,
			CollectionID:   collection.ID,
			CollectionName: collection.Name,
			RequestIDs:     publishedIDs,
			ByUserID:       byUser.ID,
		})
	}

	if _, err := s.collections.ArchiveIfComplete(ctx, collectionID); err != nil {
		return published, err
	}
	return published, nil
}

// Delete removes the selected requests and their tree nodes. Author-only, and
// deliberately does not run the archive check: emptying a collection must not
// archive it.
func (s *BulkService) Delete(ctx context.Context, collectionID uint, requestIDs []uint, byUser *models.User) (int, error) {
	collection, requests, err := s.selectRequests(ctx, collectionID, requestIDs)
	if err != nil {
		return 0, err
	}
	if byUser == nil || byUser.ID != collection.AuthorID {
		return 0, models.NewForbiddenError("only the author may remove requests from a collection")
	}

	deleted := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range requests {
			request := &requests[i]
			if err := tx.Where("moderation_request_id = ?", request.ID).
				Delete(&models.ModerationRequestTreeNode{}).Error; err != nil {
				return err
			}
			if err := tx.Where("request_id = ?", request.ID).
				Delete(&models.ModerationRequestAction{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.ModerationRequest{}, request.ID).Error; err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
