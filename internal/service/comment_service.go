package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"clearance/internal/featureflags"
	"clearance/internal/models"
)

// CommentService manages collection and per-action request comments. Both
// surfaces are gated by feature flags so deployments can run moderation
// without the discussion layer.
type CommentService struct {
	db    *gorm.DB
	flags *featureflags.Manager
}

// NewCommentService returns a new CommentService.
func NewCommentService(db *gorm.DB, flags *featureflags.Manager) *CommentService {
	return &CommentService{db: db, flags: flags}
}

// AddCollectionComment attaches a note to a collection. Anyone who can view
// the collection's comments may write one.
func (s *CommentService) AddCollectionComment(ctx context.Context, collectionID uint, byUser *models.User, message string) (*models.CollectionComment, error) {
	if !s.flags.Enabled(featureflags.FlagCollectionComments, byUser.ID) {
		return nil, models.NewForbiddenError("collection comments are disabled")
	}
	if message == "" {
		return nil, models.NewValidationError("comment message must not be empty")
	}

	collection, err := getCollection(s.db.WithContext(ctx), collectionID)
	if err != nil {
		return nil, err
	}
	if !canViewCollectionComments(collection, byUser) {
		return nil, models.NewForbiddenError("not allowed to comment on this collection")
	}

	comment := &models.CollectionComment{
		CollectionID: collection.ID,
		AuthorID:     byUser.ID,
		Message:      message,
	}
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// ListCollectionComments returns a collection's comments in posting order.
func (s *CommentService) ListCollectionComments(ctx context.Context, collectionID uint, byUser *models.User) ([]models.CollectionComment, error) {
	if !s.flags.Enabled(featureflags.FlagCollectionComments, byUser.ID) {
		return nil, models.NewForbiddenError("collection comments are disabled")
	}
	collection, err := getCollection(s.db.WithContext(ctx), collectionID)
	if err != nil {
		return nil, err
	}
	if !canViewCollectionComments(collection, byUser) {
		return nil, models.NewForbiddenError("not allowed to view this collection's comments")
	}

	var comments []models.CollectionComment
	err = s.db.WithContext(ctx).
		Preload("Author").
		Where("collection_id = ?", collectionID).
		Order("id ASC").
		Find(&comments).Error
	return comments, err
}

// AddRequestComment pins a note to one action of a request, so the discussion
// stays attached to the point in the review it refers to.
func (s *CommentService) AddRequestComment(ctx context.Context, actionID uint, byUser *models.User, message string) (*models.RequestComment, error) {
	if !s.flags.Enabled(featureflags.FlagRequestComments, byUser.ID) {
		return nil, models.NewForbiddenError("request comments are disabled")
	}
	if message == "" {
		return nil, models.NewValidationError("comment message must not be empty")
	}

	var action models.ModerationRequestAction
	if err := s.db.WithContext(ctx).First(&action, actionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("action", actionID)
		}
		return nil, err
	}
	request, err := getRequest(s.db.WithContext(ctx), action.RequestID)
	if err != nil {
		return nil, err
	}
	if !request.UserCanViewComments(&request.Collection.Workflow, byUser) {
		return nil, models.NewForbiddenError("not allowed to comment on this request")
	}

	comment := &models.RequestComment{
		ActionID: action.ID,
		AuthorID: byUser.ID,
		Message:  message,
	}
	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// ListRequestComments returns every comment on a request across its actions.
func (s *CommentService) ListRequestComments(ctx context.Context, requestID uint, byUser *models.User) ([]models.RequestComment, error) {
	if !s.flags.Enabled(featureflags.FlagRequestComments, byUser.ID) {
		return nil, models.NewForbiddenError("request comments are disabled")
	}
	request, err := getRequest(s.db.WithContext(ctx), requestID)
	if err != nil {
		return nil, err
	}
	if !request.UserCanViewComments(&request.Collection.Workflow, byUser) {
		return nil, models.NewForbiddenError("not allowed to view this request's comments")
	}

	var comments []models.RequestComment
	err = s.db.WithContext(ctx).
		Preload("Author").
		Joins("JOIN moderation_request_actions ON moderation_request_actions.id = request_comments.action_id").
		Where("moderation_request_actions.request_id = ?", requestID).
		Order("request_comments.id ASC").
		Find(&comments).Error
	return comments, err
}

// canViewCollectionComments mirrors the request-level predicate at the
// collection scope: the author or anyone involved in the workflow.
func canViewCollectionComments(collection *models.ModerationCollection, u *models.User) bool {
	if u == nil {
		return false
	}
	if u.ID == collection.AuthorID {
		return true
	}
	for _, step := range collection.Workflow.SortedSteps() {
		if step.Role.UserIsAssigned(u) {
			return true
		}
	}
	return false
}
