package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"clearance/internal/content"
	"clearance/internal/models"
	"clearance/internal/notifications"
	"clearance/internal/observability"
)

// CollectionService owns the collection aggregate lifecycle: creation, adding
// versions (with moderated-children discovery), submit, cancel, and the
// post-action archive check.
type CollectionService struct {
	db         *gorm.DB
	moderation *ModerationService
	resolver   content.ChildResolver
	notifier   Notifier

	// NameLengthLimit caps collection names for UI reasons; 0 disables it.
	NameLengthLimit int
}

// NewCollectionService returns a new CollectionService.
func NewCollectionService(db *gorm.DB, moderation *ModerationService, resolver content.ChildResolver, notifier Notifier) *CollectionService {
	return &CollectionService{
		db:         db,
		moderation: moderation,
		resolver:   resolver,
		notifier:   notifier,
	}
}

func collectionPreloads(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Author").
		Preload("Workflow.Steps.Role.User").
		Preload("Workflow.Steps.Role.Group.Users").
		Preload("Requests.Actions").
		Preload("Requests.Version")
}

// GetCollection loads a collection with its workflow, requests and action logs.
func (s *CollectionService) GetCollection(ctx context.Context, id uint) (*models.ModerationCollection, error) {
	return getCollection(s.db.WithContext(ctx), id)
}

func getCollection(db *gorm.DB, id uint) (*models.ModerationCollection, error) {
	var collection models.ModerationCollection
	if err := collectionPreloads(db).First(&collection, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("collection", id)
		}
		return nil, err
	}
	return &collection, nil
}

// ListCollections returns collections, optionally filtered by author.
func (s *CollectionService) ListCollections(ctx context.Context, authorID *uint, limit, offset int) ([]models.ModerationCollection, error) {
	query := s.db.WithContext(ctx).Preload("Author").Preload("Workflow").Order("id DESC")
	if authorID != nil {
		query = query.Where("author_id = ?", *authorID)
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	var collections []models.ModerationCollection
	err := query.Find(&collections).Error
	return collections, err
}

func (s *CollectionService) validateName(name string) error {
	if name == "" {
		return models.NewValidationError("collection name must not be empty")
	}
	if s.NameLengthLimit > 0 && len([]rune(name)) > s.NameLengthLimit {
		return models.NewValidationError(fmt.Sprintf("collection name is limited to %d characters", s.NameLengthLimit))
	}
	return nil
}

// CreateCollection opens a new collecting batch bound to a workflow.
func (s *CollectionService) CreateCollection(ctx context.Context, name string, author *models.User, workflowID uint) (*models.ModerationCollection, error) {
	if err := s.validateName(name); err != nil {
		return nil, err
	}
	var workflow models.Workflow
	if err := s.db.WithContext(ctx).First(&workflow, workflowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("workflow", workflowID)
		}
		return nil, err
	}

	collection := &models.ModerationCollection{
		Name:       name,
		AuthorID:   author.ID,
		WorkflowID: workflow.ID,
		Status:     models.StatusCollecting,
	}
	if err := s.db.WithContext(ctx).Create(collection).Error; err != nil {
		return nil, err
	}
	return s.GetCollection(ctx, collection.ID)
}

// UpdateCollection renames or rebinds a collection. The workflow may only
// change while the collection is still collecting, and only by its author.
func (s *CollectionService) UpdateCollection(ctx context.Context, id uint, byUser *models.User, name string, workflowID uint) (*models.ModerationCollection, error) {
	collection, err := s.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if byUser == nil || byUser.ID != collection.AuthorID {
		return nil, models.NewForbiddenError("only the author may edit a collection")
	}
	if err := s.validateName(name); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"name": name}
	if workflowID != 0 && workflowID != collection.WorkflowID {
		if collection.IsLocked() {
			return nil, models.NewConflictError("workflow can only change while the collection is collecting")
		}
		var workflow models.Workflow
		if err := s.db.WithContext(ctx).First(&workflow, workflowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewNotFoundError("workflow", workflowID)
			}
			return nil, err
		}
		updates["workflow_id"] = workflow.ID
	}

	if err := s.db.WithContext(ctx).Model(collection).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetCollection(ctx, id)
}

// AddVersion get-or-creates a request for (collection, version) and, when
// asked, walks the version's moderated children and adds them too. Children
// locked by another user or claimed by another collection are skipped
// silently; a locked or claimed root is an error.
// Returns the root request and the number of newly added items.
func (s *CollectionService) AddVersion(
	ctx context.Context,
	collectionID uint,
	versionID uint,
	byUser *models.User,
	includeChildren bool,
) (*models.ModerationRequest, int, error) {
	var rootRequest *models.ModerationRequest
	added := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		collection, err := getCollection(tx, collectionID)
		if err != nil {
			return err
		}
		if collection.IsLocked() {
			return models.NewConflictError("cannot add versions to a locked collection")
		}
		if byUser == nil || byUser.ID != collection.AuthorID {
			return models.NewForbiddenError("only the author may add versions to a collection")
		}

		var version models.Version
		if err := tx.First(&version, versionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("version", versionID)
			}
			return err
		}
		locked, err := s.resolver.IsLockedFor(ctx, &version, byUser)
		if err != nil {
			return err
		}
		if locked {
			return models.NewValidationError("version is locked by another user")
		}
		busy, err := hasActiveRequestElsewhere(tx, version.ID, collection.ID)
		if err != nil {
			return err
		}
		if busy {
			return models.NewValidationError("version already belongs to an active moderation request in another collection")
		}

		var rootCreated bool
		rootRequest, rootCreated, err = s.getOrCreateRequest(tx, collection, &version, byUser)
		if err != nil {
			return err
		}
		rootNode, err := s.getOrCreateTreeNode(tx, collection.ID, rootRequest.ID, nil)
		if err != nil {
			return err
		}
		if rootCreated {
			added++
		}

		if includeChildren {
			childCount, err := s.addChildren(ctx, tx, collection, &version, rootNode, byUser)
			if err != nil {
				return err
			}
			added += childCount
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return rootRequest, added, nil
}

// addChildren walks the nested moderated versions breadth-first, skipping any
// child locked by another active request or user.
func (s *CollectionService) addChildren(
	ctx context.Context,
	tx *gorm.DB,
	collection *models.ModerationCollection,
	root *models.Version,
	rootNode *models.ModerationRequestTreeNode,
	byUser *models.User,
) (int, error) {
	type frame struct {
		version *models.Version
		parent  *models.ModerationRequestTreeNode
	}

	added := 0
	queue := []frame{{version: root, parent: rootNode}}
	visited := map[uint]bool{root.ID: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := s.resolver.ModeratedChildren(ctx, current.version.ID)
		if err != nil {
			return added, err
		}
		for i := range children {
			child := children[i]
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true

			locked, err := s.resolver.IsLockedFor(ctx, &child, byUser)
			if err != nil {
				return added, err
			}
			if locked {
				continue
			}
			busy, err := hasActiveRequestElsewhere(tx, child.ID, collection.ID)
			if err != nil {
				return added, err
			}
			if busy {
				continue
			}

			request, created, err := s.getOrCreateRequest(tx, collection, &child, byUser)
			if err != nil {
				return added, err
			}
			node, err := s.getOrCreateTreeNode(tx, collection.ID, request.ID, &current.parent.ID)
			if err != nil {
				return added, err
			}
			if created {
				added++
			}
			queue = append(queue, frame{version: &child, parent: node})
		}
	}
	return added, nil
}

func hasActiveRequestElsewhere(tx *gorm.DB, versionID, collectionID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.ModerationRequest{}).
		Where("version_id = ? AND collection_id <> ? AND is_active = ?", versionID, collectionID, true).
		Count(&count).Error
	return count > 0, err
}

func (s *CollectionService) getOrCreateRequest(
	tx *gorm.DB,
	collection *models.ModerationCollection,
	version *models.Version,
	byUser *models.User,
) (*models.ModerationRequest, bool, error) {
	var existing models.ModerationRequest
	err := tx.Where("collection_id = ? AND version_id = ?", collection.ID, version.ID).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	// New requests are born active: they hold the version's moderation lock
	// from the moment they join a collection, not only once review starts.
	request := &models.ModerationRequest{
		CollectionID: collection.ID,
		VersionID:    version.ID,
		AuthorID:     byUser.ID,
		IsActive:     true,
	}
	if err := tx.Create(request).Error; err != nil {
		return nil, false, err
	}
	return request, true, nil
}

func (s *CollectionService) getOrCreateTreeNode(
	tx *gorm.DB,
	collectionID uint,
	requestID uint,
	parentID *uint,
) (*models.ModerationRequestTreeNode, error) {
	var existing models.ModerationRequestTreeNode
	query := tx.Where("collection_id = ? AND moderation_request_id = ?", collectionID, requestID)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}
	err := query.First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	node := &models.ModerationRequestTreeNode{
		CollectionID:        collectionID,
		ModerationRequestID: requestID,
		ParentID:            parentID,
	}
	if err := tx.Create(node).Error; err != nil {
		return nil, err
	}
	return node, nil
}

// SubmitForReview flips the collection into review, fanning out one STARTED
// action per request, and notifies the first step's reviewers in one batch.
func (s *CollectionService) SubmitForReview(ctx context.Context, collectionID uint, byUser *models.User, toUser *models.User) error {
	var collection *models.ModerationCollection
	var startAction *models.ModerationRequestAction
	var requestIDs []uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		collection, err = getCollection(tx, collectionID)
		if err != nil {
			return err
		}
		if !collection.AllowSubmitForReview(byUser) {
			return models.NewForbiddenError("collection cannot be submitted for review")
		}

		for i := range collection.Requests {
			action, err := s.moderation.updateStatus(tx, collection.Requests[i].ID, models.ActionStarted, byUser, toUser, "")
			if err != nil {
				return err
			}
			if startAction == nil {
				startAction = action
			}
			requestIDs = append(requestIDs, collection.Requests[i].ID)
		}

		return tx.Model(&models.ModerationCollection{}).
			Where("id = ?", collection.ID).
			Update("status", models.StatusInReview).Error
	})
	if err != nil {
		return err
	}

	// All requests share one workflow, so one batched event covers the lot.
	event := notifications.Event{
		Type:           notifications.EventReviewRequested,
		CollectionID:   collection.ID,
		CollectionName: collection.Name,
		RequestIDs:     requestIDs,
		ByUserID:       byUser.ID,
		Rework:         false,
	}
	if startAction != nil {
		_ = s.notifier.NotifyUsers(ctx, reviewerIDs(&collection.Workflow, startAction), event)
	}
	return nil
}

// Cancel withdraws the collection, cascading a CANCELLED action to every
// still-active request before setting the terminal status directly.
func (s *CollectionService) Cancel(ctx context.Context, collectionID uint, byUser *models.User) error {
	var collection *models.ModerationCollection

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		collection, err = getCollection(tx, collectionID)
		if err != nil {
			return err
		}
		if !collection.IsCancellable(byUser) {
			return models.NewForbiddenError("collection cannot be cancelled")
		}

		for i := range collection.Requests {
			if !collection.Requests[i].IsActive {
				continue
			}
			if _, err := s.moderation.updateStatus(tx, collection.Requests[i].ID, models.ActionCancelled, byUser, nil, ""); err != nil {
				return err
			}
		}

		return tx.Model(&models.ModerationCollection{}).
			Where("id = ?", collection.ID).
			Update("status", models.StatusCancelled).Error
	})
	if err != nil {
		return err
	}

	_ = s.notifier.NotifyUser(ctx, collection.AuthorID, notifications.Event{
		Type:           notifications.EventCollectionCancelled,
		CollectionID:   collection.ID,
		CollectionName: collection.Name,
		ByUserID:       byUser.ID,
	})
	return nil
}

// ArchiveIfComplete is the post-bulk-action hook: it rescans the collection
// and archives it when every request has cleared its required steps. Returns
// whether the collection transitioned.
func (s *CollectionService) ArchiveIfComplete(ctx context.Context, collectionID uint) (bool, error) {
	collection, err := s.GetCollection(ctx, collectionID)
	if err != nil {
		return false, err
	}
	if !collection.ShouldBeArchived() {
		return false, nil
	}
	if err := s.db.WithContext(ctx).
		Model(&models.ModerationCollection{}).
		Where("id = ?", collection.ID).
		Update("status", models.StatusArchived).Error; err != nil {
		return false, err
	}
	observability.CollectionsArchivedTotal.Inc()
	return true, nil
}
