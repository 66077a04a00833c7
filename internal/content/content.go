// Package content is the seam between moderation and the versioned content
// store. Moderation never edits content; it only inspects version state,
// discovers nested moderated children, and asks for publication once a
// request has cleared review.
package content

import (
	"context"

	"clearance/internal/models"

	"gorm.io/gorm"
)

// Publisher flips an approved version live.
type Publisher interface {
	Publish(ctx context.Context, versionID uint, byUserID uint) error
}

// ChildResolver discovers versions nested under a root version that are
// themselves subject to moderation, and answers whether a version is locked
// away from a given user.
type ChildResolver interface {
	ModeratedChildren(ctx context.Context, versionID uint) ([]models.Version, error)
	IsLockedFor(ctx context.Context, version *models.Version, user *models.User) (bool, error)
}

// Store is the GORM-backed implementation working against the local version
// projection.
type Store struct {
	db *gorm.DB
}

// NewStore returns a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Publish marks a draft version as published. Publishing a non-draft version
// is refused; the caller is expected to have checked CanBePublished first.
func (s *Store) Publish(ctx context.Context, versionID uint, byUserID uint) error {
	var version models.Version
	if err := s.db.WithContext(ctx).First(&version, versionID).Error; err != nil {
		return err
	}
	if !version.CanBePublished() {
		return models.NewConflictError("version is not in a publishable state")
	}
	return s.db.WithContext(ctx).
		Model(&models.Version{}).
		Where("id = ?", versionID).
		Update("state", models.VersionPublished).Error
}

// ModeratedChildren returns the draft versions directly nested under the
// given version. Only drafts travel through moderation.
func (s *Store) ModeratedChildren(ctx context.Context, versionID uint) ([]models.Version, error) {
	var children []models.Version
	err := s.db.WithContext(ctx).
		Where("parent_id = ? AND state = ?", versionID, models.VersionDraft).
		Order("id ASC").
		Find(&children).Error
	return children, err
}

// IsLockedFor reports whether the version's draft lock is held by someone
// other than the given user. Draft versions are locked to their creator.
func (s *Store) IsLockedFor(_ context.Context, version *models.Version, user *models.User) (bool, error) {
	if version.State != models.VersionDraft {
		return false, nil
	}
	return user == nil || version.CreatedByID != user.ID, nil
}
