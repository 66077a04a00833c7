package models

import "time"

// VersionState mirrors the lifecycle states of the external content store.
type VersionState string

const (
	// VersionDraft is an editable, publishable version.
	VersionDraft VersionState = "draft"
	// VersionPublished is a live version.
	VersionPublished VersionState = "published"
	// VersionUnpublished was live and has been taken down.
	VersionUnpublished VersionState = "unpublished"
	// VersionArchived is retired draft content.
	VersionArchived VersionState = "archived"
)

// Version is the local projection of one versioned content item. The content
// itself lives in the external content store; moderation only needs identity,
// state, authorship and the nesting used for moderated-children discovery.
type Version struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	ContentType string       `gorm:"size:100;not null" json:"content_type"`
	ObjectID    uint         `gorm:"not null;index" json:"object_id"`
	Label       string       `gorm:"size:255" json:"label"`
	State       VersionState `gorm:"size:20;not null;default:'draft';index" json:"state"`
	CreatedByID uint         `json:"created_by_id"`
	CreatedBy   *User        `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	ParentID    *uint        `gorm:"index" json:"parent_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

// CanBePublished reports whether the version is in a publishable state.
func (v *Version) CanBePublished() bool {
	return v.State == VersionDraft
}
