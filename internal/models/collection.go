package models

import "time"

// CollectionStatus is the lifecycle state of a moderation collection.
type CollectionStatus string

const (
	// StatusCollecting accepts new versions; nothing is under review yet.
	StatusCollecting CollectionStatus = "COLLECTING"
	// StatusInReview means the collection has been submitted and is locked.
	StatusInReview CollectionStatus = "IN_REVIEW"
	// StatusArchived is the terminal success state: everything got approved.
	StatusArchived CollectionStatus = "ARCHIVED"
	// StatusCancelled is the terminal withdrawn state.
	StatusCancelled CollectionStatus = "CANCELLED"
)

// ModerationCollection groups content versions so they travel through a
// workflow together. It is the aggregate root: requests are only ever created
// through a collection, and the collection's status gates what may happen to
// its requests.
type ModerationCollection struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:128;not null" json:"name"`

	AuthorID uint  `gorm:"not null;index" json:"author_id"`
	Author   *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	WorkflowID uint     `gorm:"not null" json:"workflow_id"`
	Workflow   Workflow `gorm:"foreignKey:WorkflowID" json:"workflow"`

	Status CollectionStatus `gorm:"size:20;not null;default:'COLLECTING';index" json:"status"`

	Requests  []ModerationRequest `gorm:"foreignKey:CollectionID" json:"requests,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// IsLocked reports whether the collection refuses new versions.
func (c *ModerationCollection) IsLocked() bool {
	return c.Status != StatusCollecting
}

// AllowSubmitForReview reports whether the user may submit the collection for
// review: only the author, only while collecting, and never empty-handed.
func (c *ModerationCollection) AllowSubmitForReview(u *User) bool {
	return u != nil && u.ID == c.AuthorID &&
		c.Status == StatusCollecting && len(c.Requests) > 0
}

// IsCancellable reports whether the user may cancel the collection. Terminal
// collections stay terminal.
func (c *ModerationCollection) IsCancellable(u *User) bool {
	if u == nil || u.ID != c.AuthorID {
		return false
	}
	return c.Status != StatusArchived && c.Status != StatusCancelled
}

// ShouldBeArchived reports whether every request in the collection has cleared
// its required steps. Requests and their actions, plus the workflow steps,
// must be preloaded.
func (c *ModerationCollection) ShouldBeArchived() bool {
	if c.Status == StatusCollecting || c.Status == StatusArchived {
		return false
	}
	for i := range c.Requests {
		if !c.Requests[i].IsApproved(&c.Workflow) {
			return false
		}
	}
	return true
}
