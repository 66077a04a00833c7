package models

import "time"

// CollectionComment is a free-form note on a whole collection.
type CollectionComment struct {
	ID           uint                  `gorm:"primaryKey" json:"id"`
	CollectionID uint                  `gorm:"not null;index" json:"collection_id"`
	Collection   *ModerationCollection `gorm:"foreignKey:CollectionID" json:"collection,omitempty"`
	AuthorID     uint                  `gorm:"not null" json:"author_id"`
	Author       *User                 `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Message      string                `gorm:"type:text;not null" json:"message"`
	CreatedAt    time.Time             `json:"created_at"`
}

// RequestComment is a note attached to one action of a request, so the
// discussion stays pinned to the point in the review it refers to.
type RequestComment struct {
	ID        uint                     `gorm:"primaryKey" json:"id"`
	ActionID  uint                     `gorm:"not null;index" json:"action_id"`
	Action    *ModerationRequestAction `gorm:"foreignKey:ActionID" json:"action,omitempty"`
	AuthorID  uint                     `gorm:"not null" json:"author_id"`
	Author    *User                    `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Message   string                   `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time                `json:"created_at"`
}
