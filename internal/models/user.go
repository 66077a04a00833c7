// Package models defines the persistent entities and the derived-state logic
// of the moderation workflow.
package models

import "time"

// User is an identity that can author collections or act on workflow steps.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:254" json:"email"`
	Password  string    `gorm:"size:100" json:"-"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	Groups    []Group   `gorm:"many2many:user_groups" json:"groups,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Group is a named set of users, assignable to a role as a whole.
type Group struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Users []User `gorm:"many2many:user_groups" json:"users,omitempty"`
}
