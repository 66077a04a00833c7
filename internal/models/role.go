package models

import "time"

// Role is a named reviewer identity bound to either one user or one group.
// Exactly one of the two targets must be set.
type Role struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:120;uniqueIndex;not null" json:"name"`
	UserID    *uint     `json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	GroupID   *uint     `json:"group_id"`
	Group     *Group    `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces the user-XOR-group invariant.
func (r *Role) Validate() error {
	if r.UserID != nil && r.GroupID != nil {
		return NewValidationError("can't pick both user and group, only one")
	}
	if r.UserID == nil && r.GroupID == nil {
		return NewValidationError("either a user or a group must be assigned to the role")
	}
	return nil
}

// UserIsAssigned reports whether the user may act on this role's behalf.
// Group membership must be preloaded for group-backed roles.
func (r *Role) UserIsAssigned(u *User) bool {
	if u == nil {
		return false
	}
	if r.UserID != nil {
		return *r.UserID == u.ID
	}
	if r.Group != nil {
		for i := range r.Group.Users {
			if r.Group.Users[i].ID == u.ID {
				return true
			}
		}
	}
	return false
}

// Members resolves the concrete set of users eligible to act for this role.
func (r *Role) Members() []User {
	if r.UserID != nil {
		if r.User != nil {
			return []User{*r.User}
		}
		return nil
	}
	if r.Group != nil {
		return r.Group.Users
	}
	return nil
}
