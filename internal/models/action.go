package models

import "time"

// ModerationAction is the kind of one recorded transition on a request.
type ModerationAction string

const (
	// ActionStarted seeds a request when its collection is submitted for review.
	ActionStarted ModerationAction = "start"
	// ActionApproved records one step being satisfied by a reviewer.
	ActionApproved ModerationAction = "approved"
	// ActionRejected sends the request back to its author for rework.
	ActionRejected ModerationAction = "rejected"
	// ActionResubmitted restarts review after the author amended the content.
	ActionResubmitted ModerationAction = "resubmitted"
	// ActionCancelled withdraws the request from moderation.
	ActionCancelled ModerationAction = "cancelled"
	// ActionFinished closes the request once its content has been published.
	ActionFinished ModerationAction = "finished"
)

// KeepsRequestActive reports whether a request stays active after this action.
// A rejected request is still active: it has been handed back to the author
// for amendments, not withdrawn. Only cancelling or finishing a request takes
// it out of circulation.
func (a ModerationAction) KeepsRequestActive() bool {
	switch a {
	case ActionStarted, ActionApproved, ActionRejected, ActionResubmitted:
		return true
	}
	return false
}

// ModerationRequestAction is one immutable entry of a request's action log,
// ordered by DateTaken ascending. Rows are never mutated after creation except
// for IsArchived being flipped in bulk when a rejection invalidates the
// approvals taken so far.
type ModerationRequestAction struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	RequestID uint             `gorm:"not null;index" json:"request_id"`
	Action    ModerationAction `gorm:"size:30;not null" json:"action"`

	ByUserID uint  `gorm:"not null" json:"by_user_id"`
	ByUser   *User `gorm:"foreignKey:ByUserID" json:"by_user,omitempty"`

	// Who is up next, resolved at creation time.
	ToUserID *uint `json:"to_user_id"`
	ToUser   *User `gorm:"foreignKey:ToUserID" json:"to_user,omitempty"`
	ToRoleID *uint `json:"to_role_id"`
	ToRole   *Role `gorm:"foreignKey:ToRoleID" json:"to_role,omitempty"`

	// The step this action satisfied; nil for anything but an approval.
	StepApprovedID *uint         `json:"step_approved_id"`
	StepApproved   *WorkflowStep `gorm:"foreignKey:StepApprovedID" json:"step_approved,omitempty"`

	Message    string    `gorm:"type:text" json:"message"`
	DateTaken  time.Time `gorm:"autoCreateTime;index" json:"date_taken"`
	IsArchived bool      `gorm:"default:false" json:"is_archived"`
}
