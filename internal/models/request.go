package models

import (
	"sort"
	"time"
)

// ModerationRequest is one content version's journey through a workflow inside
// a collection. All review state is derived from the append-only action log;
// there is no mutable "current step" pointer.
type ModerationRequest struct {
	ID           uint                  `gorm:"primaryKey" json:"id"`
	CollectionID uint                  `gorm:"not null;uniqueIndex:idx_request_collection_version" json:"collection_id"`
	Collection   *ModerationCollection `gorm:"foreignKey:CollectionID" json:"collection,omitempty"`
	VersionID    uint                  `gorm:"not null;uniqueIndex:idx_request_collection_version" json:"version_id"`
	Version      *Version              `gorm:"foreignKey:VersionID" json:"version,omitempty"`

	AuthorID uint  `gorm:"not null" json:"author_id"`
	Author   *User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	IsActive         bool      `gorm:"default:false;index" json:"is_active"`
	ComplianceNumber *string   `gorm:"size:64;uniqueIndex" json:"compliance_number"`
	DateSent         time.Time `gorm:"autoCreateTime" json:"date_sent"`

	Actions []ModerationRequestAction `gorm:"foreignKey:RequestID" json:"actions,omitempty"`
}

// SortedActions returns the action log ordered by DateTaken ascending, ties
// broken by primary key. This ordering is load-bearing for first/last lookups.
func (r *ModerationRequest) SortedActions() []ModerationRequestAction {
	actions := make([]ModerationRequestAction, len(r.Actions))
	copy(actions, r.Actions)
	sort.SliceStable(actions, func(i, j int) bool {
		if !actions[i].DateTaken.Equal(actions[j].DateTaken) {
			return actions[i].DateTaken.Before(actions[j].DateTaken)
		}
		return actions[i].ID < actions[j].ID
	})
	return actions
}

// FirstAction returns the oldest action, or nil if none exist yet.
func (r *ModerationRequest) FirstAction() *ModerationRequestAction {
	actions := r.SortedActions()
	if len(actions) == 0 {
		return nil
	}
	return &actions[0]
}

// LastAction returns the most recent action, or nil if none exist yet.
func (r *ModerationRequest) LastAction() *ModerationRequestAction {
	actions := r.SortedActions()
	if len(actions) == 0 {
		return nil
	}
	return &actions[len(actions)-1]
}

// PendingSteps computes the workflow steps not yet satisfied by a live
// (non-archived) approval, in workflow order. Archived actions from a prior
// rejection cycle never count toward satisfying a step.
func (r *ModerationRequest) PendingSteps(w *Workflow) []WorkflowStep {
	satisfied := make(map[uint]bool)
	for i := range r.Actions {
		a := &r.Actions[i]
		if a.IsArchived || a.StepApprovedID == nil {
			continue
		}
		satisfied[*a.StepApprovedID] = true
	}

	var pending []WorkflowStep
	for _, step := range w.SortedSteps() {
		if !satisfied[step.ID] {
			pending = append(pending, step)
		}
	}
	return pending
}

// PendingRequiredSteps filters PendingSteps down to the mandatory gates.
func (r *ModerationRequest) PendingRequiredSteps(w *Workflow) []WorkflowStep {
	var pending []WorkflowStep
	for _, step := range r.PendingSteps(w) {
		if step.IsRequired {
			pending = append(pending, step)
		}
	}
	return pending
}

// HasPendingStep reports whether any step is still unsatisfied.
func (r *ModerationRequest) HasPendingStep(w *Workflow) bool {
	return len(r.PendingSteps(w)) > 0
}

// IsApproved reports whether the request is active with no required step left.
func (r *ModerationRequest) IsApproved(w *Workflow) bool {
	return r.IsActive && len(r.PendingRequiredSteps(w)) == 0
}

// IsRejected reports whether the most recent action was a rejection.
func (r *ModerationRequest) IsRejected() bool {
	last := r.LastAction()
	return last != nil && last.Action == ActionRejected
}

// NextRequired returns the first pending required step, or nil.
func (r *ModerationRequest) NextRequired(w *Workflow) *WorkflowStep {
	pending := r.PendingRequiredSteps(w)
	if len(pending) == 0 {
		return nil
	}
	return &pending[0]
}

// UserGetStep returns the first pending step the user may act on, or nil.
func (r *ModerationRequest) UserGetStep(w *Workflow, u *User) *WorkflowStep {
	for _, step := range r.PendingSteps(w) {
		if step.Role.UserIsAssigned(u) {
			step := step
			return &step
		}
	}
	return nil
}

// UserCanTakeModerationAction reports whether the user may approve or reject
// the request right now. The pending steps are walked in workflow order: the
// first step the user is assigned to grants access, the first required step
// the user is not assigned to denies it, and optional steps the user is not
// assigned to are skipped. After a rejection nobody can act until the author
// resubmits.
func (r *ModerationRequest) UserCanTakeModerationAction(w *Workflow, u *User) bool {
	if r.IsRejected() {
		return false
	}

	for _, step := range r.PendingSteps(w) {
		assigned := step.Role.UserIsAssigned(u)
		if step.IsRequired && !assigned {
			return false
		}
		if assigned {
			return true
		}
	}
	return false
}

// UserCanResubmit reports whether the user may resubmit the request after a
// rejection. Resubmission is an author-only remedy.
func (r *ModerationRequest) UserCanResubmit(u *User) bool {
	return u != nil && u.ID == r.AuthorID && r.IsRejected()
}

// UserCanModerate reports whether the user is involved anywhere in the
// workflow, regardless of whose turn it is.
func (r *ModerationRequest) UserCanModerate(w *Workflow, u *User) bool {
	for _, step := range w.SortedSteps() {
		if step.Role.UserIsAssigned(u) {
			return true
		}
	}
	return false
}

// UserIsAuthor reports whether the user proposed this request.
func (r *ModerationRequest) UserIsAuthor(u *User) bool {
	return u != nil && u.ID == r.AuthorID
}

// UserCanViewComments reports whether the user may read the request's comments.
func (r *ModerationRequest) UserCanViewComments(w *Workflow, u *User) bool {
	return r.UserIsAuthor(u) || r.UserCanModerate(w, u)
}

// ShouldSetComplianceNumber reports whether a compliance number must be minted
// now: the workflow demands one, none is set yet, and the request just became
// fully approved.
func (r *ModerationRequest) ShouldSetComplianceNumber(w *Workflow) bool {
	return w.RequiresComplianceNumber && r.ComplianceNumber == nil && r.IsApproved(w)
}

// VersionCanBePublished reports whether the wrapped version is publishable.
func (r *ModerationRequest) VersionCanBePublished() bool {
	return r.Version != nil && r.Version.CanBePublished()
}
