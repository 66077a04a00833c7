package models

import (
	"sort"
	"time"
)

// Workflow is an ordered chain of approval steps. At most one workflow may be
// marked as the system default; that invariant is enforced at write time by
// the workflow service, not by the storage layer.
type Workflow struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"size:120;uniqueIndex;not null" json:"name"`
	IsDefault  bool   `gorm:"default:false" json:"is_default"`
	Identifier string `gorm:"size:40" json:"identifier"`

	RequiresComplianceNumber bool   `gorm:"default:false" json:"requires_compliance_number"`
	ComplianceNumberBackend  string `gorm:"size:100;default:'uuid4'" json:"compliance_number_backend"`

	Steps     []WorkflowStep `gorm:"foreignKey:WorkflowID" json:"steps,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// WorkflowStep is one stage of a workflow, bound to a role. A role may appear
// at most once per workflow.
type WorkflowStep struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	WorkflowID uint `gorm:"not null;uniqueIndex:idx_step_workflow_role" json:"workflow_id"`
	RoleID     uint `gorm:"not null;uniqueIndex:idx_step_workflow_role" json:"role_id"`
	Role       Role `gorm:"foreignKey:RoleID" json:"role"`
	IsRequired bool `gorm:"default:true" json:"is_required"`
	Order      int  `gorm:"not null" json:"order"`
}

// SortedSteps returns the steps in workflow order: ascending by Order, ties
// broken by insertion (primary key).
func (w *Workflow) SortedSteps() []WorkflowStep {
	steps := make([]WorkflowStep, len(w.Steps))
	copy(steps, w.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Order != steps[j].Order {
			return steps[i].Order < steps[j].Order
		}
		return steps[i].ID < steps[j].ID
	})
	return steps
}

// FirstStep returns the first step of the workflow, or nil for an empty one.
func (w *Workflow) FirstStep() *WorkflowStep {
	steps := w.SortedSteps()
	if len(steps) == 0 {
		return nil
	}
	return &steps[0]
}

// NextStep returns the step following the given one, or nil if it is terminal.
func (w *Workflow) NextStep(after *WorkflowStep) *WorkflowStep {
	return w.nextStep(after, false)
}

// NextRequiredStep returns the next required step after the given one, or nil.
func (w *Workflow) NextRequiredStep(after *WorkflowStep) *WorkflowStep {
	return w.nextStep(after, true)
}

func (w *Workflow) nextStep(after *WorkflowStep, requiredOnly bool) *WorkflowStep {
	if after == nil {
		return nil
	}
	steps := w.SortedSteps()
	for i := range steps {
		if steps[i].Order < after.Order {
			continue
		}
		if steps[i].Order == after.Order && steps[i].ID <= after.ID {
			continue
		}
		if requiredOnly && !steps[i].IsRequired {
			continue
		}
		return &steps[i]
	}
	return nil
}

// StepForRole returns the workflow step bound to the given role, or nil.
func (w *Workflow) StepForRole(roleID uint) *WorkflowStep {
	steps := w.SortedSteps()
	for i := range steps {
		if steps[i].RoleID == roleID {
			return &steps[i]
		}
	}
	return nil
}
