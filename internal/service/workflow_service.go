package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"clearance/internal/models"
)

// WorkflowService owns validated writes to workflows, steps and roles. The
// single-default and role-exclusivity invariants are enforced here with a
// check-then-write inside one transaction, not with storage constraints,
// because the checks must exclude the row being updated.
type WorkflowService struct {
	db *gorm.DB
}

// NewWorkflowService returns a new WorkflowService.
func NewWorkflowService(db *gorm.DB) *WorkflowService {
	return &WorkflowService{db: db}
}

func workflowPreloads(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Steps.Role.User").
		Preload("Steps.Role.Group.Users")
}

// GetWorkflow loads a workflow with its steps and role members.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id uint) (*models.Workflow, error) {
	var workflow models.Workflow
	if err := workflowPreloads(s.db.WithContext(ctx)).First(&workflow, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("workflow", id)
		}
		return nil, err
	}
	return &workflow, nil
}

// ListWorkflows returns every workflow with its steps.
func (s *WorkflowService) ListWorkflows(ctx context.Context) ([]models.Workflow, error) {
	var workflows []models.Workflow
	err := workflowPreloads(s.db.WithContext(ctx)).Order("id ASC").Find(&workflows).Error
	return workflows, err
}

// DefaultWorkflow returns the workflow flagged as the system default, if any.
func (s *WorkflowService) DefaultWorkflow(ctx context.Context) (*models.Workflow, error) {
	var workflow models.Workflow
	err := workflowPreloads(s.db.WithContext(ctx)).Where("is_default = ?", true).First(&workflow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

// SaveWorkflow creates or updates a workflow, enforcing the at-most-one
// default invariant across the system, excluding the row being written.
func (s *WorkflowService) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.Name == "" {
		return models.NewValidationError("workflow name must not be empty")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if workflow.IsDefault {
			var count int64
			query := tx.Model(&models.Workflow{}).Where("is_default = ?", true)
			if workflow.ID != 0 {
				query = query.Where("id <> ?", workflow.ID)
			}
			if err := query.Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return models.NewValidationError("only one workflow can be the default")
			}
		}
		return tx.Save(workflow).Error
	})
}

// AddStep appends a step to a workflow. A role may sit on at most one step
// per workflow.
func (s *WorkflowService) AddStep(ctx context.Context, workflowID, roleID uint, isRequired bool, order int) (*models.WorkflowStep, error) {
	var step *models.WorkflowStep
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var workflow models.Workflow
		if err := tx.First(&workflow, workflowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("workflow", workflowID)
			}
			return err
		}
		var role models.Role
		if err := tx.First(&role, roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("role", roleID)
			}
			return err
		}

		var count int64
		if err := tx.Model(&models.WorkflowStep{}).
			Where("workflow_id = ? AND role_id = ?", workflowID, roleID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return models.NewValidationError("role already has a step in this workflow")
		}

		step = &models.WorkflowStep{
			WorkflowID: workflowID,
			RoleID:     roleID,
			IsRequired: isRequired,
			Order:      order,
		}
		return tx.Create(step).Error
	})
	if err != nil {
		return nil, err
	}
	return step, nil
}

// SaveRole creates or updates a role after the user-XOR-group check.
func (s *WorkflowService) SaveRole(ctx context.Context, role *models.Role) error {
	if err := role.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(role).Error
}

// GetRole loads a role with its member sources preloaded.
func (s *WorkflowService) GetRole(ctx context.Context, id uint) (*models.Role, error) {
	var role models.Role
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Group.Users").
		First(&role, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("role", id)
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ListRoles returns every role with members preloaded.
func (s *WorkflowService) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Group.Users").
		Order("id ASC").
		Find(&roles).Error
	return roles, err
}
