package server

import (
	"github.com/gofiber/fiber/v2"

	"clearance/internal/models"
)

// ListWorkflows returns every workflow with its steps and role members.
func (s *Server) ListWorkflows(c *fiber.Ctx) error {
	workflows, err := s.workflows.ListWorkflows(c.UserContext())
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(workflows)
}

// GetWorkflow returns one workflow by ID.
func (s *Server) GetWorkflow(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	workflow, err := s.workflows.GetWorkflow(c.UserContext(), id)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(workflow)
}

// CreateWorkflow creates a workflow, enforcing the single-default invariant.
func (s *Server) CreateWorkflow(c *fiber.Ctx) error {
	var req struct {
		Name                     string `json:"name"`
		IsDefault                bool   `json:"is_default"`
		Identifier               string `json:"identifier"`
		RequiresComplianceNumber bool   `json:"requires_compliance_number"`
		ComplianceNumberBackend  string `json:"compliance_number_backend"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	workflow := models.Workflow{
		Name:                     req.Name,
		IsDefault:                req.IsDefault,
		Identifier:               req.Identifier,
		RequiresComplianceNumber: req.RequiresComplianceNumber,
		ComplianceNumberBackend:  req.ComplianceNumberBackend,
	}
	if err := s.workflows.SaveWorkflow(c.UserContext(), &workflow); err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(workflow)
}

// AddWorkflowStep appends a step to a workflow.
func (s *Server) AddWorkflowStep(c *fiber.Ctx) error {
	workflowID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		RoleID     uint `json:"role_id"`
		IsRequired bool `json:"is_required"`
		Order      int  `json:"order"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	step, err := s.workflows.AddStep(c.UserContext(), workflowID, req.RoleID, req.IsRequired, req.Order)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(step)
}

// ListRoles returns every role with its member sources.
func (s *Server) ListRoles(c *fiber.Ctx) error {
	roles, err := s.workflows.ListRoles(c.UserContext())
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(roles)
}

// CreateRole creates a role backed by exactly one user or one group.
func (s *Server) CreateRole(c *fiber.Ctx) error {
	var req struct {
		Name    string `json:"name"`
		UserID  *uint  `json:"user_id"`
		GroupID *uint  `json:"group_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	role := models.Role{
		Name:    req.Name,
		UserID:  req.UserID,
		GroupID: req.GroupID,
	}
	if err := s.workflows.SaveRole(c.UserContext(), &role); err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(role)
}
