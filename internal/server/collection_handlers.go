package server

import (
	"github.com/gofiber/fiber/v2"

	"clearance/internal/models"
)

// ListCollections returns collections, newest first. Pass mine=true to only
// see your own.
func (s *Server) ListCollections(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	pagination := parsePagination(c, 20)

	var authorID *uint
	if c.QueryBool("mine", false) {
		authorID = &user.ID
	}

	collections, err := s.collections.ListCollections(c.UserContext(), authorID, pagination.Limit, pagination.Offset)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(collections)
}

// GetCollection returns one collection with its requests and action logs.
func (s *Server) GetCollection(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	collection, err := s.collections.GetCollection(c.UserContext(), id)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(collection)
}

// CreateCollection opens a new collecting batch for the calling user.
func (s *Server) CreateCollection(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}

	var req struct {
		Name       string `json:"name"`
		WorkflowID uint   `json:"workflow_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	collection, err := s.collections.CreateCollection(c.UserContext(), req.Name, user, req.WorkflowID)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(collection)
}

// UpdateCollection renames a collection, and rebinds its workflow while it is
// still collecting.
func (s *Server) UpdateCollection(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Name       string `json:"name"`
		WorkflowID uint   `json:"workflow_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	collection, err := s.collections.UpdateCollection(c.UserContext(), id, user, req.Name, req.WorkflowID)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(collection)
}

// AddVersionToCollection adds a draft version to a collecting batch,
// optionally walking its moderated children.
func (s *Server) AddVersionToCollection(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		VersionID       uint `json:"version_id"`
		IncludeChildren bool `json:"include_children"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.VersionID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("version_id is required"))
	}

	request, added, err := s.collections.AddVersion(c.UserContext(), id, req.VersionID, user, req.IncludeChildren)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"request": request,
		"added":   added,
	})
}

// SubmitCollectionForReview flips the collection into review and starts every
// request, optionally handing the first step to a specific reviewer.
func (s *Server) SubmitCollectionForReview(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		ToUserID uint `json:"to_user_id"`
	}
	// An empty body means no explicit handover.
	_ = c.BodyParser(&req)

	var toUser *models.User
	if req.ToUserID != 0 {
		toUser = &models.User{}
		if err := s.db.WithContext(c.UserContext()).First(toUser, req.ToUserID).Error; err != nil {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("user", req.ToUserID))
		}
	}

	if err := s.collections.SubmitForReview(c.UserContext(), id, user, toUser); err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Collection submitted for review"})
}

// CancelCollection withdraws the collection and cancels its active requests.
func (s *Server) CancelCollection(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.collections.Cancel(c.UserContext(), id, user); err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Collection cancelled"})
}
