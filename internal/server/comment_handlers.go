package server

import (
	"github.com/gofiber/fiber/v2"

	"clearance/internal/models"
)

// ListCollectionComments returns a collection's comments in posting order.
func (s *Server) ListCollectionComments(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	comments, err := s.comments.ListCollectionComments(c.UserContext(), id, user)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(comments)
}

// AddCollectionComment attaches a note to a collection.
func (s *Server) AddCollectionComment(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	comment, err := s.comments.AddCollectionComment(c.UserContext(), id, user, req.Message)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// ListRequestComments returns every comment on a request across its actions.
func (s *Server) ListRequestComments(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	comments, err := s.comments.ListRequestComments(c.UserContext(), id, user)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(comments)
}

// AddRequestComment pins a note to an action of the request. Without an
// explicit action_id the comment lands on the most recent action.
func (s *Server) AddRequestComment(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		ActionID uint   `json:"action_id"`
		Message  string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	actionID := req.ActionID
	if actionID == 0 {
		request, err := s.moderation.GetRequest(c.UserContext(), id)
		if err != nil {
			return s.serviceError(c, err)
		}
		last := request.LastAction()
		if last == nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("request has no actions to comment on"))
		}
		actionID = last.ID
	}

	comment, err := s.comments.AddRequestComment(c.UserContext(), actionID, user, req.Message)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}
