package server

import (
	"github.com/gofiber/fiber/v2"

	"clearance/internal/models"
)

// bulkSelection is the shared request body for bulk operations: the requests
// to act on and an optional message recorded on each resulting action.
type bulkSelection struct {
	RequestIDs []uint `json:"request_ids"`
	Message    string `json:"message"`
}

func (s *Server) parseBulkSelection(c *fiber.Ctx) (*bulkSelection, error) {
	var selection bulkSelection
	if err := c.BodyParser(&selection); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return nil, errResponseWritten
	}
	if len(selection.RequestIDs) == 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("request_ids must not be empty"))
		return nil, errResponseWritten
	}
	return &selection, nil
}

// BulkApprove approves every eligible request in the selection. Ineligible
// requests are skipped; the response reports how many were acted on.
func (s *Server) BulkApprove(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	collectionID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	selection, err := s.parseBulkSelection(c)
	if err != nil {
		return nil
	}

	approved, err := s.bulk.Approve(c.UserContext(), collectionID, selection.RequestIDs, user, selection.Message)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"approved": approved, "selected": len(selection.RequestIDs)})
}

// BulkReject sends every eligible request in the selection back for rework.
func (s *Server) BulkReject(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	collectionID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	selection, err := s.parseBulkSelection(c)
	if err != nil {
		return nil
	}

	rejected, err := s.bulk.Reject(c.UserContext(), collectionID, selection.RequestIDs, user, selection.Message)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"rejected": rejected, "selected": len(selection.RequestIDs)})
}

// BulkResubmit restarts review for every rejected request in the selection
// that the caller authored.
func (s *Server) BulkResubmit(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	collectionID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	selection, err := s.parseBulkSelection(c)
	if err != nil {
		return nil
	}

	resubmitted, err := s.bulk.Resubmit(c.UserContext(), collectionID, selection.RequestIDs, user, selection.Message)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"resubmitted": resubmitted, "selected": len(selection.RequestIDs)})
}

// BulkPublish publishes every approved, publishable request in the selection.
func (s *Server) BulkPublish(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	collectionID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	selection, err := s.parseBulkSelection(c)
	if err != nil {
		return nil
	}

	published, err := s.bulk.Publish(c.UserContext(), collectionID, selection.RequestIDs, user)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"published": published, "selected": len(selection.RequestIDs)})
}

// BulkDelete removes the selected requests from the collection entirely.
func (s *Server) BulkDelete(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	collectionID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	selection, err := s.parseBulkSelection(c)
	if err != nil {
		return nil
	}

	deleted, err := s.bulk.Delete(c.UserContext(), collectionID, selection.RequestIDs, user)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": deleted, "selected": len(selection.RequestIDs)})
}
