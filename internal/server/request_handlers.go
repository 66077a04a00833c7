package server

import (
	"github.com/gofiber/fiber/v2"

	"clearance/internal/models"
	"clearance/internal/notifications"
)

// requestResponse wraps a request with the state derived from its action log.
type requestResponse struct {
	*models.ModerationRequest
	IsApproved   bool                  `json:"is_approved"`
	IsRejected   bool                  `json:"is_rejected"`
	PendingSteps []models.WorkflowStep `json:"pending_steps"`
}

func newRequestResponse(request *models.ModerationRequest) requestResponse {
	workflow := &request.Collection.Workflow
	return requestResponse{
		ModerationRequest: request,
		IsApproved:        request.IsApproved(workflow),
		IsRejected:        request.IsRejected(),
		PendingSteps:      request.PendingSteps(workflow),
	}
}

// GetRequest returns one request together with its derived review state.
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	request, err := s.moderation.GetRequest(c.UserContext(), id)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(newRequestResponse(request))
}

// ApproveRequest approves one request for the calling reviewer. An optional
// to_user_id hands the review directly to a named reviewer on a pending step.
func (s *Server) ApproveRequest(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Message  string `json:"message"`
		ToUserID uint   `json:"to_user_id"`
	}
	_ = c.BodyParser(&req)

	request, err := s.moderation.GetRequest(c.UserContext(), id)
	if err != nil {
		return s.serviceError(c, err)
	}
	workflow := &request.Collection.Workflow
	if !request.UserCanTakeModerationAction(workflow, user) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("you are not a reviewer on this request's pending step"))
	}

	if req.ToUserID == 0 {
		// The bulk path handles next-reviewer notification and archiving.
		if _, err := s.bulk.Approve(c.UserContext(), request.CollectionID, []uint{request.ID}, user, req.Message); err != nil {
			return s.serviceError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Request approved"})
	}

	var toUser models.User
	if err := s.db.WithContext(c.UserContext()).Preload("Groups").First(&toUser, req.ToUserID).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("user", req.ToUserID))
	}
	action, err := s.moderation.UpdateStatus(c.UserContext(), request.ID, models.ActionApproved, user, &toUser, req.Message)
	if err != nil {
		return s.serviceError(c, err)
	}

	_ = s.notifier.NotifyUsers(c.UserContext(), s.moderation.Reviewers(workflow, action), notifications.Event{
		Type:           notifications.EventReviewRequested,
		CollectionID:   request.CollectionID,
		CollectionName: request.Collection.Name,
		RequestIDs:     []uint{request.ID},
		ByUserID:       user.ID,
	})
	if _, err := s.collections.ArchiveIfComplete(c.UserContext(), request.CollectionID); err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Request approved"})
}

// RejectRequest sends one request back to its author for rework.
func (s *Server) RejectRequest(c *fiber.Ctx) error {
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
	_ = c.BodyParser(&req)

	request, err := s.moderation.GetRequest(c.UserContext(), id)
	if err != nil {
		return s.serviceError(c, err)
	}
	if !request.UserCanTakeModerationAction(&request.Collection.Workflow, user) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("you are not a reviewer on this request's pending step"))
	}

	if _, err := s.bulk.Reject(c.UserContext(), request.CollectionID, []uint{request.ID}, user, req.Message); err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Request rejected"})
}

// ResubmitRequest restarts review for one rejected request; author only.
func (s *Server) ResubmitRequest(c *fiber.Ctx) error {
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
	_ = c.BodyParser(&req)

	request, err := s.moderation.GetRequest(c.UserContext(), id)
	if err != nil {
		return s.serviceError(c, err)
	}
	if !request.UserCanResubmit(user) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("only the author may resubmit a rejected request"))
	}

	if _, err := s.bulk.Resubmit(c.UserContext(), request.CollectionID, []uint{request.ID}, user, req.Message); err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Request resubmitted"})
}
