package server

import (
	"github.com/gofiber/fiber/v2"
)

// FixStates runs the state reconciliation sweep. Without perform_fix=true it
// is a dry run that only reports what would change.
func (s *Server) FixStates(c *fiber.Ctx) error {
	if _, err := s.currentUser(c); err != nil {
		return nil
	}

	performFix := c.QueryBool("perform_fix", false)
	report, err := s.reconcile.FixStates(c.UserContext(), performFix)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(report)
}
