package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"clearance/internal/models"
)

func registerRequestRoutes(s *Server) func(app *fiber.App) {
	return func(app *fiber.App) {
		app.Get("/requests/:id", s.GetRequest)
		app.Post("/requests/:id/approve", s.ApproveRequest)
		app.Post("/requests/:id/reject", s.RejectRequest)
		app.Post("/requests/:id/resubmit", s.ResubmitRequest)
	}
}

// submitFixture adds the fixture version and submits the collection, returning
// the created request.
func submitFixture(t *testing.T, f *reviewFixture) *models.ModerationRequest {
	t.Helper()
	app := newTestApp(f.server, f.author.ID, registerCollectionRoutes(f.server))
	doJSON(t, app, http.MethodPost, f.collectionPath("/versions"), fiber.Map{"version_id": f.version.ID})
	doJSON(t, app, http.MethodPost, f.collectionPath("/submit"), nil)

	var request models.ModerationRequest
	if err := f.server.db.Where("collection_id = ?", f.collection.ID).First(&request).Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	return &request
}

func TestApproveRequest_ArchivesCompletedCollection(t *testing.T) {
	t.Parallel()

	f := newReviewFixture(t)
	request := submitFixture(t, f)
	app := newTestApp(f.server, f.reviewer.ID, registerRequestRoutes(f.server))

	resp, _ := doJSON(t, app, http.MethodPost, fmt.Sprintf("/requests/%d/approve", request.ID),
		fiber.Map{"message": "looks good"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", resp.StatusCode)
	}

	updated, err := f.server.moderation.GetRequest(t.Context(), request.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if !updated.IsApproved(&updated.Collection.Workflow) {
		t.Fatalf("expected request approved after the only step cleared")
	}

	var collection models.ModerationCollection
	if err := f.server.db.First(&collection, f.collection.ID).Error; err != nil {
		t.Fatalf("reload collection: %v", err)
	}
	if collection.Status != models.StatusArchived {
		t.Fatalf("expected ARCHIVED after full approval, got %s", collection.Status)
	}
}

func TestApproveRequest_ForbiddenForNonReviewer(t *testing.T) {
	t.Parallel()

	f := newReviewFixture(t)
	request := submitFixture(t, f)
	app := newTestApp(f.server, f.author.ID, registerRequestRoutes(f.server))

	resp, _ := doJSON(t, app, http.MethodPost, fmt.Sprintf("/requests/%d/approve", request.ID), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-reviewer, got %d", resp.StatusCode)
	}
}

func TestRejectThenResubmitFlow(t *testing.T) {
	t.Parallel()

	f := newReviewFixture(t)
	request := submitFixture(t, f)

	reviewerApp := newTestApp(f.server, f.reviewer.ID, registerRequestRoutes(f.server))
	resp, _ := doJSON(t, reviewerApp, http.MethodPost, fmt.Sprintf("/requests/%d/reject", request.ID),
		fiber.Map{"message": "typos"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d", resp.StatusCode)
	}

	// The reviewer cannot resubmit someone else's rejected work.
	resp, _ = doJSON(t, reviewerApp, http.MethodPost, fmt.Sprintf("/requests/%d/resubmit", request.ID), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("reviewer resubmit: expected 403, got %d", resp.StatusCode)
	}

	authorApp := newTestApp(f.server, f.author.ID, registerRequestRoutes(f.server))
	resp, _ = doJSON(t, authorApp, http.MethodPost, fmt.Sprintf("/requests/%d/resubmit", request.ID),
		fiber.Map{"message": "fixed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("author resubmit: expected 200, got %d", resp.StatusCode)
	}

	updated, err := f.server.moderation.GetRequest(t.Context(), request.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	workflow := &updated.Collection.Workflow
	if updated.IsRejected() {
		t.Fatalf("expected request back in review after resubmit")
	}
	if len(updated.PendingSteps(workflow)) != 1 {
		t.Fatalf("expected the step pending again after resubmit")
	}
}

func TestGetRequest_DerivedState(t *testing.T) {
	t.Parallel()

	f := newReviewFixture(t)
	request := submitFixture(t, f)
	app := newTestApp(f.server, f.reviewer.ID, registerRequestRoutes(f.server))

	resp, raw := doJSON(t, app, http.MethodGet, fmt.Sprintf("/requests/%d", request.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		IsApproved   bool                  `json:"is_approved"`
		IsRejected   bool                  `json:"is_rejected"`
		PendingSteps []models.WorkflowStep `json:"pending_steps"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.IsApproved || body.IsRejected {
		t.Fatalf("fresh request must be neither approved nor rejected")
	}
	if len(body.PendingSteps) != 1 {
		t.Fatalf("expected 1 pending step, got %d", len(body.PendingSteps))
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	t.Parallel()

	f := newReviewFixture(t)
	app := newTestApp(f.server, f.reviewer.ID, registerRequestRoutes(f.server))

	resp, _ := doJSON(t, app, http.MethodGet, "/requests/9999", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
