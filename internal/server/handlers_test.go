package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"clearance/internal/content"
	"clearance/internal/featureflags"
	"clearance/internal/models"
	"clearance/internal/notifications"
	"clearance/internal/service"
)

func setupHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// newTestServer wires a Server with real services over sqlite and a no-op
// notifier. Prometheus wiring is left out on purpose.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	db := setupHandlerTestDB(t)

	moderation := service.NewModerationService(db)
	store := content.NewStore(db)
	notifier := notifications.NewNotifier(nil, true)
	collections := service.NewCollectionService(db, moderation, store, notifier)
	bulk := service.NewBulkService(db, moderation, collections, store, notifier)

	return &Server{
		db:           db,
		notifier:     notifier,
		featureFlags: featureflags.NewManager("collection_comments=on,request_comments=on"),
		store:        store,
		moderation:   moderation,
		collections:  collections,
		bulk:         bulk,
		workflows:    service.NewWorkflowService(db),
		comments:     service.NewCommentService(db, featureflags.NewManager("collection_comments=on,request_comments=on")),
		reconcile:    service.NewReconcileService(db),
	}
}

// newTestApp mounts routes behind a middleware that impersonates userID,
// bypassing JWT auth.
func newTestApp(s *Server, userID uint, register func(app *fiber.App)) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		return c.Next()
	})
	register(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

// reviewFixture is a minimal single-step review setup: one author, one
// reviewer holding the only step, and a collecting batch with one version.
type reviewFixture struct {
	server     *Server
	author     models.User
	reviewer   models.User
	workflow   models.Workflow
	collection models.ModerationCollection
	version    models.Version
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	s := newTestServer(t)
	db := s.db

	f := &reviewFixture{server: s}
	f.author = models.User{Username: "author", Email: "author@example.com", Password: "pw", IsActive: true}
	f.reviewer = models.User{Username: "reviewer", Email: "reviewer@example.com", Password: "pw", IsActive: true}
	for _, u := range []*models.User{&f.author, &f.reviewer} {
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	role := models.Role{Name: "Reviewer", UserID: &f.reviewer.ID}
	if err := db.Create(&role).Error; err != nil {
		t.Fatalf("create role: %v", err)
	}
	f.workflow = models.Workflow{Name: "Single step", IsDefault: true}
	if err := db.Create(&f.workflow).Error; err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	step := models.WorkflowStep{WorkflowID: f.workflow.ID, RoleID: role.ID, IsRequired: true, Order: 1}
	if err := db.Create(&step).Error; err != nil {
		t.Fatalf("create step: %v", err)
	}

	f.collection = models.ModerationCollection{
		Name:       "Launch batch",
		AuthorID:   f.author.ID,
		WorkflowID: f.workflow.ID,
		Status:     models.StatusCollecting,
	}
	if err := db.Create(&f.collection).Error; err != nil {
		t.Fatalf("create collection: %v", err)
	}

	f.version = models.Version{
		ContentType: "page",
		ObjectID:    1,
		Label:       "Homepage",
		State:       models.VersionDraft,
		CreatedByID: f.author.ID,
	}
	if err := db.Create(&f.version).Error; err != nil {
		t.Fatalf("create version: %v", err)
	}
	return f
}

func (f *reviewFixture) collectionPath(suffix string) string {
	return fmt.Sprintf("/collections/%d%s", f.collection.ID, suffix)
}
