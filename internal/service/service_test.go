package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"clearance/internal/content"
	"clearance/internal/models"
	"clearance/internal/notifications"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A file-backed database: with ":memory:" every pooled connection gets
	// its own empty database, so queries issued outside an open transaction's
	// connection cannot see the migrated schema.
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "service_test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// recordingNotifier captures every delivered event for assertions.
type recordingNotifier struct {
	deliveries []delivery
}

type delivery struct {
	userID uint
	event  notifications.Event
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID uint, event notifications.Event) error {
	n.deliveries = append(n.deliveries, delivery{userID: userID, event: event})
	return nil
}

func (n *recordingNotifier) NotifyUsers(ctx context.Context, userIDs []uint, event notifications.Event) error {
	seen := make(map[uint]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		_ = n.NotifyUser(ctx, id, event)
	}
	return nil
}

// eventsOfType filters captured deliveries by event type.
func (n *recordingNotifier) eventsOfType(eventType string) []delivery {
	var out []delivery
	for _, d := range n.deliveries {
		if d.event.Type == eventType {
			out = append(out, d)
		}
	}
	return out
}

// fixture wires the full service stack against an in-memory database with a
// two-required-step workflow (reviewer1 then reviewer2) and one collection.
type fixture struct {
	db       *gorm.DB
	notifier *recordingNotifier
	store    *content.Store

	moderation  *ModerationService
	collections *CollectionService
	bulk        *BulkService

	author    models.User
	reviewer1 models.User
	reviewer2 models.User

	nextObjectID uint

	workflow   models.Workflow
	collection models.ModerationCollection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupServiceTestDB(t)

	f := &fixture{db: db, notifier: &recordingNotifier{}, store: content.NewStore(db)}

	f.author = models.User{Username: "author", Email: "author@example.com", Password: "pw", IsActive: true}
	f.reviewer1 = models.User{Username: "reviewer1", Email: "reviewer1@example.com", Password: "pw", IsActive: true}
	f.reviewer2 = models.User{Username: "reviewer2", Email: "reviewer2@example.com", Password: "pw", IsActive: true}
	require.NoError(t, db.Create(&f.author).Error)
	require.NoError(t, db.Create(&f.reviewer1).Error)
	require.NoError(t, db.Create(&f.reviewer2).Error)

	role1 := models.Role{Name: "First reviewer", UserID: &f.reviewer1.ID}
	role2 := models.Role{Name: "Second reviewer", UserID: &f.reviewer2.ID}
	require.NoError(t, db.Create(&role1).Error)
	require.NoError(t, db.Create(&role2).Error)

	workflow := models.Workflow{Name: "Editorial", IsDefault: true}
	require.NoError(t, db.Create(&workflow).Error)
	require.NoError(t, db.Create(&models.WorkflowStep{WorkflowID: workflow.ID, RoleID: role1.ID, IsRequired: true, Order: 1}).Error)
	require.NoError(t, db.Create(&models.WorkflowStep{WorkflowID: workflow.ID, RoleID: role2.ID, IsRequired: true, Order: 2}).Error)

	f.moderation = NewModerationService(db)
	f.collections = NewCollectionService(db, f.moderation, f.store, f.notifier)
	f.bulk = NewBulkService(db, f.moderation, f.collections, f.store, f.notifier)

	collection, err := f.collections.CreateCollection(context.Background(), "August batch", &f.author, workflow.ID)
	require.NoError(t, err)
	f.collection = *collection
	f.workflow = collection.Workflow

	return f
}

// newVersion persists a draft version owned by the given user.
func (f *fixture) newVersion(t *testing.T, createdBy uint, parentID *uint) models.Version {
	t.Helper()
	f.nextObjectID++
	v := models.Version{
		ContentType: "page",
		ObjectID:    f.nextObjectID,
		Label:       "draft",
		State:       models.VersionDraft,
		CreatedByID: createdBy,
		ParentID:    parentID,
	}
	require.NoError(t, f.db.Create(&v).Error)
	return v
}

// newOutsider persists a user involved in neither authorship nor any role.
func (f *fixture) newOutsider(t *testing.T) models.User {
	t.Helper()
	u := models.User{Username: "outsider", Email: "outsider@example.com", Password: "pw", IsActive: true}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

// addAndSubmit adds the given versions and submits the collection for review.
func (f *fixture) addAndSubmit(t *testing.T, versions ...models.Version) []uint {
	t.Helper()
	ctx := context.Background()
	var requestIDs []uint
	for _, v := range versions {
		request, _, err := f.collections.AddVersion(ctx, f.collection.ID, v.ID, &f.author, false)
		require.NoError(t, err)
		requestIDs = append(requestIDs, request.ID)
	}
	require.NoError(t, f.collections.SubmitForReview(ctx, f.collection.ID, &f.author, nil))
	return requestIDs
}

// reloadRequest fetches a fully preloaded request.
func (f *fixture) reloadRequest(t *testing.T, id uint) *models.ModerationRequest {
	t.Helper()
	request, err := f.moderation.GetRequest(context.Background(), id)
	require.NoError(t, err)
	return request
}

// reloadCollection fetches the fixture collection fresh from the database.
func (f *fixture) reloadCollection(t *testing.T) *models.ModerationCollection {
	t.Helper()
	collection, err := f.collections.GetCollection(context.Background(), f.collection.ID)
	require.NoError(t, err)
	return collection
}
