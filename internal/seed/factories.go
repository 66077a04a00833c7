package seed

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"clearance/internal/models"
)

const seedPassword = "password123"

func init() {
	// seed gofakeit for richer content
	gofakeit.Seed(time.Now().UnixNano())
}

func createUsers(db *gorm.DB, count int) ([]models.User, error) {
	if count < 4 {
		// Author plus at least three reviewers.
		count = 4
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		first := gofakeit.FirstName()
		last := gofakeit.LastName()
		user := models.User{
			Username: strings.ToLower(fmt.Sprintf("%s.%s%d", first, last, gofakeit.Number(1, 999))),
			Email:    strings.ToLower(fmt.Sprintf("%s.%s%d@example.com", first, last, i)),
			Password: string(hash),
			IsActive: true,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func createGroups(db *gorm.DB, users []models.User) ([]models.Group, error) {
	if len(users) < 4 {
		return nil, fmt.Errorf("need at least 4 users, got %d", len(users))
	}

	editors := models.Group{Name: "Editors", Users: users[1 : len(users)/2+1]}
	legal := models.Group{Name: "Legal", Users: users[len(users)/2:]}

	for _, group := range []*models.Group{&editors, &legal} {
		if err := db.Create(group).Error; err != nil {
			return nil, err
		}
	}
	return []models.Group{editors, legal}, nil
}

func createEditorialWorkflow(db *gorm.DB, users []models.User, groups []models.Group) (*models.Workflow, error) {
	chiefID := users[len(users)-1].ID
	editorRole := models.Role{Name: "Editor", GroupID: &groups[0].ID}
	legalRole := models.Role{Name: "Legal review", GroupID: &groups[1].ID}
	chiefRole := models.Role{Name: "Editor in chief", UserID: &chiefID}
	for _, role := range []*models.Role{&editorRole, &legalRole, &chiefRole} {
		if err := db.Create(role).Error; err != nil {
			return nil, err
		}
	}

	workflow := models.Workflow{
		Name:                     "Editorial",
		IsDefault:                true,
		Identifier:               "ED-",
		RequiresComplianceNumber: true,
		ComplianceNumberBackend:  "sequential_with_identifier_prefix",
	}
	if err := db.Create(&workflow).Error; err != nil {
		return nil, err
	}

	steps := []models.WorkflowStep{
		{WorkflowID: workflow.ID, RoleID: editorRole.ID, IsRequired: true, Order: 1},
		{WorkflowID: workflow.ID, RoleID: legalRole.ID, IsRequired: false, Order: 2},
		{WorkflowID: workflow.ID, RoleID: chiefRole.ID, IsRequired: true, Order: 3},
	}
	for i := range steps {
		if err := db.Create(&steps[i]).Error; err != nil {
			return nil, err
		}
	}
	workflow.Steps = steps
	return &workflow, nil
}

func createVersions(db *gorm.DB, users []models.User, count int) ([]models.Version, error) {
	if count <= 0 {
		count = 10
	}

	contentTypes := []string{"page", "article", "snippet", "alias"}
	versions := make([]models.Version, 0, count)
	for i := 0; i < count; i++ {
		version := models.Version{
			ContentType: contentTypes[i%len(contentTypes)],
			ObjectID:    uint(i + 1),
			Label:       gofakeit.Sentence(4),
			State:       models.VersionDraft,
			CreatedByID: users[0].ID,
		}
		// Nest every third version under the previous one, so children
		// discovery has something to walk.
		if i%3 != 0 && len(versions) > 0 {
			parentID := versions[len(versions)-1].ID
			version.ParentID = &parentID
		}
		if err := db.Create(&version).Error; err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, nil
}

func createCollection(db *gorm.DB, author models.User, workflow *models.Workflow, versions []models.Version) (*models.ModerationCollection, error) {
	collection := models.ModerationCollection{
		Name:       fmt.Sprintf("%s launch", gofakeit.BuzzWord()),
		AuthorID:   author.ID,
		WorkflowID: workflow.ID,
		Status:     models.StatusCollecting,
	}
	if err := db.Create(&collection).Error; err != nil {
		return nil, err
	}

	// Only root versions go in directly; nested ones are left for the
	// children-discovery walk to find.
	for _, version := range versions {
		if version.ParentID != nil {
			continue
		}
		request := models.ModerationRequest{
			CollectionID: collection.ID,
			VersionID:    version.ID,
			AuthorID:     author.ID,
		}
		if err := db.Create(&request).Error; err != nil {
			return nil, err
		}
		node := models.ModerationRequestTreeNode{
			CollectionID:        collection.ID,
			ModerationRequestID: request.ID,
		}
		if err := db.Create(&node).Error; err != nil {
			return nil, err
		}
		collection.Requests = append(collection.Requests, request)
	}
	return &collection, nil
}
