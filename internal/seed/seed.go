// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumVersions int
	ShouldClean bool
}

// Seed populates the database with a realistic moderation setup: users,
// reviewer groups, roles, an editorial workflow and one collecting batch.
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("🌱 Starting database seeding with %d users and %d versions...", opts.NumUsers, opts.NumVersions)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Println("⚠️  Warning: Could not clear all existing data, but continuing anyway...")
		}
	}

	users, err := createUsers(db, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("✓ %d users created", len(users))

	groups, err := createGroups(db, users)
	if err != nil {
		return fmt.Errorf("failed to create groups: %w", err)
	}
	log.Printf("✓ %d reviewer groups created", len(groups))

	workflow, err := createEditorialWorkflow(db, users, groups)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	log.Printf("✓ workflow %q with %d steps created", workflow.Name, len(workflow.Steps))

	versions, err := createVersions(db, users, opts.NumVersions)
	if err != nil {
		return fmt.Errorf("failed to create versions: %w", err)
	}
	log.Printf("✓ %d draft versions created", len(versions))

	collection, err := createCollection(db, users[0], workflow, versions)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	log.Printf("✓ collection %q with %d requests created", collection.Name, len(collection.Requests))

	log.Println("🎉 Database seeding completed successfully!")
	return nil
}

func clearData(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	sql := `TRUNCATE TABLE request_comments, collection_comments, moderation_request_tree_nodes,
moderation_request_actions, moderation_requests, moderation_collections, versions,
workflow_steps, workflows, roles, user_groups, groups, users RESTART IDENTITY CASCADE;`
	return db.Exec(sql).Error
}
