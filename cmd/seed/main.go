// Command seed populates the database with a development moderation setup.
package main

import (
	"flag"
	"log"

	"clearance/internal/config"
	"clearance/internal/database"
	"clearance/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 8, "Number of users to create")
	numVersions := flag.Int("versions", 12, "Number of draft versions to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d versions, clean=%v\n", *numUsers, *numVersions, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.Seed(db, seed.Options{
		NumUsers:    *numUsers,
		NumVersions: *numVersions,
		ShouldClean: *shouldClean,
	}); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with test data.")
	log.Println("📧 All test users have the password: password123")
}
