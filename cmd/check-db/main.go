// Package main is a diagnostic tool for testing database connectivity and
// inspecting live portfolio data. It loads the server configuration, connects
// to the database, prints the schema migration version and the number of hero
// images, partners, projects and admin accounts, and lists the projects with
// their image counts. The binary exits with a non-zero code on any failure so
// it can gate deployments on a reachable, migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/doubleh-portfolio/portfolio-api/internal/config"
	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/repositories"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		log.Fatal("Schema is dirty; fix the failed migration before deploying")
	}

	provider := db.Static(database)
	heroes := repositories.NewHeroRepository(provider)
	partners := repositories.NewPartnerRepository(provider)
	projects := repositories.NewProjectRepository(provider)

	// Check counts
	fmt.Println("\n=== CONTENT ===")
	heroCount, err := heroes.CountHeroImages(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	partnerCount, err := partners.CountPartners(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("Hero images: %d\nPartners:    %d\n", heroCount, partnerCount)

	var admins int
	if err := database.GetContext(ctx, &admins, "SELECT COUNT(*) FROM admin_users"); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("Admins:      %d\n", admins)
	if admins == 0 {
		fmt.Println("Warning: no admin account; set auth.admin_password or auth.admin_password_hash")
	}

	// Check projects
	fmt.Println("\n=== PROJECTS ===")
	list, err := projects.ListProjects(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, p := range list {
		fmt.Printf("Project: %s (ID: %s) - images: %d\n", p.Name, p.ID, len(p.Images))
	}
	if len(list) == 0 {
		fmt.Println("No projects found!")
	}
}
