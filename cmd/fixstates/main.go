// Command fixstates runs the request state reconciliation sweep.
package main

import (
	"context"
	"flag"
	"log"

	"clearance/internal/config"
	"clearance/internal/database"
	"clearance/internal/observability"
	"clearance/internal/service"
)

func main() {
	performFix := flag.Bool("perform-fix", false, "Apply fixes instead of reporting only")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := observability.WithCorrelationID(context.Background(), observability.GenerateCorrelationID())
	report, err := service.NewReconcileService(db).FixStates(ctx, *performFix)
	if err != nil {
		log.Fatalf("Reconciliation failed: %v", err)
	}

	if report.DryRun {
		log.Printf("Dry run: %d inconsistent request(s) found: %v", report.Found, report.RequestID)
		if report.Found > 0 {
			log.Println("Re-run with --perform-fix to repair them")
		}
		return
	}
	log.Printf("Fixed %d of %d inconsistent request(s)", report.Fixed, report.Found)
}
