package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/tschoem/rental-manager-sub000/config"
	"github.com/tschoem/rental-manager-sub000/models"
	"github.com/tschoem/rental-manager-sub000/scraper/airbnb"
	"github.com/tschoem/rental-manager-sub000/services"
	"github.com/tschoem/rental-manager-sub000/storage"
	"github.com/tschoem/rental-manager-sub000/utils"
)

func main() {
	var (
		propertyName = flag.String("property", "", "property the imported room belongs to")
		listingURL   = flag.String("url", "", "Airbnb listing URL to import")
		galleryURL   = flag.String("gallery", "", "optional dedicated photo gallery URL")
	)
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()

	if *propertyName == "" || *listingURL == "" {
		fmt.Fprintln(os.Stderr, "usage: rental-manager -property <name> -url <listing-url> [-gallery <gallery-url>]")
		os.Exit(2)
	}

	logger.Info("=== Listing import starting ===")
	logger.Info("Property: %s | listing: %s", *propertyName, *listingURL)

	store, err := storage.NewPostgresStore(cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Error("Make sure the database is running: docker compose up -d")
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	property, err := store.EnsureProperty(ctx, *propertyName)
	if err != nil {
		logger.Error("Failed to resolve property: %v", err)
		os.Exit(1)
	}
	propertyID := property.ID

	provisioner := airbnb.NewProvisioner(cfg, logger)
	scraper := airbnb.New(cfg, logger, provisioner)
	images := storage.NewLocalImageStore(cfg.ImageDir, cfg.ImageBaseURL)
	tracker := services.NewProgressTracker()
	importer := services.NewImporter(cfg, logger, scraper, store, images, tracker)

	// Poll the tracker the way the admin UI does and echo progress.
	subject := strconv.FormatInt(propertyID, 10)
	done := make(chan struct{})
	go pollProgress(tracker, subject, logger, done)

	room, err := importer.ImportRoom(ctx, propertyID, *listingURL, *galleryURL)
	close(done)
	if err != nil {
		logger.Error("Import failed: %v", err)
		if progress, ok := tracker.Get(subject); ok {
			for _, line := range progress.Log {
				logger.Debug("  log: %s", line)
			}
		}
		os.Exit(1)
	}

	logger.Info("Imported room %d (%q) at position %d", room.ID, room.Name, room.Order)
	fmt.Printf("\n  Done. Room → /admin/properties/%d/rooms/%d\n\n", propertyID, room.ID)
}

// pollProgress mirrors the UI's polling loop: read the snapshot, print
// stage changes, stop once the record is completed.
func pollProgress(tracker *services.ProgressTracker, subject string, logger *utils.Logger, done <-chan struct{}) {
	var lastStage models.ImportStage
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			progress, ok := tracker.Get(subject)
			if !ok {
				continue
			}
			if progress.Stage != lastStage {
				logger.Info("[progress] %s — %s (%d%%)", progress.Stage, progress.Message, progress.Percent)
				lastStage = progress.Stage
			}
			if progress.Completed {
				return
			}
		}
	}
}
