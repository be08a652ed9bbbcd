package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tschoem/rental-manager-sub000/config"
	"github.com/tschoem/rental-manager-sub000/models"
	"github.com/tschoem/rental-manager-sub000/storage"
	"github.com/tschoem/rental-manager-sub000/utils"
)

// ErrImportInFlight is returned when an import is requested for a property
// that already has one running. Imports are serialized per subject so
// progress records never interleave.
var ErrImportInFlight = errors.New("an import is already running for this property")

// RedirectError is the web layer's navigation signal. It is not a failure:
// the orchestrator re-throws it unchanged and never records an error stage
// or reclassifies it.
type RedirectError struct {
	Location string
}

func (e *RedirectError) Error() string {
	return "redirect to " + e.Location
}

// IsRedirect reports whether err carries a redirect signal anywhere in its
// chain.
func IsRedirect(err error) bool {
	var r *RedirectError
	return errors.As(err, &r)
}

// ListingScraper is the scrape entry point the importer drives. The
// concrete implementation lives in scraper/airbnb.
type ListingScraper interface {
	ScrapeListing(ctx context.Context, listingURL, galleryURL string, report models.ProgressFunc) (*models.ListingData, error)
}

// ProgressSink receives progress writes. *ProgressTracker satisfies it;
// writes are fire-and-forget and must never fail the import.
type ProgressSink interface {
	Update(subjectID string, stage models.ImportStage, message string, percent int, logLine, errorMessage string)
	MarkComplete(subjectID string)
}

// Importer sequences a listing import: scrape, dedupe and download images,
// persist the room, and keep the progress tracker current throughout.
type Importer struct {
	cfg     *config.Config
	logger  *utils.Logger
	scraper ListingScraper
	store   storage.RoomStore
	images  storage.ImageStore
	tracker ProgressSink

	// finalize runs after a fully successful import; the admin layer uses
	// it to issue its redirect to the new room's page.
	finalize func(*models.Room) error

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// NewImporter wires an Importer from its collaborators.
func NewImporter(cfg *config.Config, logger *utils.Logger, scraper ListingScraper,
	store storage.RoomStore, images storage.ImageStore, tracker ProgressSink) *Importer {
	return &Importer{
		cfg:      cfg,
		logger:   logger,
		scraper:  scraper,
		store:    store,
		images:   images,
		tracker:  tracker,
		inflight: make(map[int64]struct{}),
	}
}

// SetFinalizer installs the post-import hook. Optional.
func (im *Importer) SetFinalizer(fn func(*models.Room) error) {
	im.finalize = fn
}

// ImportRoom runs one complete import for a property. It always creates a
// new Room — re-importing the same listing URL does not merge into an
// existing one. On failure the error is classified into a user-facing
// message, recorded in the progress tracker, and returned with the original
// error as its cause; the tracker is marked complete on every outcome.
func (im *Importer) ImportRoom(ctx context.Context, propertyID int64, listingURL, galleryURL string) (*models.Room, error) {
	if !im.begin(propertyID) {
		return nil, ErrImportInFlight
	}
	defer im.end(propertyID)

	subject := strconv.FormatInt(propertyID, 10)
	room, err := im.run(ctx, subject, propertyID, listingURL, galleryURL)
	if err != nil {
		if IsRedirect(err) {
			// Redirect signals pass through untouched — they are the web
			// framework's control flow, not a failure.
			return room, err
		}
		category := classifyError(err)
		im.logger.Error("[import] Property %d import failed: %v", propertyID, err)
		im.tracker.Update(subject, models.StageError, category, -1, "import failed: "+err.Error(), category)
		im.tracker.MarkComplete(subject)
		return nil, fmt.Errorf("%s: %w", category, err)
	}
	return room, nil
}

func (im *Importer) run(ctx context.Context, subject string, propertyID int64, listingURL, galleryURL string) (*models.Room, error) {
	im.tracker.Update(subject, models.StageInitializing, "Preparing import", 5,
		"import started for "+listingURL, "")

	data, err := im.scraper.ScrapeListing(ctx, listingURL, galleryURL,
		func(stage models.ImportStage, message string, percent int, logLine string) {
			im.tracker.Update(subject, stage, message, percent, logLine, "")
		})
	if err != nil {
		return nil, err
	}

	im.tracker.Update(subject, models.StageExtractingImages, "Preparing image downloads", 45,
		fmt.Sprintf("scrape produced %d image URLs", len(data.Images)), "")

	existing, err := im.store.ExistingSourceURLs(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("query existing images: %w", err)
	}
	fresh := filterKnownURLs(data.Images, existing)
	if skipped := len(data.Images) - len(fresh); skipped > 0 {
		im.tracker.Update(subject, models.StageExtractingImages,
			fmt.Sprintf("Downloading %d new images", len(fresh)), 48,
			fmt.Sprintf("skipped %d already-imported images", skipped), "")
	}

	stored, failed := im.downloadImages(ctx, subject, propertyID, fresh)
	if failed > 0 {
		im.logger.Warn("[import] %d of %d image downloads failed for property %d",
			failed, len(fresh), propertyID)
	}

	im.tracker.Update(subject, models.StageSaving, "Saving room", 90,
		fmt.Sprintf("saving room with %d stored images", len(stored)), "")

	order, err := im.store.NextRoomOrder(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("compute room order: %w", err)
	}

	room := &models.Room{
		PropertyID:  propertyID,
		Name:        data.Title,
		Description: data.Description,
		Price:       data.Price,
		Capacity:    data.Capacity,
		Amenities:   data.Amenities,
		AirbnbURL:   listingURL,
		Order:       order,
	}
	if err := im.store.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	if len(stored) > 0 {
		roomID := room.ID
		for i := range stored {
			stored[i].RoomID = &roomID
		}
		if err := im.store.InsertImages(ctx, stored); err != nil {
			return nil, fmt.Errorf("insert image records: %w", err)
		}
	}

	im.tracker.Update(subject, models.StageComplete, "Import complete", 100,
		fmt.Sprintf("room %d created with %d images (%d downloads failed)", room.ID, len(stored), failed), "")
	im.tracker.MarkComplete(subject)

	if im.finalize != nil {
		if err := im.finalize(room); err != nil {
			return room, err
		}
	}
	return room, nil
}

// downloadImages fetches image URLs in sequential batches; downloads
// within a batch run concurrently with settle-all semantics, so one
// failure never aborts its siblings. Returns image records pairing each
// stored URL with its source, in input order, plus the failure count.
// Image failures are never fatal.
func (im *Importer) downloadImages(ctx context.Context, subject string, propertyID int64, urls []string) ([]models.Image, int) {
	if len(urls) == 0 {
		return nil, 0
	}

	folder := fmt.Sprintf("property-%d", propertyID)
	batchSize := im.cfg.ImageBatchSize
	results := make([]string, len(urls))
	failed := 0
	totalBatches := (len(urls) + batchSize - 1) / batchSize

	for batch := 0; batch*batchSize < len(urls); batch++ {
		start := batch * batchSize
		end := start + batchSize
		if end > len(urls) {
			end = len(urls)
		}

		pool := utils.NewWorkerPool(batchSize, 0)
		var mu sync.Mutex
		batchFailed := 0

		for i := start; i < end; i++ {
			idx := i
			pool.Submit(func() {
				storedURL, err := im.images.DownloadAndStore(ctx, urls[idx], folder)
				if err != nil {
					im.logger.Warn("[import] Image download failed (%s): %v", urls[idx], err)
					mu.Lock()
					batchFailed++
					mu.Unlock()
					return
				}
				results[idx] = storedURL
			})
		}
		pool.Wait()
		failed += batchFailed

		percent := 50 + (35*(batch+1))/totalBatches
		im.tracker.Update(subject, models.StageExtractingImages,
			fmt.Sprintf("Downloaded batch %d/%d", batch+1, totalBatches), percent,
			fmt.Sprintf("batch %d: %d ok, %d failed", batch+1, end-start-batchFailed, batchFailed), "")
	}

	stored := make([]models.Image, 0, len(urls))
	for i, r := range results {
		if r == "" {
			continue
		}
		stored = append(stored, models.Image{
			PropertyID: propertyID,
			URL:        r,
			SourceURL:  urls[i],
		})
	}
	return stored, failed
}

// filterKnownURLs drops scraped URLs whose source is already recorded among
// the property's images, preserving scrape order.
func filterKnownURLs(scraped, existing []string) []string {
	known := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		known[u] = struct{}{}
	}

	out := make([]string, 0, len(scraped))
	for _, u := range scraped {
		if _, dup := known[u]; dup {
			continue
		}
		out = append(out, u)
	}
	return out
}

// classifyError maps an internal failure onto the small set of user-facing
// messages the admin UI shows. Matching is by substring on the underlying
// error text; the raw error stays attached as the cause.
func classifyError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "blob") || strings.Contains(msg, "storage"):
		return "Image storage failed — check the storage configuration"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "The listing page took too long to load — please try again"
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "dns"):
		return "A network error occurred while importing"
	case strings.Contains(msg, "redirect"):
		return "The listing URL redirected unexpectedly"
	default:
		return "Import failed — see the import log for details"
	}
}

func (im *Importer) begin(propertyID int64) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, busy := im.inflight[propertyID]; busy {
		return false
	}
	im.inflight[propertyID] = struct{}{}
	return true
}

func (im *Importer) end(propertyID int64) {
	im.mu.Lock()
	delete(im.inflight, propertyID)
	im.mu.Unlock()
}
