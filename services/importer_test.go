package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tschoem/rental-manager-sub000/config"
	"github.com/tschoem/rental-manager-sub000/models"
	"github.com/tschoem/rental-manager-sub000/scraper/airbnb"
	"github.com/tschoem/rental-manager-sub000/utils"
)

type fakeScraper struct {
	data    *models.ListingData
	err     error
	started chan struct{} // closed when a scrape begins, when non-nil
	release chan struct{} // scrape blocks until closed, when non-nil
}

func (s *fakeScraper) ScrapeListing(ctx context.Context, listingURL, galleryURL string, report models.ProgressFunc) (*models.ListingData, error) {
	if s.started != nil {
		close(s.started)
		s.started = nil
	}
	if s.release != nil {
		<-s.release
	}
	if report != nil {
		report(models.StageScraping, "Loading listing page", 8, "navigated to "+listingURL)
		report(models.StageScraping, "Collecting photos", 40, "")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

// fakeStore mirrors the real store's contract: ExistingSourceURLs returns
// the source URL of every image record it has, including ones InsertImages
// added earlier.
type fakeStore struct {
	mu        sync.Mutex
	nextOrder int
	nextID    int64
	created   []*models.Room
	images    []models.Image
	inserted  []models.Image
}

func (s *fakeStore) NextRoomOrder(ctx context.Context, propertyID int64) (int, error) {
	return s.nextOrder, nil
}

func (s *fakeStore) CreateRoom(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	room.ID = s.nextID
	room.CreatedAt = time.Now()
	s.created = append(s.created, room)
	return nil
}

func (s *fakeStore) ExistingSourceURLs(ctx context.Context, propertyID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, img := range s.images {
		if img.PropertyID == propertyID && img.SourceURL != "" {
			out = append(out, img.SourceURL)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertImages(ctx context.Context, images []models.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, images...)
	s.images = append(s.images, images...)
	return nil
}

// seedImage plants an already-stored image record the way a previous import
// would have left it: a stored URL plus the scraped source it came from.
func (s *fakeStore) seedImage(propertyID int64, storedURL, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, models.Image{PropertyID: propertyID, URL: storedURL, SourceURL: source})
}

type fakeImageStore struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

// DownloadAndStore returns URLs in the stored URL space, deliberately
// disjoint from the scraped source space.
func (s *fakeImageStore) DownloadAndStore(ctx context.Context, sourceURL, folder string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, sourceURL)
	s.mu.Unlock()
	if s.fail[sourceURL] {
		return "", errors.New("image store: fetch failed")
	}
	return "/images/" + folder + "/" + strings.TrimPrefix(sourceURL, "https://a0.muscache.com/im/pictures/"), nil
}

type sinkEvent struct {
	stage   models.ImportStage
	percent int
	errMsg  string
}

type recordingSink struct {
	mu        sync.Mutex
	events    []sinkEvent
	completed int
}

func (s *recordingSink) Update(subjectID string, stage models.ImportStage, message string, percent int, logLine, errorMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{stage: stage, percent: percent, errMsg: errorMessage})
}

func (s *recordingSink) MarkComplete(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
}

func (s *recordingSink) last() sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func sourceURL(name string) string {
	return "https://a0.muscache.com/im/pictures/" + name
}

func testConfig() *config.Config {
	return &config.Config{ImageBatchSize: 4, MaxImages: 50}
}

func newTestImporter(scraper ListingScraper, store *fakeStore, images *fakeImageStore, sink ProgressSink) *Importer {
	return NewImporter(testConfig(), utils.NewLogger(), scraper, store, images, sink)
}

func TestImportRoomSkipsAlreadyImportedImages(t *testing.T) {
	scraper := &fakeScraper{data: &models.ListingData{
		Title:  "Loft",
		Images: []string{sourceURL("a.jpg"), sourceURL("c.jpg"), sourceURL("d.jpg")},
	}}
	store := &fakeStore{}
	store.seedImage(7, "/images/property-7/a.jpg", sourceURL("a.jpg"))
	store.seedImage(7, "/images/property-7/b.jpg", sourceURL("b.jpg"))
	store.seedImage(7, "/images/property-7/c.jpg", sourceURL("c.jpg"))
	images := &fakeImageStore{}
	im := newTestImporter(scraper, store, images, &recordingSink{})

	if _, err := im.ImportRoom(context.Background(), 7, "https://www.airbnb.com/rooms/7", ""); err != nil {
		t.Fatalf("ImportRoom: %v", err)
	}

	if len(images.calls) != 1 || images.calls[0] != sourceURL("d.jpg") {
		t.Errorf("downloads: got %v, want only the one unseen source URL", images.calls)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted image records: got %d, want 1", len(store.inserted))
	}
	rec := store.inserted[0]
	if rec.SourceURL != sourceURL("d.jpg") {
		t.Errorf("record source: got %q", rec.SourceURL)
	}
	if !strings.HasPrefix(rec.URL, "/images/property-7/") {
		t.Errorf("record stored URL: got %q", rec.URL)
	}
	if rec.RoomID == nil {
		t.Error("inserted record should carry the new room's id")
	}
}

func TestImportRoomReimportDownloadsNothing(t *testing.T) {
	data := &models.ListingData{
		Title:  "Loft",
		Images: []string{sourceURL("1.jpg"), sourceURL("2.jpg"), sourceURL("3.jpg")},
	}
	store := &fakeStore{}
	images := &fakeImageStore{}
	im := newTestImporter(&fakeScraper{data: data}, store, images, &recordingSink{})

	listing := "https://www.airbnb.com/rooms/7"
	first, err := im.ImportRoom(context.Background(), 7, listing, "")
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := im.ImportRoom(context.Background(), 7, listing, "")
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.ID == first.ID {
		t.Error("a re-import still creates a new room")
	}

	// Stored URLs live in a different URL space than scraped sources, so
	// the filter must key on the recorded source, not the stored location.
	if len(images.calls) != 3 {
		t.Errorf("total downloads across both imports: got %d, want 3", len(images.calls))
	}
	if len(store.inserted) != 3 {
		t.Errorf("total image records: got %d, want 3 (no duplicates)", len(store.inserted))
	}
}

func TestImportRoomToleratesPartialDownloadFailures(t *testing.T) {
	var urls []string
	for i := 0; i < 10; i++ {
		urls = append(urls, sourceURL(fmt.Sprintf("%d.jpg", i)))
	}
	scraper := &fakeScraper{data: &models.ListingData{Title: "Loft", Images: urls}}
	store := &fakeStore{}
	images := &fakeImageStore{fail: map[string]bool{
		sourceURL("2.jpg"): true,
		sourceURL("5.jpg"): true,
		sourceURL("8.jpg"): true,
	}}
	sink := &recordingSink{}
	im := newTestImporter(scraper, store, images, sink)

	room, err := im.ImportRoom(context.Background(), 7, "https://www.airbnb.com/rooms/7", "")
	if err != nil {
		t.Fatalf("download failures must not fail the import: %v", err)
	}
	if room == nil || room.ID == 0 {
		t.Fatal("expected a created room")
	}

	if len(store.inserted) != 7 {
		t.Errorf("inserted image records: got %d, want 7", len(store.inserted))
	}
	if last := sink.last(); last.stage != models.StageComplete || last.percent != 100 {
		t.Errorf("final progress: got %q/%d, want complete/100", last.stage, last.percent)
	}
}

func TestImportRoomProgressIsMonotonic(t *testing.T) {
	var urls []string
	for i := 0; i < 9; i++ {
		urls = append(urls, sourceURL(fmt.Sprintf("%d.jpg", i)))
	}
	scraper := &fakeScraper{data: &models.ListingData{Title: "Loft", Images: urls}}
	sink := &recordingSink{}
	im := newTestImporter(scraper, &fakeStore{}, &fakeImageStore{}, sink)

	if _, err := im.ImportRoom(context.Background(), 7, "https://www.airbnb.com/rooms/7", ""); err != nil {
		t.Fatalf("ImportRoom: %v", err)
	}

	prev := -1
	for _, ev := range sink.events {
		if ev.percent < prev {
			t.Fatalf("percent went backwards: %d after %d (stage %s)", ev.percent, prev, ev.stage)
		}
		prev = ev.percent
	}
	if prev != 100 {
		t.Errorf("final percent: got %d, want 100", prev)
	}
	if sink.completed != 1 {
		t.Errorf("MarkComplete calls: got %d, want 1", sink.completed)
	}
}

func TestImportRoomClassifiesFailures(t *testing.T) {
	scrapeErr := fmt.Errorf("load listing page: %w", context.DeadlineExceeded)
	scraper := &fakeScraper{err: scrapeErr}
	sink := &recordingSink{}
	im := newTestImporter(scraper, &fakeStore{}, &fakeImageStore{}, sink)

	_, err := im.ImportRoom(context.Background(), 7, "https://www.airbnb.com/rooms/7", "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "took too long") {
		t.Errorf("expected the timeout classification, got: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("classification must keep the original error as the cause")
	}

	last := sink.last()
	if last.stage != models.StageError {
		t.Errorf("final stage: got %q, want error", last.stage)
	}
	if last.errMsg == "" {
		t.Error("expected a user-facing error message in the record")
	}
	if sink.completed != 1 {
		t.Errorf("MarkComplete calls: got %d, want 1 (errors complete the record too)", sink.completed)
	}
}

func TestImportRoomPassesRedirectThrough(t *testing.T) {
	scraper := &fakeScraper{data: &models.ListingData{Title: "Loft"}}
	sink := &recordingSink{}
	im := newTestImporter(scraper, &fakeStore{}, &fakeImageStore{}, sink)

	redirect := &RedirectError{Location: "/admin/properties/7/rooms/1"}
	im.SetFinalizer(func(room *models.Room) error { return redirect })

	room, err := im.ImportRoom(context.Background(), 7, "https://www.airbnb.com/rooms/7", "")
	if !errors.Is(err, redirect) {
		t.Fatalf("redirect must pass through unchanged, got: %v", err)
	}
	if !IsRedirect(err) {
		t.Error("IsRedirect should recognize the returned error")
	}
	if room == nil {
		t.Error("the room was created before the redirect and should be returned")
	}
	for _, ev := range sink.events {
		if ev.stage == models.StageError {
			t.Fatal("a redirect must never record an error stage")
		}
	}
}

func TestImportRoomSerializesPerProperty(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	scraper := &fakeScraper{
		data:    &models.ListingData{Title: "Loft"},
		started: started,
		release: release,
	}
	im := newTestImporter(scraper, &fakeStore{}, &fakeImageStore{}, &recordingSink{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := im.ImportRoom(context.Background(), 7, "https://www.airbnb.com/rooms/7", "")
		firstDone <- err
	}()
	<-started

	if _, err := im.ImportRoom(context.Background(), 7, "https://www.airbnb.com/rooms/7", ""); !errors.Is(err, ErrImportInFlight) {
		t.Errorf("second concurrent import: got %v, want ErrImportInFlight", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first import: %v", err)
	}

	// The slot frees up once the first import finishes.
	if _, err := im.ImportRoom(context.Background(), 7, "https://www.airbnb.com/rooms/7", ""); err != nil {
		t.Errorf("import after the first completed: %v", err)
	}
}

func TestImportRoomEndToEnd(t *testing.T) {
	price := 120.0
	capacity := 4
	scraper := &fakeScraper{data: &models.ListingData{
		Title:       "Cozy Loft",
		Description: "A bright and airy loft in the heart of the old town.",
		Price:       &price,
		Capacity:    &capacity,
		Amenities:   airbnb.NormalizeAmenities([]string{"WiFi", "Unavailable: Pool", "Kitchen"}, 30),
		Images:      []string{sourceURL("1.jpg"), sourceURL("2.jpg"), sourceURL("3.jpg")},
	}}
	store := &fakeStore{nextOrder: 2}
	images := &fakeImageStore{}
	tracker := NewProgressTracker()
	im := NewImporter(testConfig(), utils.NewLogger(), scraper, store, images, tracker)

	listing := "https://www.airbnb.com/rooms/12345"
	room, err := im.ImportRoom(context.Background(), 7, listing, "")
	if err != nil {
		t.Fatalf("ImportRoom: %v", err)
	}

	if room.Name != "Cozy Loft" {
		t.Errorf("name: got %q", room.Name)
	}
	if room.PropertyID != 7 || room.AirbnbURL != listing || room.Order != 2 {
		t.Errorf("room fields: %+v", room)
	}
	if room.Price == nil || *room.Price != 120 {
		t.Errorf("price: got %v", room.Price)
	}
	if room.Capacity == nil || *room.Capacity != 4 {
		t.Errorf("capacity: got %v", room.Capacity)
	}
	if len(room.Amenities) != 2 || room.Amenities[0] != "WiFi" || room.Amenities[1] != "Kitchen" {
		t.Errorf("amenities: got %v", room.Amenities)
	}

	if len(store.inserted) != 3 {
		t.Fatalf("inserted image records: got %d, want 3", len(store.inserted))
	}
	for _, img := range store.inserted {
		if !strings.HasPrefix(img.URL, "/images/property-7/") {
			t.Errorf("stored URL %q should point at the property folder", img.URL)
		}
		if img.SourceURL == "" {
			t.Errorf("record for %q is missing its source URL", img.URL)
		}
		if img.RoomID == nil || *img.RoomID != room.ID {
			t.Errorf("record for %q should belong to room %d", img.URL, room.ID)
		}
	}

	p, ok := tracker.Get("7")
	if !ok || !p.Completed || p.Stage != models.StageComplete || p.Percent != 100 {
		t.Errorf("tracker record: %+v ok=%v", p, ok)
	}
}
