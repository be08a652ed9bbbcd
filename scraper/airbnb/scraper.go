package airbnb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/tschoem/rental-manager-sub000/config"
	"github.com/tschoem/rental-manager-sub000/models"
	"github.com/tschoem/rental-manager-sub000/utils"
)

// evaluateTimeout bounds a single in-page extraction probe.
const evaluateTimeout = 10 * time.Second

// Scraper drives a headless browser through one listing page and its
// optional sub-pages, producing a ListingData. Extractor failures degrade
// to safe defaults; only browser launch and primary-page navigation are
// fatal.
type Scraper struct {
	cfg    *config.Config
	logger *utils.Logger
	prov   *Provisioner
	retry  *utils.RetryConfig
}

// New creates a Scraper sharing the given provisioner. The provisioner is
// constructed once per process; the scraper itself is cheap and stateless
// across imports.
func New(cfg *config.Config, logger *utils.Logger, prov *Provisioner) *Scraper {
	return &Scraper{
		cfg:    cfg,
		logger: logger,
		prov:   prov,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

// ScrapeListing scrapes the listing at listingURL, exploring galleryURL for
// photos when one is supplied. The progress callback is invoked at each
// extraction step; pass nil to skip reporting. The browser and all its tabs
// are closed before returning, on error paths included.
func (s *Scraper) ScrapeListing(ctx context.Context, listingURL, galleryURL string, report models.ProgressFunc) (*models.ListingData, error) {
	if report == nil {
		report = func(models.ImportStage, string, int, string) {}
	}

	opts, err := s.prov.AllocatorOptions()
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tab, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	report(models.StageScraping, "Launching browser", 8, "launching headless browser")
	if err := chromedp.Run(tab); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}

	nav := newNavigator(s.cfg, s.logger)
	if err := nav.prepare(tab, s.cfg.BlockMedia); err != nil {
		return nil, fmt.Errorf("%w: prepare tab: %v", ErrBrowserLaunch, err)
	}

	report(models.StageScraping, "Loading listing page", 12, "navigating to "+listingURL)
	if err := s.retry.Do(ctx, "load-listing-page", func() error {
		return nav.open(tab, listingURL)
	}); err != nil {
		return nil, err
	}

	data := &models.ListingData{}

	report(models.StageScraping, "Extracting title", 18, "extracting title")
	data.Title = s.extractTitle(tab)

	report(models.StageScraping, "Extracting description", 22, "extracting description")
	data.Description = s.extractDescription(tab)

	report(models.StageScraping, "Extracting price and capacity", 26, "extracting price and capacity")
	data.Price = s.extractPrice(tab)
	data.Capacity = s.extractCapacity(tab)

	report(models.StageScraping, "Extracting amenities", 32, "loading amenities page")
	data.Amenities = s.extractAmenities(tab, nav, listingURL)

	report(models.StageScraping, "Collecting images", 36, "collecting listing images")
	data.Images = s.collectImages(tab, nav, galleryURL)

	report(models.StageScraping, "Scrape finished", 40,
		fmt.Sprintf("scraped %q: %d amenities, %d images", data.Title, len(data.Amenities), len(data.Images)))
	return data, nil
}

// extractTitle reads the h1, falling back to og:title, falling back to the
// literal default. Never fails.
func (s *Scraper) extractTitle(tab context.Context) string {
	var res struct {
		H1 string `json:"h1"`
		Og string `json:"og"`
	}
	if err := s.evaluate(tab, titleJS, &res); err != nil {
		s.logger.Warn("[scrape] Title extraction failed: %v", err)
	}
	return pickTitle(res.H1, res.Og)
}

// extractDescription expands the "show more" control if present, then tries
// description containers, then the "About this space" heading, then the
// Open Graph description, then the literal default.
func (s *Scraper) extractDescription(tab context.Context) string {
	var clicked bool
	if err := s.evaluate(tab, expandDescriptionJS, &clicked); err == nil && clicked {
		_ = chromedp.Run(tab, chromedp.Sleep(500*time.Millisecond))
	}

	for _, script := range []string{descriptionBlocksJS, aboutSpaceBlocksJS} {
		var blocks []string
		if err := s.evaluate(tab, script, &blocks); err != nil {
			s.logger.Debug("[scrape] Description probe failed: %v", err)
			continue
		}
		if desc := buildDescription(blocks, s.cfg.MaxDescriptionPar); desc != "" {
			return desc
		}
	}

	var og string
	if err := s.evaluate(tab, ogDescriptionJS, &og); err == nil {
		if og = collapseWhitespace(og); og != "" {
			return og
		}
	}
	return defaultDescription
}

// extractPrice scans for a currency-and-"night" text and parses the first
// integer after the symbol. Nil when no price is visible.
func (s *Scraper) extractPrice(tab context.Context) *float64 {
	var text string
	if err := s.evaluate(tab, priceTextJS, &text); err != nil {
		s.logger.Warn("[scrape] Price extraction failed: %v", err)
		return nil
	}
	return parseNightlyPrice(text)
}

// extractCapacity scans for "N guest(s)". Nil when no capacity is visible.
func (s *Scraper) extractCapacity(tab context.Context) *int {
	var text string
	if err := s.evaluate(tab, capacityTextJS, &text); err != nil {
		s.logger.Warn("[scrape] Capacity extraction failed: %v", err)
		return nil
	}
	return parseGuestCapacity(text)
}

// evaluate runs a JS probe with a bounded timeout.
func (s *Scraper) evaluate(tab context.Context, script string, out interface{}) error {
	evalCtx, cancel := context.WithTimeout(tab, evaluateTimeout)
	defer cancel()
	return chromedp.Run(evalCtx, chromedp.Evaluate(script, out))
}

// amenitiesURL appends the conventional /amenities sub-path to a listing URL.
func amenitiesURL(listingURL string) string {
	u, err := url.Parse(listingURL)
	if err != nil {
		return strings.TrimSuffix(listingURL, "/") + "/amenities"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/amenities"
	return u.String()
}
