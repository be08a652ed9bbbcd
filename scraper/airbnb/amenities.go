package airbnb

import (
	"context"

	"github.com/chromedp/chromedp"
)

// extractAmenities loads the /amenities sub-page in its own tab and reads
// row titles from the amenities dialog, with an icon-sibling fallback when
// the structured pass yields nothing. Every failure here is recoverable:
// the extractor logs and returns an empty slice, never an error.
func (s *Scraper) extractAmenities(tab context.Context, nav *navigator, listingURL string) []string {
	subTab, cancel := chromedp.NewContext(tab)
	defer cancel()

	if err := nav.prepare(subTab, s.cfg.BlockMedia); err != nil {
		s.logger.Warn("[scrape] Amenities tab setup failed: %v", err)
		return nil
	}

	pageURL := amenitiesURL(listingURL)
	if err := nav.open(subTab, pageURL); err != nil {
		s.logger.Warn("[scrape] Amenities page unavailable (%s): %v", pageURL, err)
		return nil
	}

	var rows []string
	if err := s.evaluate(subTab, amenityRowsJS, &rows); err != nil {
		s.logger.Warn("[scrape] Amenities dialog probe failed: %v", err)
	}

	amenities := NormalizeAmenities(rows, s.cfg.MaxAmenities)
	if len(amenities) > 0 {
		s.logger.Debug("[scrape] Amenities dialog yielded %d entries", len(amenities))
		return amenities
	}

	// Structured pass came back empty — read text next to icon-bearing rows.
	var fallback []string
	if err := s.evaluate(subTab, amenityIconSiblingsJS, &fallback); err != nil {
		s.logger.Warn("[scrape] Amenities fallback probe failed: %v", err)
		return nil
	}
	amenities = NormalizeAmenities(fallback, s.cfg.MaxAmenities)
	s.logger.Debug("[scrape] Amenities icon fallback yielded %d entries", len(amenities))
	return amenities
}
