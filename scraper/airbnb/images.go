package airbnb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/tschoem/rental-manager-sub000/utils"
)

const (
	galleryPageMaxIters  = 50
	galleryModalMaxIters = 100
	stableItersToStop    = 3
	galleryStepDelay     = 400 * time.Millisecond
)

// collectImages runs the two-phase image strategy: a dedicated gallery
// sub-page when one is supplied, otherwise (or when that yields nothing) an
// in-page gallery modal, and in every case a final sweep of the current
// page. The result is deduplicated in discovery order and capped.
func (s *Scraper) collectImages(tab context.Context, nav *navigator, galleryURL string) []string {
	set := utils.NewOrderedSet()

	if galleryURL != "" {
		s.collectFromGalleryPage(tab, nav, galleryURL, set)
	}
	if set.Size() == 0 {
		s.collectFromModal(tab, set)
	}

	// Cheap safety net: whatever page is current, sweep it once more.
	if candidates, err := s.gatherImageURLs(tab); err == nil {
		for _, u := range candidates {
			set.Add(u)
		}
	}

	images := set.Values(s.cfg.MaxImages)
	s.logger.Info("[scrape] Collected %d unique listing images", len(images))
	return images
}

// collectFromGalleryPage pages through the dedicated gallery URL in its own
// tab. Navigation failure is recoverable — the modal phase takes over.
func (s *Scraper) collectFromGalleryPage(tab context.Context, nav *navigator, galleryURL string, set *utils.OrderedSet) {
	subTab, cancel := chromedp.NewContext(tab)
	defer cancel()

	if err := nav.prepare(subTab, s.cfg.BlockMedia); err != nil {
		s.logger.Warn("[scrape] Gallery tab setup failed: %v", err)
		return
	}
	if err := nav.open(subTab, galleryURL); err != nil {
		s.logger.Warn("[scrape] Gallery page unavailable (%s): %v", galleryURL, err)
		return
	}

	iters := collectLoop(galleryPageMaxIters, stableItersToStop, s.cfg.MaxImages, set,
		func() ([]string, error) { return s.gatherImageURLs(subTab) },
		func() error { return s.advanceGallery(subTab) },
	)
	s.logger.Debug("[scrape] Gallery page loop: %d iterations, %d images", iters, set.Size())
}

// collectFromModal tries to open the in-page photo modal via the trigger
// selector list, pages through it, and closes it again.
func (s *Scraper) collectFromModal(tab context.Context, set *utils.OrderedSet) {
	opened, err := s.clickFirst(tab, galleryTriggerSelectors)
	if err != nil || opened == "" {
		s.logger.Debug("[scrape] No gallery modal trigger matched")
		return
	}
	s.logger.Debug("[scrape] Opened gallery modal via %q", opened)
	_ = chromedp.Run(tab, chromedp.Sleep(galleryStepDelay))

	iters := collectLoop(galleryModalMaxIters, stableItersToStop, s.cfg.MaxImages, set,
		func() ([]string, error) { return s.gatherImageURLs(tab) },
		func() error { return s.advanceGallery(tab) },
	)
	s.logger.Debug("[scrape] Gallery modal loop: %d iterations, %d images", iters, set.Size())

	if closed, err := s.clickFirst(tab, galleryCloseSelectors); err != nil || closed == "" {
		s.logger.Debug("[scrape] Gallery modal close button not found")
	}
}

// collectLoop repeatedly gathers candidate URLs into the set, advancing the
// gallery between rounds. It stops at maxIters, when the cap is reached, or
// once stableLimit consecutive rounds add nothing new. Returns the number
// of rounds run.
func collectLoop(maxIters, stableLimit, capLimit int, set *utils.OrderedSet,
	gather func() ([]string, error), advance func() error) int {

	stable := 0
	for i := 0; i < maxIters; i++ {
		candidates, err := gather()
		if err != nil {
			return i
		}

		added := 0
		for _, u := range candidates {
			if !isListingImageURL(u) {
				continue
			}
			if set.Add(u) {
				added++
			}
		}

		if added == 0 {
			stable++
			if stable >= stableLimit {
				return i + 1
			}
		} else {
			stable = 0
		}

		if set.Size() >= capLimit {
			return i + 1
		}
		if err := advance(); err != nil {
			return i + 1
		}
	}
	return maxIters
}

// gatherImageURLs runs the collection probe once on the given tab.
func (s *Scraper) gatherImageURLs(tab context.Context) ([]string, error) {
	var urls []string
	if err := s.evaluate(tab, collectImageURLsJS, &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

// advanceGallery presses ArrowRight and nudges the scroll position so the
// next gallery frame renders.
func (s *Scraper) advanceGallery(tab context.Context) error {
	stepCtx, cancel := context.WithTimeout(tab, evaluateTimeout)
	defer cancel()
	return chromedp.Run(stepCtx,
		chromedp.KeyEvent(kb.ArrowRight),
		chromedp.Evaluate(scrollNudgeJS, nil),
		chromedp.Sleep(galleryStepDelay),
	)
}

// clickFirst clicks the first element matching any selector in the list,
// returning the selector that matched ('' when none did).
func (s *Scraper) clickFirst(tab context.Context, selectors []string) (string, error) {
	encoded, err := json.Marshal(selectors)
	if err != nil {
		return "", err
	}
	var matched string
	if err := s.evaluate(tab, fmt.Sprintf(clickFirstJS, encoded), &matched); err != nil {
		return "", err
	}
	return matched, nil
}
