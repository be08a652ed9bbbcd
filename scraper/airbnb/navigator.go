package airbnb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/tschoem/rental-manager-sub000/config"
	"github.com/tschoem/rental-manager-sub000/utils"
)

// ErrBrowserLaunch marks a failure to start the browser process. Always
// fatal for the import.
var ErrBrowserLaunch = errors.New("browser launch failed")

// ErrNavigation marks a page that never loaded or never produced a body.
// Fatal on the primary listing page, recoverable on optional sub-pages.
var ErrNavigation = errors.New("page navigation failed")

// navigator is the single page-load primitive shared by every extractor.
type navigator struct {
	cfg    *config.Config
	logger *utils.Logger
}

func newNavigator(cfg *config.Config, logger *utils.Logger) *navigator {
	return &navigator{cfg: cfg, logger: logger}
}

// prepare configures a freshly created tab: a fixed desktop viewport so
// responsive layouts keep their desktop DOM shape, and (optionally) request
// interception that aborts image/media downloads. Stylesheets are never
// blocked — layout-dependent extraction breaks without them.
func (n *navigator) prepare(tab context.Context, blockMedia bool) error {
	if err := chromedp.Run(tab, chromedp.EmulateViewport(1905, 1000)); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if !blockMedia {
		return nil
	}

	chromedp.ListenTarget(tab, func(ev interface{}) {
		req, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tab)
			ectx := cdp.WithExecutor(tab, c.Target)
			switch req.ResourceType {
			case network.ResourceTypeImage, network.ResourceTypeMedia:
				_ = fetch.FailRequest(req.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
			default:
				_ = fetch.ContinueRequest(req.RequestID).Do(ectx)
			}
		}()
	})
	if err := chromedp.Run(tab, fetch.Enable()); err != nil {
		return fmt.Errorf("enable request interception: %w", err)
	}
	return nil
}

// open navigates the tab to pageURL waiting only for initial DOM
// construction (full network idle times out on pages with long-polling
// trackers), then waits explicitly for a body element, then applies a short
// settle delay so client-side hydration can run.
func (n *navigator) open(tab context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(tab, time.Duration(n.cfg.NavTimeoutSec)*time.Second)
	defer cancel()

	err := chromedp.Run(navCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errText, err := page.Navigate(pageURL).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return errors.New(errText)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("%w: navigate %s: %v", ErrNavigation, pageURL, err)
	}

	bodyCtx, cancelBody := context.WithTimeout(tab, time.Duration(n.cfg.BodyTimeoutSec)*time.Second)
	defer cancelBody()

	if err := chromedp.Run(bodyCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: body never became ready on %s: %v", ErrNavigation, pageURL, err)
	}

	if err := chromedp.Run(tab, chromedp.Sleep(time.Duration(n.cfg.SettleDelayMs)*time.Millisecond)); err != nil {
		return fmt.Errorf("%w: settle on %s: %v", ErrNavigation, pageURL, err)
	}

	n.logger.Debug("[navigate] Loaded %s", pageURL)
	return nil
}
