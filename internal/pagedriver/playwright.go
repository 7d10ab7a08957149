package pagedriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/leadscout/hiring-feed-collector/internal/config"
	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// PlaywrightDriver drives the feed in a headless Chromium page
type PlaywrightDriver struct {
	cfg     config.BrowserConfig
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page

	mu     sync.Mutex
	stopCh chan struct{}
	closed bool
}

// NewPlaywrightDriver launches Chromium, installs cookies and opens the feed
func NewPlaywrightDriver(ctx context.Context, cfg config.BrowserConfig) (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	d := &PlaywrightDriver{cfg: cfg, pw: pw, browser: browser}
	if err := d.openFeed(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *PlaywrightDriver) openFeed(ctx context.Context) error {
	browserCtx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 900},
	})
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	if d.cfg.CookiesPath != "" {
		cookies, err := LoadCookies(d.cfg.CookiesPath)
		if err != nil {
			zap.L().Warn("pagedriver: continuing without cookies", zap.Error(err))
		} else {
			pwCookies := make([]playwright.OptionalCookie, len(cookies))
			for i, c := range cookies {
				pwCookies[i] = c.ToPlaywright()
			}
			if err := browserCtx.AddCookies(pwCookies); err != nil {
				return fmt.Errorf("failed to add cookies: %w", err)
			}
		}
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	d.page = page

	return withTimeout(ctx, d.cfg.NavigateTimeout, func() error {
		_, err := page.Goto(d.cfg.FeedURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   millis(d.cfg.NavigateTimeout),
		})
		if err != nil {
			return fmt.Errorf("failed to load feed: %w", err)
		}
		return nil
	})
}

// ExtractVisibleItems parses the items currently rendered on the page
func (d *PlaywrightDriver) ExtractVisibleItems(ctx context.Context) ([]models.Item, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}

	var html string
	err := withTimeout(ctx, d.cfg.ExtractTimeout, func() error {
		var err error
		html, err = d.page.Content()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	return ParseItems(html, d.cfg.FeedURL)
}

// AdvanceFeed scrolls one viewport at a time until the page height stops
// changing for StuckAttempts consecutive scrolls or StopAdvance is called.
func (d *PlaywrightDriver) AdvanceFeed(ctx context.Context) (AdvanceResult, error) {
	if d.isClosed() {
		return AdvanceResult{}, ErrClosed
	}

	stop := d.resetStop()
	lastHeight, err := d.scrollHeight(ctx)
	if err != nil {
		return AdvanceResult{}, err
	}

	unchanged := 0
	for unchanged < d.cfg.StuckAttempts {
		select {
		case <-stop:
			return AdvanceResult{StoppedByUser: true}, nil
		case <-ctx.Done():
			return AdvanceResult{}, ctx.Err()
		default:
		}

		if _, err := d.page.Evaluate("window.scrollBy(0, window.innerHeight)"); err != nil {
			return AdvanceResult{}, fmt.Errorf("failed to scroll: %w", err)
		}

		select {
		case <-stop:
			return AdvanceResult{StoppedByUser: true}, nil
		case <-ctx.Done():
			return AdvanceResult{}, ctx.Err()
		case <-time.After(d.cfg.AdvanceWait):
		}

		height, err := d.scrollHeight(ctx)
		if err != nil {
			return AdvanceResult{}, err
		}
		if height == lastHeight {
			unchanged++
		} else {
			unchanged = 0
			lastHeight = height
		}
	}

	zap.L().Info("pagedriver: feed stopped growing", zap.Int("attempts", unchanged))
	return AdvanceResult{Completed: true}, nil
}

// StopAdvance interrupts a running AdvanceFeed
func (d *PlaywrightDriver) StopAdvance() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}
}

// Reload reloads the feed page
func (d *PlaywrightDriver) Reload(ctx context.Context) error {
	if d.isClosed() {
		return ErrClosed
	}
	d.StopAdvance()

	return withTimeout(ctx, d.cfg.ReloadTimeout, func() error {
		_, err := d.page.Reload(playwright.PageReloadOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   millis(d.cfg.ReloadTimeout),
		})
		if err != nil {
			return fmt.Errorf("failed to reload feed: %w", err)
		}
		return nil
	})
}

// Probe evaluates a trivial expression to confirm the page responds
func (d *PlaywrightDriver) Probe(ctx context.Context) error {
	if d.isClosed() {
		return ErrClosed
	}
	return withTimeout(ctx, d.cfg.ProbeTimeout, func() error {
		ready, err := d.page.Evaluate("document.readyState")
		if err != nil {
			return err
		}
		if ready != "complete" && ready != "interactive" {
			return fmt.Errorf("page not ready: %v", ready)
		}
		return nil
	})
}

// Close shuts down the browser and playwright
func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	d.StopAdvance()

	var errs []error
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
	}
	if d.pw != nil {
		errs = append(errs, d.pw.Stop())
	}
	return errors.Join(errs...)
}

func (d *PlaywrightDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// resetStop replaces the stop channel for a new advance
func (d *PlaywrightDriver) resetStop() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopCh != nil {
		close(d.stopCh)
	}
	d.stopCh = make(chan struct{})
	return d.stopCh
}

func (d *PlaywrightDriver) scrollHeight(ctx context.Context) (float64, error) {
	var height float64
	err := withTimeout(ctx, d.cfg.ProbeTimeout, func() error {
		v, err := d.page.Evaluate("document.body.scrollHeight")
		if err != nil {
			return err
		}
		switch n := v.(type) {
		case int:
			height = float64(n)
		case int64:
			height = float64(n)
		case float64:
			height = n
		default:
			return fmt.Errorf("unexpected scroll height %T", v)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read scroll height: %w", err)
	}
	return height, nil
}

// withTimeout runs fn and gives up after timeout or when ctx ends. fn keeps
// running in the background if it does not return in time.
func withTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
