package pagedriver

import (
	"context"
	"errors"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// ErrClosed is returned by operations on a driver that has been closed
var ErrClosed = errors.New("pagedriver: driver closed")

// AdvanceResult reports why AdvanceFeed returned
type AdvanceResult struct {
	// Completed is set when repeated advances produced no new content
	Completed bool
	// StoppedByUser is set when StopAdvance interrupted the advance
	StoppedByUser bool
}

// Driver controls the page that renders the feed
type Driver interface {
	// ExtractVisibleItems returns the items currently rendered
	ExtractVisibleItems(ctx context.Context) ([]models.Item, error)
	// AdvanceFeed loads more content until the feed stops growing or StopAdvance is called
	AdvanceFeed(ctx context.Context) (AdvanceResult, error)
	// StopAdvance interrupts a running AdvanceFeed
	StopAdvance()
	// Reload reloads the feed page
	Reload(ctx context.Context) error
	// Probe checks that the page is responsive
	Probe(ctx context.Context) error
	Close() error
}
