package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// Classifier decides whether an item is a hiring signal and extracts its fields
type Classifier interface {
	Classify(ctx context.Context, item models.Item) (bool, error)
	Enrich(ctx context.Context, item models.Item) (models.Enrichment, error)
}

// Source yields queued items in discovery order
type Source interface {
	Take(n int) []models.Item
}

// Recorder receives analysis outcomes
type Recorder interface {
	RecordAnalyzed(item models.Item, isHiring bool, failureReason string) (models.AnalyzedItem, bool)
	PromoteToLead(item models.AnalyzedItem, enrichment models.Enrichment) (models.Lead, bool)
}

// Hooks are called as individual items complete. They run on the goroutine
// that analyzed the item, so they must be safe for concurrent use.
type Hooks struct {
	OnRecorded func(models.AnalyzedItem)
	OnLead     func(models.Lead)
	// Continue is checked before each batch; returning false ends the drain
	Continue func() bool
}

// Options configure width adaptation and pacing
type Options struct {
	InitialWidth int
	MinWidth     int
	MaxWidth     int
	FastBatch    time.Duration
	SlowBatch    time.Duration
	Cooldown     time.Duration
}

// DefaultOptions returns the standard width bounds and pacing
func DefaultOptions() Options {
	return Options{
		InitialWidth: 3,
		MinWidth:     1,
		MaxWidth:     5,
		FastBatch:    2 * time.Second,
		SlowBatch:    5 * time.Second,
		Cooldown:     500 * time.Millisecond,
	}
}

// Processor drains a Source in concurrent batches whose width follows the
// observed batch latency.
type Processor struct {
	source     Source
	classifier Classifier
	recorder   Recorder
	hooks      Hooks
	opts       Options

	mu    sync.Mutex
	width int
}

// NewProcessor creates a new batch processor
func NewProcessor(source Source, classifier Classifier, recorder Recorder, hooks Hooks, opts Options) *Processor {
	if opts.MinWidth <= 0 {
		opts.MinWidth = 1
	}
	if opts.MaxWidth < opts.MinWidth {
		opts.MaxWidth = opts.MinWidth
	}
	opts.InitialWidth = min(max(opts.InitialWidth, opts.MinWidth), opts.MaxWidth)

	return &Processor{
		source:     source,
		classifier: classifier,
		recorder:   recorder,
		hooks:      hooks,
		opts:       opts,
		width:      opts.InitialWidth,
	}
}

// Width returns the current batch width
func (p *Processor) Width() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width
}

// ResetWidth restores the initial batch width
func (p *Processor) ResetWidth() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width = p.opts.InitialWidth
}

// Adjust updates the width from one batch's wall-clock time and returns it
func (p *Processor) Adjust(elapsed time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case elapsed < p.opts.FastBatch:
		p.width = min(p.width+1, p.opts.MaxWidth)
	case elapsed > p.opts.SlowBatch:
		p.width = max(p.width-1, p.opts.MinWidth)
	}
	return p.width
}

// DrainOnce processes batches until the source is empty, the context is
// cancelled or Continue returns false. It returns the number of items
// processed.
func (p *Processor) DrainOnce(ctx context.Context) int {
	processed := 0
	for ctx.Err() == nil {
		if p.hooks.Continue != nil && !p.hooks.Continue() {
			break
		}

		n := p.RunBatch(ctx)
		if n == 0 {
			break
		}
		processed += n

		select {
		case <-ctx.Done():
		case <-time.After(p.opts.Cooldown):
		}
	}
	return processed
}

// RunBatch takes one batch from the source, analyzes it concurrently and
// adjusts the width. It returns the batch size.
func (p *Processor) RunBatch(ctx context.Context) int {
	items := p.source.Take(p.Width())
	if len(items) == 0 {
		return 0
	}

	start := time.Now()
	var g errgroup.Group
	for _, item := range items {
		item := item
		g.Go(func() error {
			p.process(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	width := p.Adjust(elapsed)
	zap.L().Debug("batch: completed",
		zap.Int("size", len(items)),
		zap.Duration("elapsed", elapsed),
		zap.Int("next_width", width))

	return len(items)
}

// process analyzes one item and records the outcome as soon as it is known
func (p *Processor) process(ctx context.Context, item models.Item) {
	isHiring, enrichment, err := p.analyze(ctx, item)
	if err != nil {
		zap.L().Warn("batch: analysis failed", zap.String("item", item.Identity()), zap.Error(err))
		if record, ok := p.recorder.RecordAnalyzed(item, false, err.Error()); ok && p.hooks.OnRecorded != nil {
			p.hooks.OnRecorded(record)
		}
		return
	}

	record, ok := p.recorder.RecordAnalyzed(item, isHiring, "")
	if !ok {
		return
	}
	if p.hooks.OnRecorded != nil {
		p.hooks.OnRecorded(record)
	}
	if !isHiring {
		return
	}

	if lead, ok := p.recorder.PromoteToLead(record, enrichment); ok && p.hooks.OnLead != nil {
		p.hooks.OnLead(lead)
	}
}

func (p *Processor) analyze(ctx context.Context, item models.Item) (isHiring bool, enrichment models.Enrichment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during analysis: %v", r)
		}
	}()

	isHiring, err = p.classifier.Classify(ctx, item)
	if err != nil {
		return false, models.Enrichment{}, fmt.Errorf("classify: %w", err)
	}
	if !isHiring {
		return false, models.Enrichment{}, nil
	}

	enrichment, err = p.classifier.Enrich(ctx, item)
	if err != nil {
		return false, models.Enrichment{}, fmt.Errorf("enrich: %w", err)
	}
	return true, enrichment, nil
}
