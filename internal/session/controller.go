package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadscout/hiring-feed-collector/internal/batch"
	"github.com/leadscout/hiring-feed-collector/internal/models"
	"github.com/leadscout/hiring-feed-collector/internal/pagedriver"
	"github.com/leadscout/hiring-feed-collector/internal/queue"
	"github.com/leadscout/hiring-feed-collector/internal/results"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is active
	ErrAlreadyRunning = errors.New("session: already running")
	// ErrNotRunning is returned by Stop when no session is active
	ErrNotRunning = errors.New("session: not running")
	// ErrDriverUnresponsive is the outcome of a refresh whose liveness poll gave up
	ErrDriverUnresponsive = errors.New("session: page driver unresponsive after refresh")
)

// Store is the durable state the controller reads and writes
type Store interface {
	LoadLeads(ctx context.Context) []models.Lead
	SaveLeads(ctx context.Context, leads []models.Lead) error
	LoadSettings(ctx context.Context) models.Settings
	LoadPromptTemplate(ctx context.Context) string
	LoadProviderSelection(ctx context.Context) models.ProviderSelection
}

// ClassifierFactory builds the classifier for a session from the stored
// provider selection and prompt template.
type ClassifierFactory func(selection models.ProviderSelection, template string) (batch.Classifier, error)

// StartOptions control how a session begins
type StartOptions struct {
	// Resume keeps the persisted leads instead of clearing them
	Resume bool
}

// Controller runs streaming sessions: it scans the feed, drains the queue
// through the classifier, refreshes the page once the auto-refresh threshold
// is met and completes on a limit or on Stop.
type Controller struct {
	driver    pagedriver.Driver
	store     Store
	factory   ClassifierFactory
	timing    Timing
	batchOpts batch.Options

	queue *queue.Queue
	acc   *results.Accumulator

	mu         sync.Mutex
	state      SessionState
	starting   bool
	proc       *batch.Processor
	sessionCtx context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	outcome    error

	// drainMu is held while a drain pass runs so a refresh can wait for it
	drainMu     sync.Mutex
	drainWake   chan struct{}
	advanceWake chan struct{}
	wg          sync.WaitGroup

	// advanceCancel interrupts the AdvanceFeed call in flight, if any
	advanceCancel context.CancelFunc
}

// NewController creates a new session controller
func NewController(driver pagedriver.Driver, store Store, factory ClassifierFactory, timing Timing, batchOpts batch.Options) *Controller {
	return &Controller{
		driver:      driver,
		store:       store,
		factory:     factory,
		timing:      timing,
		batchOpts:   batchOpts,
		queue:       queue.New(),
		acc:         results.NewAccumulator(store),
		state:       SessionState{State: StateIdle, Status: "Idle"},
		drainWake:   make(chan struct{}, 1),
		advanceWake: make(chan struct{}, 1),
	}
}

// Start begins a new session. It refuses while another session is active or
// when the stored provider selection cannot be used.
func (c *Controller) Start(ctx context.Context, opts StartOptions) error {
	c.mu.Lock()
	if c.starting || c.isRunningLocked() {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.starting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	// Goroutines of a completed session may still be finishing a batch
	c.wg.Wait()

	settings := c.store.LoadSettings(ctx)
	selection := c.store.LoadProviderSelection(ctx)
	template := c.store.LoadPromptTemplate(ctx)

	classifier, err := c.factory(selection, template)
	if err != nil {
		c.mu.Lock()
		c.state.Status = fmt.Sprintf("Cannot start: %v", err)
		c.mu.Unlock()
		return fmt.Errorf("failed to configure classifier: %w", err)
	}

	// Late writes from the previous session must not overwrite this one
	if err := c.acc.Flush(ctx); err != nil {
		zap.L().Warn("session: previous lead writes failed", zap.Error(err))
	}

	c.queue.Reset()
	c.acc.Reset()
	restored := 0
	if opts.Resume {
		leads := c.store.LoadLeads(ctx)
		c.acc.Restore(leads)
		c.queue.Seed(identities(leads))
		// Restored leads count as analyzed by an earlier run
		restored = c.acc.LeadCount()
	} else if err := c.store.SaveLeads(ctx, []models.Lead{}); err != nil {
		zap.L().Warn("session: failed to clear stored leads", zap.Error(err))
	}

	proc := batch.NewProcessor(c.queue, classifier, c.acc, batch.Hooks{
		OnRecorded: c.onRecorded,
		OnLead:     c.onLead,
		Continue:   c.canDrain,
	}, c.batchOpts)

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.state = SessionState{
		ID:            uuid.NewString(),
		State:         StateScanning,
		StartedAt:     time.Now().UTC(),
		Settings:      settings,
		Status:        "Scanning feed",
		TotalAnalyzed: restored,
	}
	c.proc = proc
	c.sessionCtx = sessionCtx
	c.cancel = cancel
	c.done = make(chan struct{})
	c.outcome = nil
	id := c.state.ID
	c.mu.Unlock()

	zap.L().Info("session: started",
		zap.String("session_id", id),
		zap.Bool("resume", opts.Resume),
		zap.Int("restored_leads", c.acc.LeadCount()),
		zap.Int("post_limit", settings.PostLimit),
		zap.Int("lead_limit", settings.LeadLimit),
		zap.Bool("auto_refresh", settings.AutoRefreshEnabled),
		zap.Int("auto_refresh_posts", settings.AutoRefreshPosts))

	c.goSafe(sessionCtx, "scan", c.scanLoop)
	c.goSafe(sessionCtx, "limits", c.limitLoop)
	c.goSafe(sessionCtx, "metrics", c.metricsLoop)
	c.goSafe(sessionCtx, "drain", c.drainLoop)
	c.goSafe(sessionCtx, "advance", c.advanceLoop)

	return nil
}

// Stop ends the running session. The queue and results stay available.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunningLocked() {
		return ErrNotRunning
	}
	c.completeLocked("Stopped by user", nil)
	return nil
}

// Wait blocks until the current session completes, its goroutines exit and
// pending lead writes are stored. It returns ErrDriverUnresponsive if the
// session ended because the page stopped responding.
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	<-done
	c.wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), c.timing.FlushTimeout)
	defer cancel()
	if err := c.acc.Flush(flushCtx); err != nil {
		zap.L().Warn("session: failed to store leads", zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Snapshot returns a copy of the session counters and pipeline gauges
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		SessionState:  c.state,
		Running:       c.isRunningLocked(),
		QueueLength:   c.queue.Len(),
		AnalyzedCount: c.acc.AnalyzedCount(),
		LeadCount:     c.acc.LeadCount(),
		FailedCount:   c.acc.FailedCount(),
	}
	if c.proc != nil {
		snap.BatchWidth = c.proc.Width()
	}
	return snap
}

// Leads returns the accumulated leads in sequence order
func (c *Controller) Leads() []models.Lead {
	return c.acc.Leads()
}

// TotalAnalyzed returns the number of items analyzed during the session,
// including those analyzed before a refresh.
func (c *Controller) TotalAnalyzed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TotalAnalyzed
}

func (c *Controller) isRunningLocked() bool {
	return c.state.State == StateScanning || c.state.State == StateRefreshing
}

// completeLocked moves the session to Complete. It is idempotent.
func (c *Controller) completeLocked(status string, outcome error) {
	if c.state.State == StateComplete {
		return
	}

	c.state.State = StateComplete
	c.state.Status = status
	c.state.EndedAt = time.Now().UTC()
	c.outcome = outcome

	c.stopAdvanceLocked()
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		close(c.done)
	}

	zap.L().Info("session: complete",
		zap.String("session_id", c.state.ID),
		zap.String("status", status),
		zap.Int("analyzed", c.acc.AnalyzedCount()),
		zap.Int("leads", c.acc.LeadCount()),
		zap.Int("refreshes", c.state.RefreshCount))
}

func (c *Controller) complete(status string, outcome error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completeLocked(status, outcome)
}

func (c *Controller) setStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.State != StateComplete {
		c.state.Status = status
	}
}

// goSafe runs fn on its own goroutine. A panic is logged, shown as the
// status line and ends the session.
func (c *Controller) goSafe(ctx context.Context, name string, fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("session: recovered from panic", zap.String("task", name), zap.Any("panic", r))
				c.complete(fmt.Sprintf("Internal error in %s: %v", name, r), fmt.Errorf("panic in %s: %v", name, r))
			}
		}()
		fn(ctx)
	}()
}

// scanLoop extracts visible items on every tick and queues the new ones
func (c *Controller) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(c.timing.ScanInterval)
	defer ticker.Stop()

	c.scanOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scanOnce(ctx)
		}
	}
}

// scanOnce runs one extraction tick. A failed or panicking extraction is
// reported on the status line and the next tick tries again.
func (c *Controller) scanOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("session: recovered from panic during extraction", zap.Any("panic", r))
			c.setStatus(fmt.Sprintf("Could not read feed: %v", r))
		}
	}()

	if c.currentState() != StateScanning {
		return
	}

	items, err := c.driver.ExtractVisibleItems(ctx)
	if err != nil {
		if ctx.Err() == nil {
			zap.L().Warn("session: extraction failed", zap.Error(err))
			c.setStatus(fmt.Sprintf("Could not read feed: %v", err))
		}
		return
	}

	c.mu.Lock()
	if c.state.State != StateScanning {
		c.mu.Unlock()
		return
	}
	if n := len(items); n > c.state.lastVisible {
		c.state.TotalItemsSeen += n - c.state.lastVisible
		c.state.lastVisible = n
	}
	c.mu.Unlock()

	if added := c.queue.EnqueueIfNew(items); added > 0 {
		zap.L().Debug("session: queued new items", zap.Int("added", added), zap.Int("visible", len(items)))
		notify(c.drainWake)
	}
}

// limitLoop checks the post and lead limits on a fast tick
func (c *Controller) limitLoop(ctx context.Context) {
	ticker := time.NewTicker(c.timing.LimitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkLimits()
		}
	}
}

func (c *Controller) checkLimits() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A refresh in progress owns the session until it resumes scanning
	if c.state.State != StateScanning {
		return
	}
	c.checkPostLimitLocked()
	c.checkLeadLimitLocked()
}

func (c *Controller) checkPostLimitLocked() {
	limit := c.state.Settings.PostLimit
	if limit > 0 && c.acc.AnalyzedCount() >= limit {
		c.state.PostLimitReached = true
		c.completeLocked(fmt.Sprintf("Post limit reached (%d)", limit), nil)
	}
}

func (c *Controller) checkLeadLimitLocked() {
	limit := c.state.Settings.LeadLimit
	if limit > 0 && c.acc.LeadCount() >= limit {
		c.state.LeadLimitReached = true
		c.completeLocked(fmt.Sprintf("Lead limit reached (%d)", limit), nil)
	}
}

// metricsLoop logs progress. It never changes session state.
func (c *Controller) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(c.timing.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.Snapshot()
			zap.L().Debug("session: progress",
				zap.String("state", string(snap.State)),
				zap.Int("seen", snap.TotalItemsSeen),
				zap.Int("queued", snap.QueueLength),
				zap.Int("analyzed", snap.AnalyzedCount),
				zap.Int("leads", snap.LeadCount),
				zap.Int("failed", snap.FailedCount),
				zap.Int("batch_width", snap.BatchWidth))
		}
	}
}

// drainLoop runs the batch processor whenever new items are queued
func (c *Controller) drainLoop(ctx context.Context) {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.drainWake:
		}

		c.drainMu.Lock()
		// In-flight calls finish even if the session completes meanwhile
		proc.DrainOnce(context.WithoutCancel(ctx))
		c.drainMu.Unlock()
	}
}

func (c *Controller) canDrain() bool {
	return c.currentState() == StateScanning
}

// onRecorded runs after each analyzed item. Auto-refresh takes priority over
// the post limit within the same step.
func (c *Controller) onRecorded(models.AnalyzedItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Items finishing after Complete still count
	c.state.TotalAnalyzed++
	if c.state.State != StateScanning {
		return
	}

	settings := c.state.Settings
	if settings.AutoRefreshEnabled && !c.state.AutoRefreshFired &&
		c.acc.AnalyzedCount() >= settings.AutoRefreshPosts {
		c.state.AutoRefreshFired = true
		c.state.RefreshCount++
		c.state.State = StateRefreshing
		c.state.Status = "Refreshing feed"
		c.stopAdvanceLocked()

		c.goSafe(c.sessionCtx, "refresh", c.refresh)
		return
	}

	c.checkPostLimitLocked()
}

func (c *Controller) onLead(lead models.Lead) {
	zap.L().Info("session: new lead",
		zap.String("name", lead.DisplayName),
		zap.String("company", lead.Organization),
		zap.Int("sequence", lead.SequenceNumber))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.State == StateScanning {
		c.checkLeadLimitLocked()
	}
}

// advanceLoop keeps asking the driver for more content while scanning. After
// the feed stops growing it waits for a refresh or a new session.
func (c *Controller) advanceLoop(ctx context.Context) {
	for {
		if advCtx, ok := c.beginAdvance(ctx); ok {
			result, err := c.driver.AdvanceFeed(advCtx)
			c.endAdvance()

			switch {
			case ctx.Err() != nil:
				return
			case advCtx.Err() != nil:
				// interrupted by a refresh or by completion
			case err != nil:
				zap.L().Warn("session: advance failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.timing.ScanInterval):
				}
				continue
			case result.Completed:
				c.mu.Lock()
				if c.state.State == StateScanning {
					c.state.FeedExhausted = true
					c.state.Status = "Reached end of feed, watching for new posts"
				}
				c.mu.Unlock()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-c.advanceWake:
		}
	}
}

// beginAdvance returns a context for one AdvanceFeed call if the session may
// advance. The check and the registration happen under one lock, so a stop
// issued afterwards always reaches the call.
func (c *Controller) beginAdvance(ctx context.Context) (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.State != StateScanning || c.state.FeedExhausted {
		return nil, false
	}
	advCtx, cancel := context.WithCancel(ctx)
	c.advanceCancel = cancel
	return advCtx, true
}

func (c *Controller) endAdvance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.advanceCancel != nil {
		c.advanceCancel()
		c.advanceCancel = nil
	}
}

// stopAdvanceLocked interrupts scrolling, including a call that has not yet
// reached the driver.
func (c *Controller) stopAdvanceLocked() {
	c.driver.StopAdvance()
	if c.advanceCancel != nil {
		c.advanceCancel()
	}
}

func (c *Controller) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.State
}

func identities(leads []models.Lead) []string {
	ids := make([]string, len(leads))
	for i, lead := range leads {
		ids[i] = lead.Identity()
	}
	return ids
}

// notify wakes a loop without blocking
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
