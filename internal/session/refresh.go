package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// refresh reloads the feed page while keeping the leads. Draining is paused
// for the whole sequence.
func (c *Controller) refresh(ctx context.Context) {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	c.mu.Lock()
	proc := c.proc
	refreshes := c.state.RefreshCount
	c.mu.Unlock()

	zap.L().Info("session: refresh started",
		zap.Int("refresh", refreshes),
		zap.Int("analyzed", c.acc.AnalyzedCount()),
		zap.Int("leads", c.acc.LeadCount()))

	c.persistLeads(ctx)

	if err := c.driver.Reload(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		zap.L().Warn("session: reload failed, probing page anyway", zap.Error(err))
	}

	if err := c.awaitLiveness(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		zap.L().Error("session: page unresponsive after refresh", zap.Error(err))
		c.complete("Page did not respond after refresh", ErrDriverUnresponsive)
		return
	}

	// Stored leads win unless the store lost some of them
	if stored := c.store.LoadLeads(ctx); len(stored) >= c.acc.LeadCount() {
		c.acc.Restore(stored)
	}

	c.acc.ResetProgress()
	c.queue.Reset()
	c.queue.Seed(identities(c.acc.Leads()))
	proc.ResetWidth()

	c.mu.Lock()
	if c.state.State != StateRefreshing {
		c.mu.Unlock()
		return
	}
	c.state.State = StateScanning
	c.state.FeedExhausted = false
	c.state.lastVisible = 0
	c.state.Status = "Scanning feed"
	c.mu.Unlock()

	zap.L().Info("session: refresh finished", zap.Int("leads", c.acc.LeadCount()))
	notify(c.advanceWake)
	notify(c.drainWake)
}

// persistLeads waits for pending lead writes and stores the current set
func (c *Controller) persistLeads(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(ctx, c.timing.FlushTimeout)
	defer cancel()

	if err := c.acc.Flush(flushCtx); err != nil {
		zap.L().Warn("session: pending lead writes failed", zap.Error(err))
	}
	if err := c.store.SaveLeads(flushCtx, c.acc.Leads()); err != nil {
		zap.L().Warn("session: failed to persist leads before refresh", zap.Error(err))
	}
}

// awaitLiveness probes the page until it responds or the attempts run out
func (c *Controller) awaitLiveness(ctx context.Context) error {
	attempts := max(c.timing.ProbeAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := c.driver.Probe(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.timing.ProbeInterval):
			}
		}
	}

	return fmt.Errorf("%w: gave up after %d attempts: %v", ErrDriverUnresponsive, attempts, lastErr)
}
