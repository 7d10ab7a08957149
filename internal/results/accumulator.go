package results

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

const persistTimeout = 10 * time.Second

// LeadStore persists the full lead set
type LeadStore interface {
	SaveLeads(ctx context.Context, leads []models.Lead) error
}

// Accumulator holds the analyzed items and the leads derived from them.
// Sequence numbers are assigned here and nowhere else.
type Accumulator struct {
	mu       sync.Mutex
	analyzed map[string]models.AnalyzedItem
	order    []string
	nextSeq  int
	failed   int
	leads    []models.Lead
	leadIDs  map[string]struct{}
	now      func() time.Time

	store     LeadStore
	persistMu sync.Mutex
	pending   sync.WaitGroup
	lastErr   error
}

// NewAccumulator creates an empty accumulator that persists leads to store.
// A nil store disables persistence.
func NewAccumulator(store LeadStore) *Accumulator {
	return &Accumulator{
		analyzed: make(map[string]models.AnalyzedItem),
		leadIDs:  make(map[string]struct{}),
		nextSeq:  1,
		now:      time.Now,
		store:    store,
	}
}

// RecordAnalyzed records the classification outcome for item and assigns the
// next sequence number. It returns false if the identity was already recorded.
func (a *Accumulator) RecordAnalyzed(item models.Item, isHiring bool, failureReason string) (models.AnalyzedItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := item.Identity()
	if _, ok := a.analyzed[id]; ok {
		return models.AnalyzedItem{}, false
	}

	record := models.AnalyzedItem{
		Item:           item,
		IsHiringSignal: isHiring && failureReason == "",
		AnalyzedAt:     a.now(),
		SequenceNumber: a.nextSeq,
		FailureReason:  failureReason,
	}
	a.nextSeq++
	if failureReason != "" {
		a.failed++
	}
	a.analyzed[id] = record
	a.order = append(a.order, id)
	return record, true
}

// PromoteToLead adds a lead for an analyzed hiring item and schedules
// persistence of the lead set. It returns false if the item is not a recorded
// hiring signal or a lead with the same identity already exists.
func (a *Accumulator) PromoteToLead(item models.AnalyzedItem, enrichment models.Enrichment) (models.Lead, bool) {
	a.mu.Lock()
	id := item.Identity()
	recorded, ok := a.analyzed[id]
	if !ok || !recorded.IsHiringSignal {
		a.mu.Unlock()
		return models.Lead{}, false
	}
	if _, exists := a.leadIDs[id]; exists {
		a.mu.Unlock()
		return models.Lead{}, false
	}

	lead := models.Lead{AnalyzedItem: recorded, Enrichment: enrichment}
	a.leads = append(a.leads, lead)
	a.leadIDs[id] = struct{}{}
	a.mu.Unlock()

	a.schedulePersist()
	return lead, true
}

func (a *Accumulator) schedulePersist() {
	if a.store == nil {
		return
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		// Writers are serialized and each writes the newest lead set
		a.persistMu.Lock()
		defer a.persistMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		err := a.store.SaveLeads(ctx, a.Leads())
		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()
		if err != nil {
			zap.L().Warn("results: failed to persist leads", zap.Error(err))
		}
	}()
}

// Flush waits for scheduled persistence to finish and returns the error of
// the most recent write.
func (a *Accumulator) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for lead persistence: %w", ctx.Err())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Leads returns a copy of the lead set ordered by sequence number
func (a *Accumulator) Leads() []models.Lead {
	a.mu.Lock()
	defer a.mu.Unlock()

	leads := slices.Clone(a.leads)
	slices.SortStableFunc(leads, func(x, y models.Lead) int {
		return x.SequenceNumber - y.SequenceNumber
	})
	return leads
}

// Analyzed returns the analyzed items in recording order
func (a *Accumulator) Analyzed() []models.AnalyzedItem {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.AnalyzedItem, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.analyzed[id])
	}
	return out
}

// AnalyzedCount returns the number of items analyzed since the last reset
func (a *Accumulator) AnalyzedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// LeadCount returns the number of leads
func (a *Accumulator) LeadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.leads)
}

// FailedCount returns the number of analyses that failed this session
func (a *Accumulator) FailedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failed
}

// ResetProgress forgets analyzed items while keeping the leads and the
// sequence counter.
func (a *Accumulator) ResetProgress() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.analyzed = make(map[string]models.AnalyzedItem)
	a.order = nil
}

// Restore replaces the lead set with leads, dropping duplicate identities.
// The sequence counter is advanced past every restored lead.
func (a *Accumulator) Restore(leads []models.Lead) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.leads = nil
	a.leadIDs = make(map[string]struct{})
	for _, lead := range leads {
		id := lead.Identity()
		if _, ok := a.leadIDs[id]; ok {
			continue
		}
		a.leadIDs[id] = struct{}{}
		a.leads = append(a.leads, lead)
		if lead.SequenceNumber >= a.nextSeq {
			a.nextSeq = lead.SequenceNumber + 1
		}
	}
}

// Reset clears everything for a fresh session
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.analyzed = make(map[string]models.AnalyzedItem)
	a.order = nil
	a.nextSeq = 1
	a.failed = 0
	a.leads = nil
	a.leadIDs = make(map[string]struct{})
	a.lastErr = nil
}
