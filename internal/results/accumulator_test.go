package results

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// MockLeadStore is a mock implementation of the LeadStore interface
type MockLeadStore struct {
	mock.Mock
}

func (m *MockLeadStore) SaveLeads(ctx context.Context, leads []models.Lead) error {
	args := m.Called(ctx, leads)
	return args.Error(0)
}

func item(n int) models.Item {
	return models.Item{DisplayName: fmt.Sprintf("user-%d", n), PostURL: fmt.Sprintf("https://example.com/posts/%d", n)}
}

func TestRecordAnalyzed_SequenceIsGapless(t *testing.T) {
	acc := NewAccumulator(nil)

	for n := 1; n <= 10; n++ {
		record, ok := acc.RecordAnalyzed(item(n), n%2 == 0, "")
		require.True(t, ok)
		assert.Equal(t, n, record.SequenceNumber)
	}

	// Duplicates are rejected without consuming a sequence number
	_, ok := acc.RecordAnalyzed(item(3), true, "")
	assert.False(t, ok)

	record, ok := acc.RecordAnalyzed(item(11), false, "")
	require.True(t, ok)
	assert.Equal(t, 11, record.SequenceNumber)

	analyzed := acc.Analyzed()
	for i := 1; i < len(analyzed); i++ {
		assert.Equal(t, analyzed[i-1].SequenceNumber+1, analyzed[i].SequenceNumber)
	}
}

func TestRecordAnalyzed_ConcurrentCallers(t *testing.T) {
	acc := NewAccumulator(nil)

	var wg sync.WaitGroup
	for n := 0; n < 50; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			acc.RecordAnalyzed(item(n%25), false, "")
		}(n)
	}
	wg.Wait()

	analyzed := acc.Analyzed()
	require.Len(t, analyzed, 25)
	for i, record := range analyzed {
		assert.Equal(t, i+1, record.SequenceNumber)
	}
}

func TestRecordAnalyzed_FailureIsNotHiring(t *testing.T) {
	acc := NewAccumulator(nil)

	record, ok := acc.RecordAnalyzed(item(1), true, "provider unreachable")
	require.True(t, ok)
	assert.False(t, record.IsHiringSignal)
	assert.Equal(t, "provider unreachable", record.FailureReason)
	assert.Equal(t, 1, acc.FailedCount())
}

func TestPromoteToLead_Idempotent(t *testing.T) {
	acc := NewAccumulator(nil)

	record, _ := acc.RecordAnalyzed(item(1), true, "")
	enrichment := models.Enrichment{RoleTitle: "Recruiter", Organization: "Acme"}

	lead, ok := acc.PromoteToLead(record, enrichment)
	require.True(t, ok)
	assert.Equal(t, record.SequenceNumber, lead.SequenceNumber)

	_, ok = acc.PromoteToLead(record, enrichment)
	assert.False(t, ok)
	assert.Len(t, acc.Leads(), 1)
}

func TestPromoteToLead_SubsetOfHiringItems(t *testing.T) {
	acc := NewAccumulator(nil)

	notHiring, _ := acc.RecordAnalyzed(item(1), false, "")
	_, ok := acc.PromoteToLead(notHiring, models.Enrichment{})
	assert.False(t, ok)

	_, ok = acc.PromoteToLead(models.AnalyzedItem{Item: item(2), IsHiringSignal: true}, models.Enrichment{})
	assert.False(t, ok, "unrecorded item must not become a lead")

	hiring := map[string]bool{}
	for _, a := range acc.Analyzed() {
		if a.IsHiringSignal {
			hiring[a.Identity()] = true
		}
	}
	for _, l := range acc.Leads() {
		assert.True(t, hiring[l.Identity()])
	}
}

func TestPromoteToLead_PersistsAndFlushes(t *testing.T) {
	store := new(MockLeadStore)
	store.On("SaveLeads", mock.Anything, mock.MatchedBy(func(leads []models.Lead) bool {
		return len(leads) >= 1
	})).Return(nil)

	acc := NewAccumulator(store)
	for n := 1; n <= 3; n++ {
		record, _ := acc.RecordAnalyzed(item(n), true, "")
		acc.PromoteToLead(record, models.Enrichment{RoleTitle: "Engineer"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, acc.Flush(ctx))

	store.AssertNumberOfCalls(t, "SaveLeads", 3)
	last := store.Calls[len(store.Calls)-1].Arguments.Get(1).([]models.Lead)
	assert.Len(t, last, 3)
}

func TestFlush_ReportsPersistError(t *testing.T) {
	store := new(MockLeadStore)
	store.On("SaveLeads", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	acc := NewAccumulator(store)
	record, _ := acc.RecordAnalyzed(item(1), true, "")
	acc.PromoteToLead(record, models.Enrichment{})

	err := acc.Flush(context.Background())
	assert.EqualError(t, err, "disk full")
}

func TestResetProgress_KeepsLeadsAndSequence(t *testing.T) {
	acc := NewAccumulator(nil)

	for n := 1; n <= 4; n++ {
		record, _ := acc.RecordAnalyzed(item(n), n == 2, "")
		acc.PromoteToLead(record, models.Enrichment{})
	}
	acc.ResetProgress()

	assert.Equal(t, 0, acc.AnalyzedCount())
	assert.Equal(t, 1, acc.LeadCount())

	// Same identity can be analyzed again after a refresh; the lead set stays unique
	record, ok := acc.RecordAnalyzed(item(2), true, "")
	require.True(t, ok)
	assert.Equal(t, 5, record.SequenceNumber)
	_, ok = acc.PromoteToLead(record, models.Enrichment{})
	assert.False(t, ok)
	assert.Equal(t, 1, acc.LeadCount())
}

func TestRestore(t *testing.T) {
	acc := NewAccumulator(nil)

	persisted := []models.Lead{
		{AnalyzedItem: models.AnalyzedItem{Item: item(7), SequenceNumber: 7, IsHiringSignal: true}},
		{AnalyzedItem: models.AnalyzedItem{Item: item(3), SequenceNumber: 3, IsHiringSignal: true}},
		{AnalyzedItem: models.AnalyzedItem{Item: item(3), SequenceNumber: 3, IsHiringSignal: true}},
	}
	acc.Restore(persisted)

	leads := acc.Leads()
	require.Len(t, leads, 2)
	assert.Equal(t, 3, leads[0].SequenceNumber)
	assert.Equal(t, 7, leads[1].SequenceNumber)

	record, _ := acc.RecordAnalyzed(item(8), false, "")
	assert.Equal(t, 8, record.SequenceNumber)

	acc.Reset()
	assert.Empty(t, acc.Leads())
	record, _ = acc.RecordAnalyzed(item(8), false, "")
	assert.Equal(t, 1, record.SequenceNumber)
}
