package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/leadscout/hiring-feed-collector/internal/config"
	"github.com/leadscout/hiring-feed-collector/internal/export"
	"github.com/leadscout/hiring-feed-collector/internal/models"
	"github.com/leadscout/hiring-feed-collector/internal/session"
	"github.com/leadscout/hiring-feed-collector/internal/storage"
)

// MockSessions is a mock implementation of the Sessions interface
type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Start(ctx context.Context, opts session.StartOptions) error {
	args := m.Called(ctx, opts)
	return args.Error(0)
}

func (m *MockSessions) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSessions) Snapshot() session.Snapshot {
	args := m.Called()
	return args.Get(0).(session.Snapshot)
}

func (m *MockSessions) Leads() []models.Lead {
	args := m.Called()
	return args.Get(0).([]models.Lead)
}

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, sessions Sessions) (*Server, *storage.Repository) {
	t.Helper()
	repo := storage.NewRepository(storage.NewMemoryStorage(), "prompt", models.ProviderSelection{Kind: models.ProviderLocal})
	writer := export.NewWriter(export.DefaultNotes(), export.NewClientList(nil, nil))
	s := NewServer(config.ServerConfig{Port: 0}, sessions, repo, writer)
	s.now = func() time.Time { return fixedNow }
	return s, repo
}

func testLead(seq int, name, postedAt string) models.Lead {
	return models.Lead{
		AnalyzedItem: models.AnalyzedItem{
			Item: models.Item{
				DisplayName: name,
				PostURL:     "https://example.com/posts/" + name,
				PostedAt:    postedAt,
				BodyText:    "We are hiring",
			},
			IsHiringSignal: true,
			SequenceNumber: seq,
		},
		Enrichment: models.Enrichment{RoleTitle: "CTO", Organization: "Acme", PositionsMentioned: "Engineer"},
	}
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, new(MockSessions))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_Status(t *testing.T) {
	sessions := new(MockSessions)
	snap := session.Snapshot{QueueLength: 4, LeadCount: 2}
	snap.State = session.StateScanning
	sessions.On("Snapshot").Return(snap)
	s, _ := newTestServer(t, sessions)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got session.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, session.StateScanning, got.State)
	assert.Equal(t, 4, got.QueueLength)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_LeadsAppliesDateFilter(t *testing.T) {
	sessions := new(MockSessions)
	sessions.On("Leads").Return([]models.Lead{
		testLead(1, "recent", "2d"),
		testLead(2, "old", "3w"),
		testLead(3, "unknown", "sometime"),
	})
	s, repo := newTestServer(t, sessions)
	require.NoError(t, repo.SaveSettings(context.Background(), models.Settings{DateFilterDays: 7}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Leads []models.Lead `json:"leads"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "recent", body.Leads[0].DisplayName)
	assert.Equal(t, "unknown", body.Leads[1].DisplayName)
}

func TestServer_LeadsFallsBackToStore(t *testing.T) {
	sessions := new(MockSessions)
	sessions.On("Leads").Return([]models.Lead{})
	s, repo := newTestServer(t, sessions)
	require.NoError(t, repo.SaveLeads(context.Background(), []models.Lead{testLead(1, "stored", "1d")}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads", nil))

	assert.Contains(t, rec.Body.String(), "stored")
}

func TestServer_Export(t *testing.T) {
	sessions := new(MockSessions)
	sessions.On("Leads").Return([]models.Lead{testLead(1, "Jane Doe", "1d")})
	snap := session.Snapshot{AnalyzedCount: 4}
	snap.TotalAnalyzed = 12
	sessions.On("Snapshot").Return(snap)
	s, _ := newTestServer(t, sessions)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export.csv", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "hiring-leads-2024-06-15.csv")
	body := rec.Body.String()
	assert.Contains(t, body, "Jane Doe")
	assert.Contains(t, body, "1 leads from 12 analyzed posts")
}

func TestServer_ExportSummaryCoversStoredLeads(t *testing.T) {
	sessions := new(MockSessions)
	sessions.On("Leads").Return([]models.Lead{})
	sessions.On("Snapshot").Return(session.Snapshot{})
	s, repo := newTestServer(t, sessions)
	require.NoError(t, repo.SaveLeads(context.Background(), []models.Lead{
		testLead(1, "a", "1d"),
		testLead(2, "b", "1d"),
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export.csv", nil))

	assert.Contains(t, rec.Body.String(), "2 leads from 2 analyzed posts")
}

func TestServer_StartSession(t *testing.T) {
	sessions := new(MockSessions)
	sessions.On("Start", mock.Anything, session.StartOptions{Resume: true}).Return(nil)
	sessions.On("Snapshot").Return(session.Snapshot{})
	s, _ := newTestServer(t, sessions)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session/start?resume=true", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	sessions.AssertExpectations(t)
}

func TestServer_StartSessionRefused(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"already running", session.ErrAlreadyRunning, "already running"},
		{"config error", errors.New("missing API key"), "Cannot start session: missing API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := new(MockSessions)
			sessions.On("Start", mock.Anything, session.StartOptions{}).Return(tt.err)
			s, _ := newTestServer(t, sessions)

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session/start", nil))

			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestServer_StopSession(t *testing.T) {
	sessions := new(MockSessions)
	sessions.On("Stop").Return(session.ErrNotRunning).Once()
	sessions.On("Stop").Return(nil).Once()
	sessions.On("Snapshot").Return(session.Snapshot{})
	s, _ := newTestServer(t, sessions)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session/stop", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session/stop", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/stop", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Settings(t *testing.T) {
	s, repo := newTestServer(t, new(MockSessions))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))
	var got models.Settings
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, models.DefaultSettings(), got)

	body := `{"date_filter_days":3,"post_limit":100,"lead_limit":-5,"auto_refresh_enabled":true,"auto_refresh_posts":5}`
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	stored := repo.LoadSettings(context.Background())
	assert.Equal(t, 3, stored.DateFilterDays)
	assert.Equal(t, 100, stored.PostLimit)
	assert.Equal(t, 0, stored.LeadLimit)
	assert.Equal(t, models.MinAutoRefreshPosts, stored.AutoRefreshPosts)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
