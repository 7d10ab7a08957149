package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/hiring-feed-collector/internal/config"
	"github.com/leadscout/hiring-feed-collector/internal/export"
	"github.com/leadscout/hiring-feed-collector/internal/filter"
	"github.com/leadscout/hiring-feed-collector/internal/models"
	"github.com/leadscout/hiring-feed-collector/internal/session"
)

// Sessions controls the collection session
type Sessions interface {
	Start(ctx context.Context, opts session.StartOptions) error
	Stop() error
	Snapshot() session.Snapshot
	Leads() []models.Lead
}

// SettingsStore reads and writes durable settings and leads
type SettingsStore interface {
	LoadSettings(ctx context.Context) models.Settings
	SaveSettings(ctx context.Context, settings models.Settings) error
	LoadLeads(ctx context.Context) []models.Lead
}

// Exporter renders leads as a spreadsheet file
type Exporter interface {
	WriteCSV(w io.Writer, leads []models.Lead, summary export.Summary) error
}

// Server handles HTTP requests
type Server struct {
	config   config.ServerConfig
	sessions Sessions
	store    SettingsStore
	exporter Exporter
	server   *http.Server
	now      func() time.Time
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, sessions Sessions, store SettingsStore, exporter Exporter) *Server {
	s := &Server{
		config:   cfg,
		sessions: sessions,
		store:    store,
		exporter: exporter,
		now:      time.Now,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/leads", s.handleLeads)
	mux.HandleFunc("/export.csv", s.handleExport)
	mux.HandleFunc("/session/start", s.handleStart)
	mux.HandleFunc("/session/stop", s.handleStop)
	mux.HandleFunc("/settings", s.handleSettings)
	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns the session snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

// handleLeads returns the leads, date-filtered by the stored settings
func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	leads := s.currentLeads(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leads": leads,
		"count": len(leads),
	})
}

// handleExport streams the leads as a CSV attachment
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	leads := s.currentLeads(r.Context())
	// Stored leads from an earlier run may outnumber this session's analyses
	summary := export.Summary{AnalyzedCount: max(s.sessions.Snapshot().TotalAnalyzed, len(leads))}

	filename := fmt.Sprintf("hiring-leads-%s.csv", s.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := s.exporter.WriteCSV(w, leads, summary); err != nil {
		zap.L().Error("server: export failed", zap.Error(err))
	}
}

// handleStart starts a session; ?resume=true keeps stored leads
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opts := session.StartOptions{Resume: r.URL.Query().Get("resume") == "true"}
	if err := s.sessions.Start(r.Context(), opts); err != nil {
		http.Error(w, startErrorText(err), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusAccepted, s.sessions.Snapshot())
}

// handleStop stops the running session
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.sessions.Stop(); err != nil {
		http.Error(w, "No session is running", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

// handleSettings reads or replaces the filter settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.LoadSettings(r.Context()))
	case http.MethodPut:
		var settings models.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, fmt.Sprintf("Invalid settings: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.store.SaveSettings(r.Context(), settings); err != nil {
			http.Error(w, fmt.Sprintf("Failed to save settings: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, settings.Normalize())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// currentLeads prefers the live session's leads and falls back to stored ones
func (s *Server) currentLeads(ctx context.Context) []models.Lead {
	leads := s.sessions.Leads()
	if len(leads) == 0 {
		leads = s.store.LoadLeads(ctx)
	}
	settings := s.store.LoadSettings(ctx)
	return filter.ByDate(leads, settings.DateFilterDays, s.now())
}

func startErrorText(err error) string {
	if errors.Is(err, session.ErrAlreadyRunning) {
		return "A session is already running"
	}
	return fmt.Sprintf("Cannot start session: %v", err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
