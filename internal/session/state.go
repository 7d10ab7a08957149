package session

import (
	"time"

	"github.com/leadscout/hiring-feed-collector/internal/config"
	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// State is the controller's lifecycle state
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateRefreshing State = "refreshing"
	StateComplete   State = "complete"
)

// Timing holds every interval and attempt count used by the controller
type Timing struct {
	ScanInterval    time.Duration
	LimitInterval   time.Duration
	MetricsInterval time.Duration
	ProbeAttempts   int
	ProbeInterval   time.Duration
	FlushTimeout    time.Duration
}

// DefaultTiming returns the standard controller timing
func DefaultTiming() Timing {
	return Timing{
		ScanInterval:    5 * time.Second,
		LimitInterval:   time.Second,
		MetricsInterval: 500 * time.Millisecond,
		ProbeAttempts:   20,
		ProbeInterval:   1500 * time.Millisecond,
		FlushTimeout:    10 * time.Second,
	}
}

// TimingFromConfig builds Timing from pipeline configuration
func TimingFromConfig(cfg config.PipelineConfig) Timing {
	t := DefaultTiming()
	t.ScanInterval = cfg.ScanInterval
	t.LimitInterval = cfg.LimitInterval
	t.MetricsInterval = cfg.MetricsInterval
	t.ProbeAttempts = cfg.ProbeAttempts
	t.ProbeInterval = cfg.ProbeInterval
	return t
}

// SessionState is the mutable record of one streaming session. It is owned
// by the Controller and only changed under its lock.
type SessionState struct {
	ID        string          `json:"id"`
	State     State           `json:"state"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Settings  models.Settings `json:"settings"`
	Status    string          `json:"status"`

	TotalItemsSeen   int  `json:"total_items_seen"`
	TotalAnalyzed    int  `json:"total_analyzed"`
	RefreshCount     int  `json:"refresh_count"`
	PostLimitReached bool `json:"post_limit_reached"`
	LeadLimitReached bool `json:"lead_limit_reached"`
	AutoRefreshFired bool `json:"auto_refresh_fired"`
	FeedExhausted    bool `json:"feed_exhausted"`

	lastVisible int
}

// Snapshot is a read-only view of the controller for status reporting
type Snapshot struct {
	SessionState
	Running       bool `json:"running"`
	QueueLength   int  `json:"queue_length"`
	BatchWidth    int  `json:"batch_width"`
	AnalyzedCount int  `json:"analyzed_count"`
	LeadCount     int  `json:"lead_count"`
	FailedCount   int  `json:"failed_count"`
}
