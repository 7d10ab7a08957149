package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

const day = 24 * time.Hour

var (
	isoDateRegex  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	slashDateRe   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)
	relativeRegex = regexp.MustCompile(`^(\d+)\s*([a-z]+)`)
)

var unitDurations = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": 7 * day, "wk": 7 * day, "week": 7 * day, "weeks": 7 * day,
	"mo": 30 * day, "mos": 30 * day, "month": 30 * day, "months": 30 * day,
	"y": 365 * day, "yr": 365 * day, "yrs": 365 * day, "year": 365 * day, "years": 365 * day,
}

// ParsePostedAt converts a feed timestamp such as "3h", "2 days ago",
// "yesterday" or "2026-01-27" to an absolute time relative to now.
func ParsePostedAt(text string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if i := strings.IndexAny(s, "•·"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return time.Time{}, false
	}

	switch s {
	case "now", "just now":
		return now, true
	case "yesterday":
		return now.Add(-day), true
	}

	if isoDateRegex.MatchString(s) {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, true
		}
	}

	// dd/mm/yyyy
	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		dd, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		yyyy, _ := strconv.Atoi(m[3])
		if mm >= 1 && mm <= 12 && dd >= 1 && dd <= 31 {
			return time.Date(yyyy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC), true
		}
		return time.Time{}, false
	}

	if m := relativeRegex.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		unit, ok := unitDurations[m[2]]
		if !ok {
			return time.Time{}, false
		}
		return now.Add(-time.Duration(n) * unit), true
	}

	return time.Time{}, false
}

// ByDate keeps leads posted within the last days days. Leads whose date
// cannot be parsed are kept. A non-positive days returns leads unchanged.
func ByDate(leads []models.Lead, days int, now time.Time) []models.Lead {
	if days <= 0 {
		return leads
	}

	cutoff := now.Add(-time.Duration(days) * day)
	kept := make([]models.Lead, 0, len(leads))
	for _, lead := range leads {
		postedAt, ok := ParsePostedAt(lead.PostedAt, now)
		if ok && postedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, lead)
	}
	return kept
}
