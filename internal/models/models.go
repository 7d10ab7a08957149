package models

import (
	"time"
	"unicode/utf8"
)

// Item represents one scraped feed entry as produced by the page driver
type Item struct {
	DisplayName      string `json:"display_name"`
	Headline         string `json:"headline,omitempty"`
	BodyText         string `json:"body_text,omitempty"`
	ProfileURL       string `json:"profile_url,omitempty"`
	PostURL          string `json:"post_url,omitempty"`
	PostedAt         string `json:"posted_at,omitempty"`
	ConnectionDegree string `json:"connection_degree,omitempty"`
}

// identityBodyPrefix is the number of body characters used by the fallback identity
const identityBodyPrefix = 50

// Identity returns the dedup key for the item: the post URL, else the profile
// URL, else the display name followed by the first 50 characters of the body.
func (i Item) Identity() string {
	if i.PostURL != "" {
		return i.PostURL
	}
	if i.ProfileURL != "" {
		return i.ProfileURL
	}
	return i.DisplayName + truncateRunes(i.BodyText, identityBodyPrefix)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// AnalyzedItem is an Item after classification
type AnalyzedItem struct {
	Item           `json:",inline"`
	IsHiringSignal bool      `json:"is_hiring_signal"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
	SequenceNumber int       `json:"sequence_number"`
	FailureReason  string    `json:"failure_reason,omitempty"`
}

// Enrichment holds the fields extracted from a hiring post
type Enrichment struct {
	RoleTitle          string `json:"role_title"`
	Organization       string `json:"organization"`
	PositionsMentioned string `json:"positions_mentioned"`
}

// Lead is an AnalyzedItem classified as a hiring signal, plus enrichment.
// SequenceNumber is shared with the AnalyzedItem it was promoted from.
type Lead struct {
	AnalyzedItem `json:",inline"`
	Enrichment   `json:",inline"`
}

// Settings holds the user-editable filter settings persisted in storage
type Settings struct {
	DateFilterDays     int  `json:"date_filter_days" yaml:"date_filter_days"`
	PostLimit          int  `json:"post_limit" yaml:"post_limit"`
	LeadLimit          int  `json:"lead_limit" yaml:"lead_limit"`
	AutoRefreshEnabled bool `json:"auto_refresh_enabled" yaml:"auto_refresh_enabled"`
	AutoRefreshPosts   int  `json:"auto_refresh_posts" yaml:"auto_refresh_posts"`
}

const (
	DefaultAutoRefreshPosts = 15
	MinAutoRefreshPosts     = 10
	MaxAutoRefreshPosts     = 200
)

// DefaultSettings returns the settings used when nothing has been stored
func DefaultSettings() Settings {
	return Settings{
		AutoRefreshEnabled: true,
		AutoRefreshPosts:   DefaultAutoRefreshPosts,
	}
}

// Normalize clamps out-of-range values to their documented bounds
func (s Settings) Normalize() Settings {
	if s.AutoRefreshPosts == 0 {
		s.AutoRefreshPosts = DefaultAutoRefreshPosts
	}
	s.AutoRefreshPosts = min(max(s.AutoRefreshPosts, MinAutoRefreshPosts), MaxAutoRefreshPosts)
	s.PostLimit = max(s.PostLimit, 0)
	s.LeadLimit = max(s.LeadLimit, 0)
	s.DateFilterDays = max(s.DateFilterDays, 0)
	return s
}

// ProviderKind selects the LLM backend
type ProviderKind string

const (
	ProviderLocal ProviderKind = "local"
	ProviderCloud ProviderKind = "cloud"
)

// ProviderSelection is the stored provider preference and its credentials
type ProviderSelection struct {
	Kind   ProviderKind `json:"kind" yaml:"kind"`
	Model  string       `json:"model,omitempty" yaml:"model"`
	APIKey string       `json:"api_key,omitempty" yaml:"api_key"`
}
