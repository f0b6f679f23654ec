package models

import "time"

// Event is one DJ session owning its own request queue and policy settings.
type Event struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	Name      string     `gorm:"type:text;not null" json:"name"`
	DJID      *string    `gorm:"type:uuid;index" json:"dj_id,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	AllowDuplicates   bool `gorm:"not null;default:false" json:"allow_duplicates"`
	VotesEnabled      bool `gorm:"not null;default:true" json:"votes_enabled"`
	AutoAcceptEnabled bool `gorm:"not null;default:false" json:"auto_accept_enabled"`

	RateLimitMax           int `gorm:"not null;default:3" json:"rate_limit_max"`
	RateLimitWindowMinutes int `gorm:"not null;default:15" json:"rate_limit_window_minutes"`
}

func (Event) TableName() string {
	return "events"
}

// IsEnded reports whether the event has been terminated. Ended events are
// read-only for submission purposes.
func (e *Event) IsEnded() bool {
	return e.EndedAt != nil
}

// Window returns the rate-limit window as a duration.
func (e *Event) Window() time.Duration {
	return time.Duration(e.RateLimitWindowMinutes) * time.Minute
}

// EventStats aggregates request counts for one event.
type EventStats struct {
	TotalRequests int64 `json:"total_requests"`
	PendingCount  int64 `json:"pending_count"`
	AcceptedCount int64 `json:"accepted_count"`
	RejectedCount int64 `json:"rejected_count"`
	PlayedCount   int64 `json:"played_count"`
}

// TopTrack is one row of the per-event "most requested" ranking.
type TopTrack struct {
	TrackName    string `json:"track_name"`
	Artist       string `json:"artist"`
	RequestCount int64  `json:"request_count"`
}
