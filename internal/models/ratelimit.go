package models

import "time"

// RateLimitCounter is a fixed-window submission counter keyed by the
// submitter's transport channel identity. The key is global across events:
// reconnecting resets a submitter's limiter identity. That is inherited
// behavior, kept on purpose.
type RateLimitCounter struct {
	ChannelID    string    `gorm:"primaryKey;type:text" json:"channel_id"`
	RequestCount int       `gorm:"not null;default:0" json:"request_count"`
	ResetAt      time.Time `gorm:"not null;index" json:"reset_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RateLimitCounter) TableName() string {
	return "rate_limits"
}

// RateLimitStatus is what the limiter reports back to the submitter.
type RateLimitStatus struct {
	Allowed           bool `json:"allowed"`
	Count             int  `json:"count"`
	Max               int  `json:"max"`
	Remaining         int  `json:"remaining"`
	RetryAfterMinutes int  `json:"retry_after_minutes,omitempty"`
}
