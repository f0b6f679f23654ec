package models

import "time"

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
	RequestStatusPlayed   RequestStatus = "played"
)

// Track describes a song as supplied by the external catalog provider.
// All fields are opaque to the engine.
type Track struct {
	Name       string `gorm:"column:track_name;type:text;not null" json:"name"`
	Artist     string `gorm:"type:text" json:"artist"`
	Album      string `gorm:"type:text" json:"album"`
	ImageURL   string `gorm:"type:text" json:"image_url"`
	URI        string `gorm:"type:text;index" json:"uri"`
	DurationMS int    `json:"duration_ms"`
	PreviewURL string `gorm:"type:text" json:"preview_url,omitempty"`
}

// Request is a single attendee submission and its lifecycle status.
// Requests are never deleted; history is retained for statistics.
type Request struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	EventID string `gorm:"type:uuid;not null;index" json:"event_id"`

	Track Track `gorm:"embedded" json:"track"`

	UserName  string `gorm:"type:text;not null" json:"user_name"`
	ChannelID string `gorm:"type:text;not null" json:"channel_id"`

	Status RequestStatus `gorm:"type:text;not null;index" json:"status"`

	// QueuePosition is set iff Status is accepted. Positions are unique
	// among accepted requests of the same event; gaps are allowed.
	QueuePosition *int       `json:"queue_position,omitempty"`
	PlayedAt      *time.Time `json:"played_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Request) TableName() string {
	return "requests"
}

func (r *Request) IsPending() bool {
	return r.Status == RequestStatusPending
}

func (r *Request) IsAccepted() bool {
	return r.Status == RequestStatusAccepted
}

// RequestWithVotes is the queue read model: a request joined with its
// current vote aggregates.
type RequestWithVotes struct {
	Request
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
	NetVotes  int64 `json:"net_votes"`
}
