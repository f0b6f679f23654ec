package analytics

import "time"

// Lifecycle events published for the downstream analytics consumer.

type RequestSubmittedEvent struct {
	RequestID string    `json:"request_id"`
	EventID   string    `json:"event_id"`
	TrackName string    `json:"track_name"`
	Artist    string    `json:"artist"`
	TrackURI  string    `json:"track_uri"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type RequestDecidedEvent struct {
	RequestID string    `json:"request_id"`
	EventID   string    `json:"event_id"`
	Status    string    `json:"status"` // accepted, rejected
	Position  int       `json:"position,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type RequestPlayedEvent struct {
	RequestID string    `json:"request_id"`
	EventID   string    `json:"event_id"`
	TrackName string    `json:"track_name"`
	Artist    string    `json:"artist"`
	PlayedAt  time.Time `json:"played_at"`
	Timestamp time.Time `json:"timestamp"`
}

// Topic names
const (
	TopicRequestSubmitted = "REQUEST_SUBMITTED"
	TopicRequestDecided   = "REQUEST_DECIDED"
	TopicRequestPlayed    = "REQUEST_PLAYED"
)
