package service

import "github.com/lucasmnrd/requestline/internal/models"

type SubmitInput struct {
	EventID   string
	Track     models.Track
	UserName  string
	ChannelID string
}

type SubmitOutput struct {
	RequestID string                 `json:"request_id"`
	Status    models.RequestStatus   `json:"status"`
	Position  *int                   `json:"position,omitempty"`
	RateLimit models.RateLimitStatus `json:"rate_limit_status"`
}

// SettingsPatch carries the toggles a DJ can flip live from the booth.
type SettingsPatch struct {
	VotesEnabled      *bool `json:"votes_enabled,omitempty"`
	AutoAcceptEnabled *bool `json:"auto_accept_enabled,omitempty"`
}

type queueUpdatedPayload struct {
	Queue []models.RequestWithVotes `json:"queue"`
}

type requestRefPayload struct {
	RequestID string `json:"request_id"`
}

type requestPositionPayload struct {
	RequestID string `json:"request_id"`
	Position  int    `json:"position"`
}
