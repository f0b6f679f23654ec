package models

import "time"

type VoteType string

const (
	VoteTypeUp   VoteType = "up"
	VoteTypeDown VoteType = "down"
)

func (t VoteType) Valid() bool {
	return t == VoteTypeUp || t == VoteTypeDown
}

// Vote records one voter's standing vote on a request. At most one row
// exists per (request, voter) pair; revoting flips or retracts in place.
type Vote struct {
	RequestID string    `gorm:"primaryKey;type:uuid" json:"request_id"`
	ChannelID string    `gorm:"primaryKey;type:text" json:"channel_id"`
	VoteType  VoteType  `gorm:"type:text;not null" json:"vote_type"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Vote) TableName() string {
	return "votes"
}

// VoteCounts is the aggregate returned after every vote mutation.
type VoteCounts struct {
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
}

func (c VoteCounts) Net() int64 {
	return c.Upvotes - c.Downvotes
}
