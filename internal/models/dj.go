package models

import "time"

// DJ is an account that can own events. Events without an owner stay
// publicly manageable for backward compatibility.
type DJ struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name         string    `gorm:"type:text;not null" json:"name"`
	Email        string    `gorm:"type:text;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"type:text;not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (DJ) TableName() string {
	return "djs"
}

// DJDashboard aggregates a DJ's activity across all of their events.
type DJDashboard struct {
	TotalEvents      int64   `json:"total_events"`
	TotalSongsPlayed int64   `json:"total_songs_played"`
	AcceptRate       float64 `json:"accept_rate"`
	// MostVotedPlayed ranks played tracks by net votes, then upvotes.
	MostVotedPlayed []RequestWithVotes `gorm:"-" json:"most_voted_played"`
}
