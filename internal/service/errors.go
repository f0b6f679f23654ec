package service

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrEventEnded      = errors.New("event has ended")
	ErrRequestNotFound = errors.New("request not found")
	ErrVotingDisabled  = errors.New("votes are disabled for this event")
	ErrInvalidVoteType = errors.New("invalid vote type")

	// ErrInvalidTransition reports a state transition that was silently
	// dropped: accepting a played request, voting on a pending one. The
	// caller sees it, the room never does.
	ErrInvalidTransition = errors.New("invalid state transition")

	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotEventOwner      = errors.New("event belongs to another dj")
)

// DuplicateLocation says where the already-submitted track currently sits.
type DuplicateLocation string

const (
	DuplicateLocationPending DuplicateLocation = "pending"
	DuplicateLocationQueue   DuplicateLocation = "queue"
)

// RateLimitedError is returned when a submitter exhausted their window.
type RateLimitedError struct {
	RetryAfterMinutes int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit reached, retry in %d minutes", e.RetryAfterMinutes)
}

// DuplicateError is returned when the track is already pending or queued.
type DuplicateError struct {
	Location DuplicateLocation
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("track already submitted (%s)", e.Location)
}
