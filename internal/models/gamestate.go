package models

import (
	"time"
)

// Team identifies which side of the scoreboard a score or penalty belongs to.
type Team string

const (
	TeamHome Team = "HOME"
	TeamAway Team = "AWAY"
)

// Valid reports whether the team is one of the known sides.
func (t Team) Valid() bool {
	return t == TeamHome || t == TeamAway
}

// Penalty is a timed infraction counting down from its anchor. The remaining
// time is always derived from Anchor + DurationSeconds; it is never stored.
type Penalty struct {
	ID              string
	Team            Team
	PlayerNumber    string
	DurationSeconds int
	Anchor          time.Time
}

// GameState is the canonical record for a single game. ClockDurationSeconds
// holds the remaining time as of ClockAnchor while running, or the absolute
// remaining time while stopped. ClockAnchor is nil whenever the clock is
// stopped.
type GameState struct {
	HomeScore            int
	AwayScore            int
	Period               int
	ClockDurationSeconds int
	IsRunning            bool
	ClockAnchor          *time.Time
	Penalties            map[string]Penalty
	LastUpdated          time.Time
}

// NewGameState returns the default state for a freshly created game:
// scoreless, period 1, clock preset to clockSeconds and stopped.
func NewGameState(clockSeconds int, now time.Time) GameState {
	if clockSeconds < 0 {
		clockSeconds = 0
	}
	return GameState{
		HomeScore:            0,
		AwayScore:            0,
		Period:               1,
		ClockDurationSeconds: clockSeconds,
		IsRunning:            false,
		ClockAnchor:          nil,
		Penalties:            map[string]Penalty{},
		LastUpdated:          now,
	}
}

// Clone returns a deep copy. The penalties map and the anchor pointer are the
// only reference fields; both are copied so callers can treat states as
// immutable values.
func (s GameState) Clone() GameState {
	out := s
	if s.ClockAnchor != nil {
		anchor := *s.ClockAnchor
		out.ClockAnchor = &anchor
	}
	out.Penalties = make(map[string]Penalty, len(s.Penalties))
	for id, p := range s.Penalties {
		out.Penalties[id] = p
	}
	return out
}
