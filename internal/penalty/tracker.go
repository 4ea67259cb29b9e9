package penalty

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/schollaertel/clocksynk/internal/models"
)

// DeriveRemaining computes the remaining seconds of a penalty from its anchor,
// floored at zero. Pure; the same derivation the main clock uses.
func DeriveRemaining(p models.Penalty, now time.Time) int {
	elapsed := now.Sub(p.Anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := p.DurationSeconds - int(elapsed/time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Add validates the input and inserts a new penalty anchored at now.
func Add(state models.GameState, team models.Team, playerNumber string, minutes, seconds int, now time.Time) (models.GameState, error) {
	if !team.Valid() {
		return state, models.NewValidationError("team", "must be HOME or AWAY")
	}
	if playerNumber == "" {
		return state, models.NewValidationError("player_number", "must not be empty")
	}
	if utf8.RuneCountInString(playerNumber) > 3 {
		return state, models.NewValidationError("player_number", "must be at most 3 characters")
	}
	if minutes < 0 || minutes > 99 {
		return state, models.NewValidationError("minutes", "must be between 0 and 99")
	}
	if seconds < 0 || seconds > 59 {
		return state, models.NewValidationError("seconds", "must be between 0 and 59")
	}
	duration := minutes*60 + seconds
	if duration <= 0 {
		return state, models.NewValidationError("duration", "must be greater than zero")
	}

	next := state.Clone()
	p := models.Penalty{
		ID:              newPenaltyID(now),
		Team:            team,
		PlayerNumber:    playerNumber,
		DurationSeconds: duration,
		Anchor:          now,
	}
	next.Penalties[p.ID] = p
	return next, nil
}

// Remove deletes the penalty if present. Absence is not an error; removing an
// already-removed penalty is a no-op.
func Remove(state models.GameState, penaltyID string) models.GameState {
	if _, ok := state.Penalties[penaltyID]; !ok {
		return state
	}
	next := state.Clone()
	delete(next.Penalties, penaltyID)
	return next
}

// SweepExpired removes every penalty whose derived remaining time is zero.
// The returned bool reports whether anything was removed; a second sweep at
// the same instant is a no-op.
func SweepExpired(state models.GameState, now time.Time) (models.GameState, bool) {
	var expired []string
	for id, p := range state.Penalties {
		if DeriveRemaining(p, now) == 0 {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return state, false
	}
	next := state.Clone()
	for _, id := range expired {
		delete(next.Penalties, id)
	}
	return next, true
}

// newPenaltyID generates a collision-resistant penalty ID. The millisecond
// prefix keeps IDs roughly sortable by creation time.
func newPenaltyID(now time.Time) string {
	return fmt.Sprintf("penalty_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
