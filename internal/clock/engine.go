package clock

import (
	"errors"
	"time"

	"github.com/schollaertel/clocksynk/internal/models"
)

// ErrClockExpired signals a start request while the derived remaining time is
// already zero. The state is unchanged.
var ErrClockExpired = errors.New("clock already at zero")

// DeriveRemaining computes the displayable remaining seconds of the main
// clock. While stopped it is ClockDurationSeconds unchanged; while running it
// is the anchored duration minus whole elapsed seconds, floored at zero.
//
// This is the only way "current" clock time may be read. The ticking
// appearance is entirely derived; nothing persists a per-second decrement, so
// any number of readers can compute it concurrently without drift.
func DeriveRemaining(state models.GameState, now time.Time) int {
	if !state.IsRunning || state.ClockAnchor == nil {
		return state.ClockDurationSeconds
	}
	elapsed := now.Sub(*state.ClockAnchor)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := state.ClockDurationSeconds - int(elapsed/time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Start anchors the clock at now and marks it running. Starting an expired
// clock is rejected with ErrClockExpired.
func Start(state models.GameState, now time.Time) (models.GameState, error) {
	remaining := DeriveRemaining(state, now)
	if remaining == 0 {
		return state, ErrClockExpired
	}
	next := state.Clone()
	next.ClockDurationSeconds = remaining
	next.IsRunning = true
	anchor := now
	next.ClockAnchor = &anchor
	return next, nil
}

// Pause folds the elapsed time into ClockDurationSeconds and clears the
// anchor. Pausing a stopped clock is a no-op transition.
func Pause(state models.GameState, now time.Time) models.GameState {
	next := state.Clone()
	next.ClockDurationSeconds = DeriveRemaining(state, now)
	next.IsRunning = false
	next.ClockAnchor = nil
	return next
}

// SetAbsolute stops the clock and sets it to the given minutes and seconds.
func SetAbsolute(state models.GameState, minutes, seconds int) (models.GameState, error) {
	if minutes < 0 || minutes > 99 {
		return state, models.NewValidationError("minutes", "must be between 0 and 99")
	}
	if seconds < 0 || seconds > 59 {
		return state, models.NewValidationError("seconds", "must be between 0 and 59")
	}
	next := state.Clone()
	next.ClockDurationSeconds = minutes*60 + seconds
	next.IsRunning = false
	next.ClockAnchor = nil
	return next, nil
}

// TickCheck is the idempotent maintenance step: a running clock whose derived
// remaining time has reached zero transitions to the paused-at-zero state.
// The returned bool reports whether a transition happened; repeated calls
// after the stop are no-ops.
func TickCheck(state models.GameState, now time.Time) (models.GameState, bool) {
	if !state.IsRunning {
		return state, false
	}
	if DeriveRemaining(state, now) > 0 {
		return state, false
	}
	next := state.Clone()
	next.ClockDurationSeconds = 0
	next.IsRunning = false
	next.ClockAnchor = nil
	return next, true
}
