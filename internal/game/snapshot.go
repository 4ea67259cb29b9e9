package game

import (
	"sort"
	"time"

	"github.com/schollaertel/clocksynk/internal/clock"
	"github.com/schollaertel/clocksynk/internal/models"
	"github.com/schollaertel/clocksynk/internal/penalty"
)

// Snapshot is a display view of the session: everything a scoreboard needs to
// render, with all remaining times already derived for the instant it was
// taken. Snapshots are plain values; mutating one has no effect on the
// session.
type Snapshot struct {
	GameID       string            `json:"game_id"`
	Phase        Phase             `json:"phase"`
	Role         Role              `json:"role"`
	HomeScore    int               `json:"home_score"`
	AwayScore    int               `json:"away_score"`
	Period       int               `json:"period"`
	ClockSeconds int               `json:"clock_seconds"`
	IsRunning    bool              `json:"is_running"`
	Penalties    []PenaltySnapshot `json:"penalties"`
	Stale        bool              `json:"stale"`
	AsOf         time.Time         `json:"as_of"`
}

// PenaltySnapshot is a display view of one penalty countdown.
type PenaltySnapshot struct {
	ID               string      `json:"id"`
	Team             models.Team `json:"team"`
	PlayerNumber     string      `json:"player_number"`
	RemainingSeconds int         `json:"remaining_seconds"`
}

// Snapshot derives the current display view. Expired-but-unswept penalties
// show zero here; persistence of their removal stays with the scorekeeper's
// maintenance cadence.
func (c *Controller) Snapshot() Snapshot {
	now := c.clock.Now()

	c.mu.Lock()
	state := c.state.Clone()
	snap := Snapshot{
		GameID: c.cfg.GameID,
		Phase:  c.phase,
		Role:   c.cfg.Role,
		Stale:  c.stale,
	}
	c.mu.Unlock()

	snap.HomeScore = state.HomeScore
	snap.AwayScore = state.AwayScore
	snap.Period = state.Period
	snap.ClockSeconds = clock.DeriveRemaining(state, now)
	snap.IsRunning = state.IsRunning && snap.ClockSeconds > 0
	snap.AsOf = now

	snap.Penalties = make([]PenaltySnapshot, 0, len(state.Penalties))
	for _, p := range state.Penalties {
		snap.Penalties = append(snap.Penalties, PenaltySnapshot{
			ID:               p.ID,
			Team:             p.Team,
			PlayerNumber:     p.PlayerNumber,
			RemainingSeconds: penalty.DeriveRemaining(p, now),
		})
	}
	// Oldest penalty first; the millisecond ID prefix makes this creation
	// order.
	sort.Slice(snap.Penalties, func(i, j int) bool {
		return snap.Penalties[i].ID < snap.Penalties[j].ID
	})
	return snap
}
