package store

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/schollaertel/clocksynk/internal/models"
)

// Record is the wire shape of a GameState. Field names match the persistence
// schema; timestamps travel as epoch milliseconds and penalties as structured
// entries, never a free-form string. Encode followed by Decode round-trips
// exactly.
type Record struct {
	ID          string          `json:"id"`
	HomeScore   int             `json:"home_score"`
	AwayScore   int             `json:"away_score"`
	Period      int             `json:"period"`
	ClockTime   int             `json:"clock_time"`
	IsRunning   bool            `json:"is_running"`
	ClockAnchor *int64          `json:"clock_anchor,omitempty"`
	Penalties   []PenaltyRecord `json:"penalties"`
	LastUpdated int64           `json:"last_updated"`
}

// PenaltyRecord is the wire shape of a single penalty.
type PenaltyRecord struct {
	ID              string `json:"id"`
	Team            string `json:"team"`
	PlayerNumber    string `json:"player_number"`
	DurationSeconds int    `json:"duration_seconds"`
	Anchor          int64  `json:"anchor"`
}

// EncodeRecord maps a GameState onto its wire shape. Penalties are sorted by
// ID so encodings are deterministic.
func EncodeRecord(gameID string, state models.GameState) Record {
	rec := Record{
		ID:          gameID,
		HomeScore:   state.HomeScore,
		AwayScore:   state.AwayScore,
		Period:      state.Period,
		ClockTime:   state.ClockDurationSeconds,
		IsRunning:   state.IsRunning,
		Penalties:   make([]PenaltyRecord, 0, len(state.Penalties)),
		LastUpdated: state.LastUpdated.UnixMilli(),
	}
	if state.ClockAnchor != nil {
		anchor := state.ClockAnchor.UnixMilli()
		rec.ClockAnchor = &anchor
	}
	for _, p := range state.Penalties {
		rec.Penalties = append(rec.Penalties, PenaltyRecord{
			ID:              p.ID,
			Team:            string(p.Team),
			PlayerNumber:    p.PlayerNumber,
			DurationSeconds: p.DurationSeconds,
			Anchor:          p.Anchor.UnixMilli(),
		})
	}
	sort.Slice(rec.Penalties, func(i, j int) bool {
		return rec.Penalties[i].ID < rec.Penalties[j].ID
	})
	return rec
}

// Decode validates the record and maps it back to a GameState. Malformed
// records are rejected rather than silently defaulted.
func (r Record) Decode() (models.GameState, error) {
	if r.HomeScore < 0 || r.AwayScore < 0 {
		return models.GameState{}, fmt.Errorf("record %s: negative score", r.ID)
	}
	if r.Period < 1 {
		return models.GameState{}, fmt.Errorf("record %s: period must be at least 1", r.ID)
	}
	if r.ClockTime < 0 {
		return models.GameState{}, fmt.Errorf("record %s: negative clock time", r.ID)
	}
	if r.IsRunning && r.ClockAnchor == nil {
		return models.GameState{}, fmt.Errorf("record %s: running clock without anchor", r.ID)
	}

	state := models.GameState{
		HomeScore:            r.HomeScore,
		AwayScore:            r.AwayScore,
		Period:               r.Period,
		ClockDurationSeconds: r.ClockTime,
		IsRunning:            r.IsRunning,
		Penalties:            make(map[string]models.Penalty, len(r.Penalties)),
		LastUpdated:          time.UnixMilli(r.LastUpdated).UTC(),
	}
	if r.ClockAnchor != nil {
		anchor := time.UnixMilli(*r.ClockAnchor).UTC()
		state.ClockAnchor = &anchor
	}
	for _, p := range r.Penalties {
		if p.ID == "" {
			return models.GameState{}, fmt.Errorf("record %s: penalty without id", r.ID)
		}
		team := models.Team(p.Team)
		if !team.Valid() {
			return models.GameState{}, fmt.Errorf("record %s: penalty %s has unknown team %q", r.ID, p.ID, p.Team)
		}
		if p.PlayerNumber == "" || utf8.RuneCountInString(p.PlayerNumber) > 3 {
			return models.GameState{}, fmt.Errorf("record %s: penalty %s has invalid player number %q", r.ID, p.ID, p.PlayerNumber)
		}
		if p.DurationSeconds <= 0 {
			return models.GameState{}, fmt.Errorf("record %s: penalty %s has non-positive duration", r.ID, p.ID)
		}
		state.Penalties[p.ID] = models.Penalty{
			ID:              p.ID,
			Team:            team,
			PlayerNumber:    p.PlayerNumber,
			DurationSeconds: p.DurationSeconds,
			Anchor:          time.UnixMilli(p.Anchor).UTC(),
		}
	}
	return state, nil
}
