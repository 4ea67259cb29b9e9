package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/schollaertel/clocksynk/internal/models"
)

var baseTime = time.Date(2025, 10, 4, 9, 30, 0, 0, time.UTC)

// TestRecordRoundTripEmptyPenalties ensures a default state survives the full
// encode, JSON, decode cycle field for field.
func TestRecordRoundTripEmptyPenalties(t *testing.T) {
	state := models.NewGameState(900, baseTime)
	assertRoundTrip(t, "game-1", state)
}

// TestRecordRoundTripPopulated ensures a running clock with penalties
// round-trips exactly, anchors included.
func TestRecordRoundTripPopulated(t *testing.T) {
	anchor := baseTime.Add(30 * time.Second)
	state := models.GameState{
		HomeScore:            3,
		AwayScore:            2,
		Period:               2,
		ClockDurationSeconds: 412,
		IsRunning:            true,
		ClockAnchor:          &anchor,
		Penalties: map[string]models.Penalty{
			"penalty_1": {ID: "penalty_1", Team: models.TeamHome, PlayerNumber: "7", DurationSeconds: 120, Anchor: baseTime},
			"penalty_2": {ID: "penalty_2", Team: models.TeamAway, PlayerNumber: "23", DurationSeconds: 300, Anchor: baseTime.Add(time.Minute)},
		},
		LastUpdated: baseTime.Add(45 * time.Second),
	}
	assertRoundTrip(t, "game-2", state)
}

func assertRoundTrip(t *testing.T, gameID string, state models.GameState) {
	t.Helper()

	data, err := json.Marshal(EncodeRecord(gameID, state))
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	got, err := rec.Decode()
	if err != nil {
		t.Fatalf("decode record: %v", err)
	}

	if got.HomeScore != state.HomeScore || got.AwayScore != state.AwayScore {
		t.Fatalf("score mismatch: got %d-%d, want %d-%d", got.HomeScore, got.AwayScore, state.HomeScore, state.AwayScore)
	}
	if got.Period != state.Period {
		t.Fatalf("period mismatch: got %d, want %d", got.Period, state.Period)
	}
	if got.ClockDurationSeconds != state.ClockDurationSeconds {
		t.Fatalf("clock mismatch: got %d, want %d", got.ClockDurationSeconds, state.ClockDurationSeconds)
	}
	if got.IsRunning != state.IsRunning {
		t.Fatalf("is_running mismatch")
	}
	if (got.ClockAnchor == nil) != (state.ClockAnchor == nil) {
		t.Fatalf("anchor presence mismatch")
	}
	if got.ClockAnchor != nil && !got.ClockAnchor.Equal(*state.ClockAnchor) {
		t.Fatalf("anchor mismatch: got %v, want %v", got.ClockAnchor, state.ClockAnchor)
	}
	if !got.LastUpdated.Equal(state.LastUpdated) {
		t.Fatalf("last_updated mismatch: got %v, want %v", got.LastUpdated, state.LastUpdated)
	}
	if len(got.Penalties) != len(state.Penalties) {
		t.Fatalf("penalty count mismatch: got %d, want %d", len(got.Penalties), len(state.Penalties))
	}
	for id, want := range state.Penalties {
		p, ok := got.Penalties[id]
		if !ok {
			t.Fatalf("penalty %s missing after round trip", id)
		}
		if p.Team != want.Team || p.PlayerNumber != want.PlayerNumber || p.DurationSeconds != want.DurationSeconds {
			t.Fatalf("penalty %s mismatch: got %+v, want %+v", id, p, want)
		}
		if !p.Anchor.Equal(want.Anchor) {
			t.Fatalf("penalty %s anchor mismatch: got %v, want %v", id, p.Anchor, want.Anchor)
		}
	}
}

// TestDecodeRejectsMalformedRecords ensures the store boundary rejects
// records that violate the schema instead of defaulting them.
func TestDecodeRejectsMalformedRecords(t *testing.T) {
	anchor := baseTime.UnixMilli()
	valid := Record{
		ID:          "game-1",
		Period:      1,
		ClockTime:   900,
		Penalties:   []PenaltyRecord{},
		LastUpdated: baseTime.UnixMilli(),
	}

	cases := []struct {
		name   string
		mutate func(*Record)
	}{
		{"negative score", func(r *Record) { r.HomeScore = -1 }},
		{"zero period", func(r *Record) { r.Period = 0 }},
		{"negative clock", func(r *Record) { r.ClockTime = -5 }},
		{"running without anchor", func(r *Record) { r.IsRunning = true; r.ClockAnchor = nil }},
		{"penalty without id", func(r *Record) {
			r.Penalties = []PenaltyRecord{{Team: "HOME", PlayerNumber: "7", DurationSeconds: 60, Anchor: anchor}}
		}},
		{"penalty unknown team", func(r *Record) {
			r.Penalties = []PenaltyRecord{{ID: "p1", Team: "NEUTRAL", PlayerNumber: "7", DurationSeconds: 60, Anchor: anchor}}
		}},
		{"penalty zero duration", func(r *Record) {
			r.Penalties = []PenaltyRecord{{ID: "p1", Team: "HOME", PlayerNumber: "7", DurationSeconds: 0, Anchor: anchor}}
		}},
		{"penalty player number too long", func(r *Record) {
			r.Penalties = []PenaltyRecord{{ID: "p1", Team: "HOME", PlayerNumber: "1234", DurationSeconds: 60, Anchor: anchor}}
		}},
	}
	for _, tc := range cases {
		rec := valid
		tc.mutate(&rec)
		if _, err := rec.Decode(); err == nil {
			t.Fatalf("%s: expected decode error", tc.name)
		}
	}

	if _, err := valid.Decode(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
}

// TestDecodeCountsPlayerNumberInCharacters ensures the player number limit
// counts characters, not bytes: a three-character accented number passes and
// a four-character one does not.
func TestDecodeCountsPlayerNumberInCharacters(t *testing.T) {
	rec := Record{
		ID:        "game-1",
		Period:    1,
		ClockTime: 900,
		Penalties: []PenaltyRecord{
			{ID: "p1", Team: "HOME", PlayerNumber: "ÖÖÖ", DurationSeconds: 60, Anchor: baseTime.UnixMilli()},
		},
		LastUpdated: baseTime.UnixMilli(),
	}
	if _, err := rec.Decode(); err != nil {
		t.Fatalf("three-character player number rejected: %v", err)
	}

	rec.Penalties[0].PlayerNumber = "ÖÖÖÖ"
	if _, err := rec.Decode(); err == nil {
		t.Fatalf("expected four-character player number to be rejected")
	}
}
