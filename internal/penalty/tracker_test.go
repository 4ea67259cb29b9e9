package penalty

import (
	"errors"
	"testing"
	"time"

	"github.com/schollaertel/clocksynk/internal/models"
)

var baseTime = time.Date(2025, 10, 4, 9, 30, 0, 0, time.UTC)

// TestAddInsertsAnchoredPenalty ensures a valid penalty lands in the
// collection with the full sentence length and the creation-time anchor.
func TestAddInsertsAnchoredPenalty(t *testing.T) {
	state := models.NewGameState(900, baseTime)

	next, err := Add(state, models.TeamHome, "7", 2, 0, baseTime)
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if len(next.Penalties) != 1 {
		t.Fatalf("expected 1 penalty, got %d", len(next.Penalties))
	}
	for _, p := range next.Penalties {
		if p.DurationSeconds != 120 {
			t.Fatalf("expected duration 120, got %d", p.DurationSeconds)
		}
		if !p.Anchor.Equal(baseTime) {
			t.Fatalf("expected anchor %v, got %v", baseTime, p.Anchor)
		}
		if p.ID == "" {
			t.Fatalf("penalty has empty ID")
		}
	}
	if len(state.Penalties) != 0 {
		t.Fatalf("Add mutated the input state")
	}
}

// TestAddGeneratesUniqueIDs ensures two penalties created at the same instant
// do not collide.
func TestAddGeneratesUniqueIDs(t *testing.T) {
	state := models.NewGameState(900, baseTime)
	state, err := Add(state, models.TeamHome, "7", 2, 0, baseTime)
	if err != nil {
		t.Fatalf("first Add returned error: %v", err)
	}
	state, err = Add(state, models.TeamAway, "12", 2, 0, baseTime)
	if err != nil {
		t.Fatalf("second Add returned error: %v", err)
	}
	if len(state.Penalties) != 2 {
		t.Fatalf("expected 2 penalties, got %d", len(state.Penalties))
	}
}

// TestAddRejectsInvalidInput covers the rejection cases: empty player number,
// four-character player number, zero total duration and an unknown team. All
// must raise ValidationError and leave state unchanged.
func TestAddRejectsInvalidInput(t *testing.T) {
	state := models.NewGameState(900, baseTime)

	cases := []struct {
		name    string
		team    models.Team
		player  string
		minutes int
		seconds int
	}{
		{"empty player number", models.TeamHome, "", 2, 0},
		{"player number too long", models.TeamHome, "ABCD", 2, 0},
		{"zero duration", models.TeamHome, "7", 0, 0},
		{"unknown team", models.Team("NEUTRAL"), "7", 2, 0},
		{"minutes out of range", models.TeamAway, "7", 100, 0},
		{"seconds out of range", models.TeamAway, "7", 2, 60},
	}
	for _, tc := range cases {
		next, err := Add(state, tc.team, tc.player, tc.minutes, tc.seconds, baseTime)
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if len(next.Penalties) != 0 {
			t.Fatalf("%s: rejected add mutated state", tc.name)
		}
	}
}

// TestAddCountsPlayerNumberInCharacters ensures the player number limit
// counts characters, not bytes, so a two-character accented entry is
// accepted.
func TestAddCountsPlayerNumberInCharacters(t *testing.T) {
	state := models.NewGameState(900, baseTime)

	next, err := Add(state, models.TeamHome, "ÖÖ", 2, 0, baseTime)
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if len(next.Penalties) != 1 {
		t.Fatalf("expected 1 penalty, got %d", len(next.Penalties))
	}

	if _, err := Add(state, models.TeamHome, "ÖÖÖÖ", 2, 0, baseTime); err == nil {
		t.Fatalf("expected four-character player number to be rejected")
	}
}

// TestDeriveRemainingFloorsAtZero ensures an expired penalty derives to zero,
// never negative.
func TestDeriveRemainingFloorsAtZero(t *testing.T) {
	p := models.Penalty{ID: "p1", Team: models.TeamHome, PlayerNumber: "7", DurationSeconds: 30, Anchor: baseTime}
	if got := DeriveRemaining(p, baseTime.Add(time.Minute)); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
	if got := DeriveRemaining(p, baseTime.Add(10*time.Second)); got != 20 {
		t.Fatalf("expected 20 remaining, got %d", got)
	}
}

// TestSweepExpiredScenario covers the spec scenario: a 2 minute penalty still
// stands at T+119s with one second remaining and is removed at T+121s.
func TestSweepExpiredScenario(t *testing.T) {
	state := models.NewGameState(900, baseTime)
	state, err := Add(state, models.TeamHome, "7", 2, 0, baseTime)
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	early, changed := SweepExpired(state, baseTime.Add(119*time.Second))
	if changed {
		t.Fatalf("sweep removed a penalty with time remaining")
	}
	for _, p := range early.Penalties {
		if got := DeriveRemaining(p, baseTime.Add(119*time.Second)); got != 1 {
			t.Fatalf("expected 1 second remaining at T+119s, got %d", got)
		}
	}

	late, changed := SweepExpired(state, baseTime.Add(121*time.Second))
	if !changed {
		t.Fatalf("sweep did not remove the expired penalty")
	}
	if len(late.Penalties) != 0 {
		t.Fatalf("expected empty penalty set, got %d entries", len(late.Penalties))
	}

	again, changed := SweepExpired(late, baseTime.Add(121*time.Second))
	if changed {
		t.Fatalf("second sweep was not a no-op")
	}
	if len(again.Penalties) != 0 {
		t.Fatalf("second sweep changed the penalty set")
	}
}

// TestSweepExpiredKeepsUnexpired ensures a sweep only removes the penalties
// whose derived remaining time reached zero.
func TestSweepExpiredKeepsUnexpired(t *testing.T) {
	state := models.NewGameState(900, baseTime)
	state, _ = Add(state, models.TeamHome, "7", 0, 30, baseTime)
	state, _ = Add(state, models.TeamAway, "23", 5, 0, baseTime)

	swept, changed := SweepExpired(state, baseTime.Add(time.Minute))
	if !changed {
		t.Fatalf("expected the 30 second penalty to be swept")
	}
	if len(swept.Penalties) != 1 {
		t.Fatalf("expected 1 surviving penalty, got %d", len(swept.Penalties))
	}
	for _, p := range swept.Penalties {
		if p.Team != models.TeamAway {
			t.Fatalf("wrong penalty survived: %+v", p)
		}
	}
}

// TestRemoveIdempotent ensures removing a present penalty deletes it and
// removing an absent one is a no-op.
func TestRemoveIdempotent(t *testing.T) {
	state := models.NewGameState(900, baseTime)
	state, _ = Add(state, models.TeamHome, "7", 2, 0, baseTime)

	var id string
	for pid := range state.Penalties {
		id = pid
	}

	removed := Remove(state, id)
	if len(removed.Penalties) != 0 {
		t.Fatalf("expected penalty removed")
	}

	again := Remove(removed, id)
	if len(again.Penalties) != 0 {
		t.Fatalf("second remove changed state")
	}
	if _, ok := state.Penalties[id]; !ok {
		t.Fatalf("Remove mutated the input state")
	}
}
