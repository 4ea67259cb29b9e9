package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/schollaertel/clocksynk/internal/clock"
	"github.com/schollaertel/clocksynk/internal/models"
	"github.com/schollaertel/clocksynk/internal/penalty"
	"github.com/schollaertel/clocksynk/internal/store"
)

// Role decides whether a session may mutate game state. It is fixed at
// construction and never part of synchronized state.
type Role string

const (
	RoleScorekeeper Role = "scorekeeper"
	RoleSpectator   Role = "spectator"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleScorekeeper || r == RoleSpectator
}

// Phase is the sync lifecycle of a session.
type Phase string

const (
	PhaseUninitialized Phase = "UNINITIALIZED"
	PhaseLoading       Phase = "LOADING"
	PhaseSynced        Phase = "SYNCED"
	PhaseError         Phase = "ERROR"
)

// ErrReadOnly signals a mutation attempted by a spectator session.
var ErrReadOnly = errors.New("session is read-only")

// ErrSessionClosed signals an operation on a torn-down session.
var ErrSessionClosed = errors.New("session is closed")

// Config holds per-session settings.
type Config struct {
	GameID              string
	Role                Role
	DefaultClockSeconds int
	MaintenanceInterval time.Duration
	PullInterval        time.Duration
	CallTimeout         time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultClockSeconds <= 0 {
		c.DefaultClockSeconds = 900
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = time.Second
	}
	if c.PullInterval <= 0 {
		c.PullInterval = 2 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 3 * time.Second
	}
	if c.Role == "" {
		c.Role = RoleSpectator
	}
	return c
}

// Controller owns the current GameState for one game session and drives the
// two sync cadences: a 1s maintenance tick (auto-stop, penalty sweep, display
// refresh) and the remote pull/subscription path. All clock math goes through
// the pure engine functions; the controller itself only persists explicit
// transitions, never a per-second decrement.
type Controller struct {
	cfg    Config
	store  store.GameStateStore
	clock  clock.TimeSource
	onSnap func(Snapshot)

	mu      sync.Mutex
	state   models.GameState
	phase   Phase
	stale   bool
	closed  bool
	started bool

	sub      store.Subscription
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a session controller. onSnapshot is invoked after every display
// refresh or state change; pass nil when no listener is needed.
func New(st store.GameStateStore, ts clock.TimeSource, cfg Config, onSnapshot func(Snapshot)) *Controller {
	cfg = cfg.withDefaults()
	// The placeholder state carries a zero LastUpdated so that any remote
	// record adopted later wins, even after a degraded load.
	initial := models.NewGameState(cfg.DefaultClockSeconds, ts.Now())
	initial.LastUpdated = time.Time{}
	return &Controller{
		cfg:    cfg,
		store:  st,
		clock:  ts,
		onSnap: onSnapshot,
		state:  initial,
		phase:  PhaseUninitialized,
		done:   make(chan struct{}),
	}
}

// Role returns the fixed session role.
func (c *Controller) Role() Role {
	return c.cfg.Role
}

// Start loads the record (creating it when absent), subscribes to remote
// changes and launches the recurring cadences. Store failure degrades to
// local-only default state rather than failing the session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("session already started")
	}
	c.started = true
	c.mu.Unlock()

	c.load(ctx)

	sub, err := c.store.Subscribe(ctx, c.cfg.GameID, c.adoptRemote)
	switch {
	case err == nil:
		c.sub = sub
	case errors.Is(err, store.ErrNoSubscribe):
		log.Debug().Str("game_id", c.cfg.GameID).Msg("store has no change feed; relying on pull cadence")
	default:
		log.Warn().Err(err).Str("game_id", c.cfg.GameID).Msg("subscribe failed; relying on pull cadence")
	}

	c.wg.Add(1)
	go c.maintenanceLoop()
	if c.cfg.Role == RoleSpectator {
		c.wg.Add(1)
		go c.pullLoop()
	}

	c.emit()
	return nil
}

// Stop tears the session down: cadences are cancelled, the subscription is
// dropped, and any store call still in flight may complete but can no longer
// mutate session state.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		if c.sub != nil {
			c.sub.Cancel()
		}
		c.wg.Wait()
		log.Info().Str("game_id", c.cfg.GameID).Str("role", string(c.cfg.Role)).Msg("session stopped")
	})
}

// load pulls the authoritative record or creates the default one. On failure
// the session keeps its local default as a degraded fallback.
func (c *Controller) load(ctx context.Context) {
	c.setPhase(PhaseLoading)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	state, err := c.store.Get(callCtx, c.cfg.GameID)
	if errors.Is(err, store.ErrNotFound) {
		initial := models.NewGameState(c.cfg.DefaultClockSeconds, c.clock.Now())
		state, err = c.store.Create(callCtx, c.cfg.GameID, initial)
	}
	if err != nil {
		log.Error().Err(err).Str("game_id", c.cfg.GameID).Msg("failed to load game state; continuing with local default")
		c.mu.Lock()
		c.phase = PhaseError
		c.stale = true
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if !c.closed {
		c.state = state.Clone()
		c.phase = PhaseSynced
		c.stale = false
	}
	c.mu.Unlock()
	log.Info().Str("game_id", c.cfg.GameID).Str("role", string(c.cfg.Role)).Msg("game state loaded")
}

func (c *Controller) maintenanceLoop() {
	defer c.wg.Done()
	ticker := c.clock.NewTicker(c.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
			c.maintenanceTick()
		}
	}
}

func (c *Controller) pullLoop() {
	defer c.wg.Done()
	ticker := c.clock.NewTicker(c.cfg.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
			c.pullTick()
		}
	}
}

// maintenanceTick refreshes the display and, in the scorekeeper role, applies
// the auto-stop and penalty-sweep transitions, pushing only when one of them
// actually changed state. The tick itself never persists a decrement; the
// anchor derivation makes every read idempotent no matter how many sessions
// tick concurrently.
func (c *Controller) maintenanceTick() {
	now := c.clock.Now()

	var pushState *models.GameState
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cfg.Role == RoleScorekeeper {
		next, clockStopped := clock.TickCheck(c.state, now)
		next, swept := penalty.SweepExpired(next, now)
		if clockStopped || swept {
			next.LastUpdated = now
			c.state = next
			cp := next.Clone()
			pushState = &cp
		}
	}
	c.mu.Unlock()

	if pushState != nil {
		if err := c.push(*pushState); err != nil {
			// Fire-and-forget: the transition is kept locally and will be
			// retried by the next mutation or maintenance push.
			log.Warn().Err(err).Str("game_id", c.cfg.GameID).Msg("maintenance push failed")
		}
	}
	c.emit()
}

// pullTick re-fetches remote state and adopts it when newer.
func (c *Controller) pullTick() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()

	state, err := c.store.Get(ctx, c.cfg.GameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		c.markStale(err, "pull failed")
		return
	}
	c.markSynced()
	c.adoptRemote(state)
}

// adoptRemote applies an incoming snapshot under last-write-wins: only a
// record with a strictly newer LastUpdated replaces the local one, wholesale.
func (c *Controller) adoptRemote(incoming models.GameState) {
	c.mu.Lock()
	if c.closed || !incoming.LastUpdated.After(c.state.LastUpdated) {
		c.mu.Unlock()
		return
	}
	c.state = incoming.Clone()
	c.mu.Unlock()
	c.emit()
}

// mutate runs a pure state transform in the scorekeeper role, keeps the
// result locally and pushes it. A push failure is recoverable: the local
// change is kept and the error reported to the acting caller only.
func (c *Controller) mutate(op func(models.GameState, time.Time) (models.GameState, error)) error {
	if c.cfg.Role != RoleScorekeeper {
		return ErrReadOnly
	}
	now := c.clock.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	next, err := op(c.state, now)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	next.LastUpdated = now
	c.state = next
	pushCopy := next.Clone()
	c.mu.Unlock()

	c.emit()
	return c.push(pushCopy)
}

// push writes the record and adopts whatever the store reports as
// authoritative (a concurrent newer write wins).
func (c *Controller) push(state models.GameState) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()

	authoritative, err := c.store.Update(ctx, c.cfg.GameID, state)
	if err != nil {
		c.markStale(err, "push failed; keeping local state")
		if !errors.Is(err, store.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return fmt.Errorf("push game %s: %w", c.cfg.GameID, err)
	}
	c.markSynced()
	c.adoptRemote(authoritative)
	return nil
}

func (c *Controller) markStale(err error, msg string) {
	c.mu.Lock()
	c.stale = true
	c.phase = PhaseError
	c.mu.Unlock()
	log.Warn().Err(err).Str("game_id", c.cfg.GameID).Msg(msg)
}

func (c *Controller) markSynced() {
	c.mu.Lock()
	c.stale = false
	c.phase = PhaseSynced
	c.mu.Unlock()
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Controller) emit() {
	if c.onSnap != nil {
		c.onSnap(c.Snapshot())
	}
}

// AdjustScore changes a team's score by delta. The result may not go below
// zero.
func (c *Controller) AdjustScore(team models.Team, delta int) error {
	return c.mutate(func(s models.GameState, now time.Time) (models.GameState, error) {
		if !team.Valid() {
			return s, models.NewValidationError("team", "must be HOME or AWAY")
		}
		next := s.Clone()
		switch team {
		case models.TeamHome:
			next.HomeScore += delta
			if next.HomeScore < 0 {
				return s, models.NewValidationError("score", "must not go below zero")
			}
		case models.TeamAway:
			next.AwayScore += delta
			if next.AwayScore < 0 {
				return s, models.NewValidationError("score", "must not go below zero")
			}
		}
		return next, nil
	})
}

// AdjustPeriod changes the period by delta. The result may not go below 1.
func (c *Controller) AdjustPeriod(delta int) error {
	return c.mutate(func(s models.GameState, now time.Time) (models.GameState, error) {
		next := s.Clone()
		next.Period += delta
		if next.Period < 1 {
			return s, models.NewValidationError("period", "must be at least 1")
		}
		return next, nil
	})
}

// StartClock starts the main clock.
func (c *Controller) StartClock() error {
	return c.mutate(func(s models.GameState, now time.Time) (models.GameState, error) {
		return clock.Start(s, now)
	})
}

// PauseClock pauses the main clock.
func (c *Controller) PauseClock() error {
	return c.mutate(func(s models.GameState, now time.Time) (models.GameState, error) {
		return clock.Pause(s, now), nil
	})
}

// SetClock stops the clock and sets it to minutes:seconds.
func (c *Controller) SetClock(minutes, seconds int) error {
	return c.mutate(func(s models.GameState, now time.Time) (models.GameState, error) {
		return clock.SetAbsolute(s, minutes, seconds)
	})
}

// ResetGame reinitializes the record in place: scoreless, period 1, default
// clock, stopped, penalties cleared. The record is never deleted.
func (c *Controller) ResetGame() error {
	return c.mutate(func(s models.GameState, now time.Time) (models.GameState, error) {
		return models.NewGameState(c.cfg.DefaultClockSeconds, now), nil
	})
}

// AddPenalty creates a penalty countdown anchored at the current instant.
func (c *Controller) AddPenalty(team models.Team, playerNumber string, minutes, seconds int) error {
	return c.mutate(func(s models.GameState, now time.Time) (models.GameState, error) {
		return penalty.Add(s, team, playerNumber, minutes, seconds, now)
	})
}

// RemovePenalty deletes a penalty. Removing an absent penalty is a no-op.
func (c *Controller) RemovePenalty(penaltyID string) error {
	return c.mutate(func(s models.GameState, now time.Time) (models.GameState, error) {
		return penalty.Remove(s, penaltyID), nil
	})
}
