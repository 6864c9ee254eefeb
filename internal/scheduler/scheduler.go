// internal/scheduler/scheduler.go

// Package scheduler drives the repeating account loop: keep the session
// signed in, roll the free play when the cooldown allows, claim reward
// bonuses in the configured order, reconcile account settings once per run,
// and sleep until the next time anything can happen. It owns every retry
// and termination decision; the page layers only classify their failures.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/auth"
	"github.com/xkilldash9x/dripper/internal/config"
	"github.com/xkilldash9x/dripper/internal/faucet"
)

// -- Interfaces for Dependency Inversion --

// Authenticator establishes and tears down the signed-in session.
type Authenticator interface {
	Login(ctx context.Context, page schemas.Page, creds schemas.Credentials) error
	Probe(ctx context.Context, page schemas.Page) (bool, error)
	Logout(ctx context.Context, page schemas.Page) error
	Reset()
}

// PageOps drives the faucet pages themselves.
type PageOps interface {
	Countdown(ctx context.Context, page schemas.Page) (time.Duration, bool, error)
	Play(ctx context.Context, page schemas.Page) (schemas.PlayResult, error)
	LoadBonusTables(ctx context.Context, page schemas.Page) error
	Bonuses(ctx context.Context, page schemas.Page) ([]schemas.BonusState, error)
	ClaimBonus(ctx context.Context, page schemas.Page, name string) (schemas.BonusState, error)
}

// SettingsApplier reconciles the configured account settings.
type SettingsApplier interface {
	ApplyAll(ctx context.Context, page schemas.Page) ([]schemas.SettingChange, error)
}

// Reporter reads the account snapshot without touching its state.
type Reporter interface {
	Snapshot(ctx context.Context, page schemas.Page, address string) (schemas.AccountSnapshot, error)
}

const (
	recordBuffer   = 64
	flushBatchSize = 16
	flushInterval  = 5 * time.Second
	persistTimeout = 30 * time.Second
	logoutTimeout  = 10 * time.Second

	// Activated reward bonuses run out after a day; the free play timer is
	// an hour when the page does not say otherwise.
	bonusLifetime  = 24 * time.Hour
	freePlayPeriod = time.Hour

	wakeFloor      = 15 * time.Second
	wakeJitterSpan = 30 * time.Second
)

// Scheduler owns the single account loop. One page, one session, one loop;
// the only concurrency is the store writer draining claim records.
type Scheduler struct {
	cfg      *config.Config
	logger   *zap.Logger
	creds    schemas.Credentials
	page     schemas.Page
	auth     Authenticator
	pages    PageOps
	settings SettingsApplier
	reporter Reporter
	store    schemas.ClaimStore

	runID   string
	records chan schemas.ClaimRecord

	// stateLock protects the running state of the loop.
	stateLock sync.Mutex
	isRunning bool

	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	tokenExpiry func(cookies []schemas.Cookie) (time.Time, bool)
	rng         *rand.Rand
}

// New wires the scheduler. The store may be nil, which disables claim
// history; every other dependency is required.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	page schemas.Page,
	authn Authenticator,
	pages PageOps,
	settings SettingsApplier,
	reporter Reporter,
	store schemas.ClaimStore,
	creds schemas.Credentials,
) (*Scheduler, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if page == nil {
		return nil, errors.New("page cannot be nil")
	}
	if authn == nil {
		return nil, errors.New("authenticator cannot be nil")
	}
	if pages == nil {
		return nil, errors.New("page operations cannot be nil")
	}
	if settings == nil {
		return nil, errors.New("settings applier cannot be nil")
	}
	if reporter == nil {
		return nil, errors.New("reporter cannot be nil")
	}

	s := &Scheduler{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "scheduler")),
		creds:       creds,
		page:        page,
		auth:        authn,
		pages:       pages,
		settings:    settings,
		reporter:    reporter,
		store:       store,
		runID:       uuid.NewString(),
		now:         time.Now,
		tokenExpiry: auth.TokenExpiry,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.sleep = s.wait
	return s, nil
}

// Run executes the loop until the context is cancelled or a fatal
// classification stops it. The returned error is the classified cause;
// context.Canceled means a clean external stop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.stateLock.Lock()
	if s.isRunning {
		s.stateLock.Unlock()
		return errors.New("scheduler is already running")
	}
	s.isRunning = true
	s.stateLock.Unlock()
	defer func() {
		s.stateLock.Lock()
		s.isRunning = false
		s.stateLock.Unlock()
	}()

	s.logger.Info("Scheduler starting.",
		zap.String("run_id", s.runID),
		zap.String("address", s.creds.Address),
		zap.Bool("claim_history", s.store != nil))

	g, gctx := errgroup.WithContext(ctx)

	if s.store != nil {
		s.records = make(chan schemas.ClaimRecord, recordBuffer)
		records := s.records
		g.Go(func() error {
			s.persistRecords(records)
			return nil
		})
	}

	g.Go(func() error {
		if s.records != nil {
			defer close(s.records)
		}
		defer s.logoutQuietly()
		return s.loop(gctx)
	})

	err := g.Wait()
	s.records = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Scheduler stopped on failure.", zap.String("run_id", s.runID), zap.Error(err))
		return err
	}
	s.logger.Info("Scheduler stopped.", zap.String("run_id", s.runID))
	return err
}

// cycleState carries what must survive from one cycle to the next.
type cycleState struct {
	settingsApplied bool
	activations     map[string]time.Time
	mismatches      int
	flawed          bool
}

// wakePlan tracks the earliest reason to wake up again.
type wakePlan struct {
	at     time.Time
	reason string
}

func (w *wakePlan) propose(at time.Time, reason string) {
	if at.IsZero() {
		return
	}
	if w.at.IsZero() || at.Before(w.at) {
		w.at, w.reason = at, reason
	}
}

func (s *Scheduler) loop(ctx context.Context) error {
	sched := s.cfg.Scheduler
	bo := newBackoff(sched.BackoffBase, sched.BackoffCap, sched.Jitter, s.rng)
	st := &cycleState{activations: make(map[string]time.Time)}

	downStreak := 0
	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := s.logger.With(zap.Int("cycle", cycle))

		plan, err := s.cycle(ctx, log, st, bo)
		if err != nil {
			if errors.Is(err, faucet.ErrSiteDown) {
				downStreak++
				if downStreak > sched.SiteDownAttempts {
					log.Error("Site still unavailable, giving up.", zap.Int("checks", downStreak))
					return err
				}
				delay := sched.SiteDownBase * time.Duration(1<<(downStreak-1))
				log.Warn("Site unavailable, waiting out the outage.",
					zap.Duration("delay", delay), zap.Int("check", downStreak))
				if serr := s.sleep(ctx, delay); serr != nil {
					return serr
				}
				continue
			}
			return err
		}
		downStreak = 0

		if st.flawed {
			delay := bo.next()
			log.Info("Cycle had transient failures, backing off.", zap.Duration("delay", delay))
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		bo.reset()
		st.mismatches = 0

		now := s.now()
		wakeAt := plan.at
		if wakeAt.Before(now.Add(wakeFloor)) {
			wakeAt = now.Add(wakeFloor)
		}
		delay := wakeAt.Sub(now)
		if sched.Jitter {
			delay += time.Duration(s.rng.Int63n(int64(wakeJitterSpan)))
		}
		log.Info("Cycle complete.", zap.Duration("sleep", delay), zap.String("wake_reason", plan.reason))
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// cycle runs one pass of the loop. A returned error stops the run; anything
// recoverable is absorbed into the cycle state instead.
func (s *Scheduler) cycle(ctx context.Context, log *zap.Logger, st *cycleState, bo *backoff) (wakePlan, error) {
	st.flawed = false

	var plan wakePlan
	plan.propose(s.now().Add(s.cfg.Scheduler.MaxIdle), "max_idle")

	if err := s.ensureSession(ctx, log, bo); err != nil {
		return plan, err
	}

	playWake, err := s.playStep(ctx, log, st)
	if err != nil {
		return plan, err
	}
	plan.propose(playWake, "free_play")

	bonusWake, err := s.bonusStep(ctx, log, st)
	if err != nil {
		return plan, err
	}
	plan.propose(bonusWake, "bonus_expiry")

	if err := s.settingsStep(ctx, log, st); err != nil {
		return plan, err
	}

	s.snapshotStep(ctx, log)

	return plan, nil
}

// ensureSession makes sure the page is signed in before any account action.
// A session that idled past the threshold or whose token expired is probed
// first; only a confirmed logout costs a full login round.
func (s *Scheduler) ensureSession(ctx context.Context, log *zap.Logger, bo *backoff) error {
	now := s.now()
	if s.page.Authenticated() &&
		!s.page.Stale(s.cfg.Scheduler.IdleThreshold, now) &&
		!s.tokenExpired(ctx, now) {
		return nil
	}

	if s.page.Authenticated() {
		ok, err := s.auth.Probe(ctx, s.page)
		if err != nil {
			log.Debug("Session probe failed.", zap.Error(err))
		} else if ok {
			log.Debug("Stale session is still signed in.")
			return nil
		}
	}

	attempts := s.cfg.Scheduler.LoginAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			delay := bo.next()
			log.Info("Retrying login.", zap.Int("attempt", attempt), zap.Duration("delay", delay))
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
			s.auth.Reset()
		}

		err := s.auth.Login(ctx, s.page, s.creds)
		if err == nil {
			s.record(s.newRecord(schemas.ClaimAuthEvent, schemas.OutcomeSuccess, 0, authDetail{Attempt: attempt}))
			return nil
		}
		lastErr = err

		var step *schemas.StepError
		if errors.As(err, &step) && step.Fatal() {
			s.record(s.newRecord(schemas.ClaimAuthEvent, schemas.OutcomeFailed, 0,
				authDetail{Attempt: attempt, Error: err.Error()}))
			return err
		}
		if errors.Is(err, faucet.ErrSiteDown) {
			return err
		}
		s.record(s.newRecord(schemas.ClaimAuthEvent, schemas.OutcomeRetried, 0,
			authDetail{Attempt: attempt, Error: err.Error()}))
	}
	return lastErr
}

// tokenExpired reports whether the session token has an expiry in the past.
// An unreadable cookie jar counts as fresh; the probe settles it.
func (s *Scheduler) tokenExpired(ctx context.Context, now time.Time) bool {
	cookies, err := s.page.Cookies(ctx)
	if err != nil {
		s.logger.Debug("Cookie read failed during freshness check.", zap.Error(err))
		return false
	}
	exp, ok := s.tokenExpiry(cookies)
	return ok && !exp.After(now)
}

// playStep rolls the free play and reports when the next roll is due. The
// returned error is terminal for the run; recoverable failures land in st.
func (s *Scheduler) playStep(ctx context.Context, log *zap.Logger, st *cycleState) (time.Time, error) {
	res, err := s.pages.Play(ctx, s.page)
	now := s.now()

	if err == nil {
		log.Info("Free play won.",
			zap.Int64("sat", res.WonSat),
			zap.Int64("reward_points", res.RewardPoints),
			zap.Int64("lottery_tickets", res.LotteryTickets))
		s.record(s.newRecord(schemas.ClaimFreePlay, schemas.OutcomeSuccess, res.WonSat, playDetail{
			RewardPoints:   res.RewardPoints,
			LotteryTickets: res.LotteryTickets,
			WheelSpins:     res.WheelSpins,
		}))
		// A successful roll starts the timer; read it back for the wake.
		if remaining, active, cerr := s.pages.Countdown(ctx, s.page); cerr == nil && active {
			return now.Add(remaining), nil
		}
		return now.Add(freePlayPeriod), nil
	}

	var cooldown *faucet.CooldownError
	if errors.As(err, &cooldown) {
		log.Info("Free play on cooldown.", zap.Duration("remaining", cooldown.Remaining))
		return now.Add(cooldown.Remaining), nil
	}

	var broke *faucet.InsufficientPointsError
	if errors.As(err, &broke) {
		log.Info("Free play deferred, not enough reward points.",
			zap.Int64("need", broke.Need), zap.Int64("have", broke.Have))
		s.record(s.newRecord(schemas.ClaimFreePlay, schemas.OutcomeDeferred, 0,
			bonusDetail{Bonus: "free_play", Need: broke.Need, Have: broke.Have}))
		return time.Time{}, nil
	}

	return time.Time{}, s.noteFailure(ctx, log, st, schemas.ClaimFreePlay, "free_play", err)
}

// bonusStep claims configured bonuses in order. A bonus is claimed only when
// every earlier one is already active, so the stack builds up the way the
// order prescribes; one stuck bonus defers the rest to the next cycle.
func (s *Scheduler) bonusStep(ctx context.Context, log *zap.Logger, st *cycleState) (time.Time, error) {
	if !s.cfg.Bonuses.Enabled || len(s.cfg.Bonuses.Order) == 0 {
		return time.Time{}, nil
	}

	if err := s.pages.LoadBonusTables(ctx, s.page); err != nil {
		return time.Time{}, s.noteFailure(ctx, log, st, schemas.ClaimBonus, "bonus_tables", err)
	}
	states, err := s.pages.Bonuses(ctx, s.page)
	if err != nil {
		return time.Time{}, s.noteFailure(ctx, log, st, schemas.ClaimBonus, "bonus_status", err)
	}

	now := s.now()
	claims := 0
	gate := true
	for _, state := range states {
		if state.Active {
			if _, seen := st.activations[state.Name]; !seen {
				st.activations[state.Name] = now
			}
			continue
		}
		switch {
		case !state.Available:
			log.Debug("Bonus not on offer.", zap.String("bonus", state.Name))
			gate = false
			continue
		case !gate:
			log.Debug("Bonus waits for earlier activations.", zap.String("bonus", state.Name))
			continue
		case claims >= s.cfg.Scheduler.BonusClaimCap:
			log.Debug("Bonus claim cap reached for this cycle.", zap.String("bonus", state.Name))
			gate = false
			continue
		}

		claims++
		got, cerr := s.pages.ClaimBonus(ctx, s.page, state.Name)
		if cerr == nil {
			log.Info("Bonus activated.", zap.String("bonus", state.Name), zap.Int64("cost", got.Cost))
			s.record(s.newRecord(schemas.ClaimBonus, schemas.OutcomeSuccess, got.Cost,
				bonusDetail{Bonus: state.Name, Cost: got.Cost}))
			st.activations[state.Name] = now
			continue
		}

		var broke *faucet.InsufficientPointsError
		if errors.As(cerr, &broke) {
			log.Info("Bonus deferred, not enough reward points.",
				zap.String("bonus", state.Name), zap.Int64("need", broke.Need), zap.Int64("have", broke.Have))
			s.record(s.newRecord(schemas.ClaimBonus, schemas.OutcomeDeferred, 0,
				bonusDetail{Bonus: state.Name, Need: broke.Need, Have: broke.Have}))
			gate = false
			continue
		}
		if terminal := s.noteFailure(ctx, log, st, schemas.ClaimBonus, "bonus_"+state.Name, cerr); terminal != nil {
			return time.Time{}, terminal
		}
		gate = false
	}

	var wake time.Time
	for _, at := range st.activations {
		if exp := at.Add(bonusLifetime); wake.IsZero() || exp.Before(wake) {
			wake = exp
		}
	}
	return wake, nil
}

// settingsStep reconciles the desired account settings exactly once per run.
// Individual changes that fail to stick stay failed; the loop moves on.
func (s *Scheduler) settingsStep(ctx context.Context, log *zap.Logger, st *cycleState) error {
	if st.settingsApplied ||
		len(s.cfg.Settings.Desired) == 0 ||
		!strings.EqualFold(s.cfg.Settings.ApplyOn, "startup") {
		return nil
	}
	st.settingsApplied = true

	changes, err := s.settings.ApplyAll(ctx, s.page)
	for _, change := range changes {
		outcome := schemas.OutcomeSuccess
		if !change.Applied {
			outcome = schemas.OutcomeFailed
		}
		s.record(s.newRecord(schemas.ClaimSetting, outcome, 0,
			settingDetail{Field: change.Field, Desired: change.DesiredValue}))
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Some settings did not apply.", zap.Error(err))
	}
	return nil
}

// snapshotStep records the account standing after the cycle's actions. Read
// only, so a failure never disturbs the cycle.
func (s *Scheduler) snapshotStep(ctx context.Context, log *zap.Logger) {
	snap, err := s.reporter.Snapshot(ctx, s.page, s.creds.Address)
	if err != nil {
		log.Debug("Account snapshot skipped.", zap.Error(err))
		return
	}
	s.record(s.newRecord(schemas.ClaimSnapshotRead, schemas.OutcomeSuccess, snap.BalanceSat, snapshotDetail{
		RewardPoints:   snap.RewardPoints,
		LotteryTickets: snap.LotteryTickets,
	}))
}

// noteFailure decides what a failed step means for the run. Fatal
// classifications, outages and cancellation come back as terminal errors;
// transient and mismatch failures mark the cycle flawed and return nil,
// unless mismatches have repeated past the ceiling.
func (s *Scheduler) noteFailure(ctx context.Context, log *zap.Logger, st *cycleState,
	kind schemas.ClaimKind, step string, err error) error {

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, faucet.ErrSiteDown) {
		return err
	}

	var stepErr *schemas.StepError
	if errors.As(err, &stepErr) && stepErr.Fatal() {
		s.record(s.newRecord(kind, schemas.OutcomeFailed, 0, stepDetail{Step: step, Error: err.Error()}))
		log.Error("Fatal failure, stopping the loop.", zap.String("step", step), zap.Error(err))
		return err
	}

	st.flawed = true
	if schemas.IsClass(err, schemas.ClassPageMismatch) {
		st.mismatches++
		if ceiling := s.cfg.Scheduler.MismatchCeiling; ceiling > 0 && st.mismatches >= ceiling {
			s.record(s.newRecord(kind, schemas.OutcomeFailed, 0, stepDetail{Step: step, Error: err.Error()}))
			return schemas.NewStepError(schemas.ClassPageMismatch, "scheduler.cycle",
				fmt.Errorf("the page failed to match expectations %d cycles in a row: %w", st.mismatches, err))
		}
	}

	s.record(s.newRecord(kind, schemas.OutcomeRetried, 0, stepDetail{Step: step, Error: err.Error()}))
	log.Warn("Step failed, will retry after backoff.", zap.String("step", step), zap.Error(err))
	return nil
}

// persistRecords drains claim records into the store in small batches. It
// keeps draining after cancellation so nothing recorded is lost; the channel
// closing is its stop signal.
func (s *Scheduler) persistRecords(records <-chan schemas.ClaimRecord) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]schemas.ClaimRecord, 0, flushBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Persistence gets its own context so records written during
		// shutdown still land.
		pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.store.SaveClaims(pctx, batch); err != nil {
			s.logger.Error("Failed to persist claim records.", zap.Error(err), zap.Int("count", len(batch)))
		} else {
			s.logger.Debug("Claim records persisted.", zap.Int("count", len(batch)))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= flushBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// logoutQuietly signs out during shutdown on a fresh context, since the
// run context is usually already cancelled by then.
func (s *Scheduler) logoutQuietly() {
	if !s.page.Authenticated() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	if err := s.auth.Logout(ctx, s.page); err != nil {
		s.logger.Debug("Best effort logout failed.", zap.Error(err))
	}
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
