// Package saga contains business processes that orchestrate
// several domain operations in a coordinated manner.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/pkg/logger"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT ENGINE
// Flow: Load User → Load Progress → Load Unlocked Set → Evaluate Rules →
//
//	Persist Enlarged Set → Publish Events
//
// Unlocks are monotonic: the persisted set only grows, even when progress
// later regresses through a bulk overwrite.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressProvider returns a user's progress record, creating it if absent.
type ProgressProvider interface {
	GetOrCreate(ctx context.Context, userID int64) (*progress.Record, error)
}

// EvaluateInput identifies the evaluation request.
type EvaluateInput struct {
	UserID        int64
	CorrelationID string
}

// Validate checks if the input is valid.
func (i EvaluateInput) Validate() error {
	if i.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	return nil
}

// EvaluationResult contains the outcome of an evaluation.
type EvaluationResult struct {
	UserID int64

	// Unlocked is the full set after evaluation, ascending id.
	Unlocked []achievement.Definition

	// NewlyUnlocked lists the definitions added by this evaluation.
	NewlyUnlocked []achievement.Definition

	Snapshot    progress.Snapshot
	EvaluatedAt time.Time
}

// HasNewAchievements returns true if any achievements were unlocked.
func (r *EvaluationResult) HasNewAchievements() bool {
	return len(r.NewlyUnlocked) > 0
}

// EvaluationStep names a step of the flow.
type EvaluationStep string

const (
	StepLoadUser      EvaluationStep = "load_user"
	StepLoadProgress  EvaluationStep = "load_progress"
	StepLoadUnlocked  EvaluationStep = "load_unlocked"
	StepEvaluateRules EvaluationStep = "evaluate_rules"
	StepPersist       EvaluationStep = "persist"
	StepPublishEvents EvaluationStep = "publish_events"
	StepComplete      EvaluationStep = "complete"
)

// evaluationState tracks the flow.
type evaluationState struct {
	step     EvaluationStep
	input    EvaluateInput
	record   *progress.Record
	existing achievement.UnlockedSet
	newDefs  []achievement.Definition
	final    achievement.UnlockedSet
}

// AchievementEngineConfig contains configuration for the engine.
type AchievementEngineConfig struct {
	StoreTimeout time.Duration
	LockTimeout  time.Duration
}

// DefaultAchievementEngineConfig returns default configuration.
func DefaultAchievementEngineConfig() AchievementEngineConfig {
	return AchievementEngineConfig{
		StoreTimeout: 3 * time.Second,
		LockTimeout:  5 * time.Second,
	}
}

// AchievementEngine evaluates the catalog against a user's progress.
type AchievementEngine struct {
	catalog   *achievement.Catalog
	progress  ProgressProvider
	users     progress.UserLookup
	unlocked  achievement.UnlockedStore
	locker    progress.Locker
	clock     timeutil.Clock
	publisher shared.EventPublisher
	log       *logger.Logger
	config    AchievementEngineConfig
}

// Evaluate adds every achievement whose rule now holds to the user's set,
// persists it and returns the full set. Running it twice without a progress
// change in between returns the same set.
func (e *AchievementEngine) Evaluate(ctx context.Context, input EvaluateInput) (*EvaluationResult, error) {
	state := &evaluationState{step: StepLoadUser, input: input}

	if err := input.Validate(); err != nil {
		return nil, e.wrapError(state, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.config.LockTimeout)
	unlock, err := e.locker.Lock(lockCtx, achievement.LockKey(input.UserID))
	cancel()
	if err != nil {
		return nil, e.wrapError(state, err)
	}
	defer unlock()

	// Step 1: user must exist
	if err := e.stepLoadUser(ctx, state); err != nil {
		return nil, e.wrapError(state, err)
	}

	// Step 2: progress snapshot (created lazily)
	state.step = StepLoadProgress
	rec, err := e.progress.GetOrCreate(ctx, input.UserID)
	if err != nil {
		return nil, e.wrapError(state, err)
	}
	state.record = rec

	// Step 3: previously unlocked set
	state.step = StepLoadUnlocked
	if err := e.stepLoadUnlocked(ctx, state); err != nil {
		return nil, e.wrapError(state, err)
	}

	// Step 4: rules, ascending id
	state.step = StepEvaluateRules
	snapshot := rec.Snapshot()
	state.newDefs = e.catalog.Evaluate(snapshot, state.existing)

	// Step 5: persist
	state.step = StepPersist
	if err := e.stepPersist(ctx, state); err != nil {
		return nil, e.wrapError(state, err)
	}

	// Step 6: events for the new ones only
	state.step = StepPublishEvents
	now := e.clock.Now()
	e.stepPublishEvents(state, now)

	state.step = StepComplete
	if len(state.newDefs) > 0 {
		e.log.Info("achievements unlocked",
			logger.UserID(input.UserID),
			logger.Int("new", len(state.newDefs)),
			logger.Int("total", len(state.final)),
		)
	}

	return &EvaluationResult{
		UserID:        input.UserID,
		Unlocked:      e.catalog.Resolve(state.final),
		NewlyUnlocked: state.newDefs,
		Snapshot:      snapshot,
		EvaluatedAt:   now,
	}, nil
}

// Unlocked returns the user's unlocked achievements without evaluating rules.
// Stored ids that are unknown to the catalog are skipped.
func (e *AchievementEngine) Unlocked(ctx context.Context, userID int64) ([]achievement.Definition, error) {
	state := &evaluationState{step: StepLoadUser, input: EvaluateInput{UserID: userID}}

	if err := state.input.Validate(); err != nil {
		return nil, e.wrapError(state, err)
	}
	if err := e.stepLoadUser(ctx, state); err != nil {
		return nil, e.wrapError(state, err)
	}

	state.step = StepLoadUnlocked
	if err := e.stepLoadUnlocked(ctx, state); err != nil {
		return nil, e.wrapError(state, err)
	}

	return e.catalog.Resolve(state.existing), nil
}

// Catalog returns the catalog the engine evaluates.
func (e *AchievementEngine) Catalog() *achievement.Catalog {
	return e.catalog
}

// ══════════════════════════════════════════════════════════════════════════════
// STEPS
// ══════════════════════════════════════════════════════════════════════════════

func (e *AchievementEngine) stepLoadUser(ctx context.Context, state *evaluationState) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	exists, err := e.users.Exists(ctx, state.input.UserID)
	if err != nil {
		return shared.StoreError("user", "Exists", err)
	}
	if !exists {
		return shared.ErrUserNotFound
	}
	return nil
}

func (e *AchievementEngine) stepLoadUnlocked(ctx context.Context, state *evaluationState) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	set, err := e.unlocked.Load(ctx, state.input.UserID)
	if err != nil {
		return shared.StoreError("achievement", "Load", err)
	}
	if set == nil {
		set = achievement.NewUnlockedSet()
	}
	state.existing = set
	return nil
}

func (e *AchievementEngine) stepPersist(ctx context.Context, state *evaluationState) error {
	additions := achievement.NewUnlockedSet()
	for _, d := range state.newDefs {
		additions.Add(d.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	saved, err := e.unlocked.Save(ctx, state.input.UserID, state.existing.Union(additions))
	if err != nil {
		return shared.StoreError("achievement", "Save", err)
	}
	state.final = saved
	return nil
}

func (e *AchievementEngine) stepPublishEvents(state *evaluationState, at time.Time) {
	for _, d := range state.newDefs {
		event := shared.NewAchievementUnlockedEvent(state.input.UserID, d.ID, d.Name, at)
		if state.input.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(state.input.CorrelationID)
		}
		if err := e.publisher.Publish(event); err != nil {
			e.log.Warn("failed to publish event",
				logger.AchievementID(d.ID), logger.UserID(state.input.UserID), logger.Err(err))
		}
	}
}

func (e *AchievementEngine) wrapError(state *evaluationState, err error) error {
	return &EvaluationError{
		Step:   state.step,
		UserID: state.input.UserID,
		Cause:  err,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// EvaluationError reports the step an evaluation failed at.
type EvaluationError struct {
	Step   EvaluationStep
	UserID int64
	Cause  error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("achievement_engine: failed at step '%s' for user %d: %v", e.Step, e.UserID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// ══════════════════════════════════════════════════════════════════════════════
// BUILDER (Fluent API)
// ══════════════════════════════════════════════════════════════════════════════

// AchievementEngineBuilder assembles an AchievementEngine.
type AchievementEngineBuilder struct {
	catalog   *achievement.Catalog
	progress  ProgressProvider
	users     progress.UserLookup
	unlocked  achievement.UnlockedStore
	locker    progress.Locker
	clock     timeutil.Clock
	publisher shared.EventPublisher
	log       *logger.Logger
	config    AchievementEngineConfig
}

// NewAchievementEngineBuilder creates a new builder.
func NewAchievementEngineBuilder() *AchievementEngineBuilder {
	return &AchievementEngineBuilder{config: DefaultAchievementEngineConfig()}
}

// WithCatalog sets the achievement catalog.
func (b *AchievementEngineBuilder) WithCatalog(c *achievement.Catalog) *AchievementEngineBuilder {
	b.catalog = c
	return b
}

// WithProgress sets the progress provider.
func (b *AchievementEngineBuilder) WithProgress(p ProgressProvider) *AchievementEngineBuilder {
	b.progress = p
	return b
}

// WithUsers sets the user lookup.
func (b *AchievementEngineBuilder) WithUsers(u progress.UserLookup) *AchievementEngineBuilder {
	b.users = u
	return b
}

// WithUnlockedStore sets the unlocked achievement store.
func (b *AchievementEngineBuilder) WithUnlockedStore(s achievement.UnlockedStore) *AchievementEngineBuilder {
	b.unlocked = s
	return b
}

// WithLocker sets the per-user locker.
func (b *AchievementEngineBuilder) WithLocker(l progress.Locker) *AchievementEngineBuilder {
	b.locker = l
	return b
}

// WithClock sets the clock.
func (b *AchievementEngineBuilder) WithClock(c timeutil.Clock) *AchievementEngineBuilder {
	b.clock = c
	return b
}

// WithEventBus sets the event publisher.
func (b *AchievementEngineBuilder) WithEventBus(p shared.EventPublisher) *AchievementEngineBuilder {
	b.publisher = p
	return b
}

// WithLogger sets the logger.
func (b *AchievementEngineBuilder) WithLogger(l *logger.Logger) *AchievementEngineBuilder {
	b.log = l
	return b
}

// WithConfig sets the configuration.
func (b *AchievementEngineBuilder) WithConfig(c AchievementEngineConfig) *AchievementEngineBuilder {
	defaults := DefaultAchievementEngineConfig()
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaults.StoreTimeout
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = defaults.LockTimeout
	}
	b.config = c
	return b
}

// Build creates the AchievementEngine instance.
func (b *AchievementEngineBuilder) Build() (*AchievementEngine, error) {
	switch {
	case b.catalog == nil:
		return nil, errors.New("achievement catalog is required")
	case b.progress == nil:
		return nil, errors.New("progress provider is required")
	case b.users == nil:
		return nil, errors.New("user lookup is required")
	case b.unlocked == nil:
		return nil, errors.New("unlocked achievement store is required")
	case b.locker == nil:
		return nil, errors.New("locker is required")
	}

	engine := &AchievementEngine{
		catalog:   b.catalog,
		progress:  b.progress,
		users:     b.users,
		unlocked:  b.unlocked,
		locker:    b.locker,
		clock:     b.clock,
		publisher: b.publisher,
		log:       b.log,
		config:    b.config,
	}
	if engine.clock == nil {
		engine.clock = timeutil.NewSystemClock(nil)
	}
	if engine.publisher == nil {
		engine.publisher = shared.NopPublisher{}
	}
	if engine.log == nil {
		engine.log = logger.Nop()
	}
	engine.log = engine.log.With(logger.Component("achievement_engine"))

	return engine, nil
}
