package shared

import (
	"encoding/json"
	"strconv"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each is published after the change it describes has been persisted.
const (
	// User events
	EventUserCreated EventType = "user.created"
	EventUserUpdated EventType = "user.updated"
	EventUserDeleted EventType = "user.deleted"

	// Progress events
	EventLessonCompleted  EventType = "progress.lesson_completed"
	EventStudyTimeAdded   EventType = "progress.study_time_added"
	EventStreakUpdated    EventType = "progress.streak_updated"
	EventProgressReplaced EventType = "progress.replaced"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event for a user aggregate.
func NewBaseEvent(eventType EventType, userID int64, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: strconv.FormatInt(userID, 10),
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// User Events
// ═══════════════════════════════════════════════════════════════════════════

// UserCreatedEvent is emitted when a user is registered.
type UserCreatedEvent struct {
	BaseEvent
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Payload implements Event interface.
func (e UserCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"name":  e.Name,
		"email": e.Email,
	}
}

// NewUserCreatedEvent creates a new UserCreatedEvent.
func NewUserCreatedEvent(userID int64, name, email string, at time.Time) UserCreatedEvent {
	return UserCreatedEvent{
		BaseEvent: NewBaseEvent(EventUserCreated, userID, at),
		Name:      name,
		Email:     email,
	}
}

// UserUpdatedEvent is emitted when a profile is edited.
type UserUpdatedEvent struct {
	BaseEvent
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

// Payload implements Event interface.
func (e UserUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"name": e.Name,
		"bio":  e.Bio,
	}
}

// NewUserUpdatedEvent creates a new UserUpdatedEvent.
func NewUserUpdatedEvent(userID int64, name, bio string, at time.Time) UserUpdatedEvent {
	return UserUpdatedEvent{
		BaseEvent: NewBaseEvent(EventUserUpdated, userID, at),
		Name:      name,
		Bio:       bio,
	}
}

// UserDeletedEvent is emitted after a user and their progress are removed.
type UserDeletedEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e UserDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewUserDeletedEvent creates a new UserDeletedEvent.
func NewUserDeletedEvent(userID int64, at time.Time) UserDeletedEvent {
	return UserDeletedEvent{BaseEvent: NewBaseEvent(EventUserDeleted, userID, at)}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonCompletedEvent is emitted on every completeLesson call.
// NewLesson is false when the lesson had already been completed before.
type LessonCompletedEvent struct {
	BaseEvent
	LessonID         string `json:"lesson_id"`
	NewLesson        bool   `json:"new_lesson"`
	LessonsCompleted int    `json:"lessons_completed"`
	StudyStreak      int    `json:"study_streak"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lesson_id":         e.LessonID,
		"new_lesson":        e.NewLesson,
		"lessons_completed": e.LessonsCompleted,
		"study_streak":      e.StudyStreak,
	}
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(userID int64, lessonID string, newLesson bool, lessonsCompleted, streak int, at time.Time) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent:        NewBaseEvent(EventLessonCompleted, userID, at),
		LessonID:         lessonID,
		NewLesson:        newLesson,
		LessonsCompleted: lessonsCompleted,
		StudyStreak:      streak,
	}
}

// StudyTimeAddedEvent is emitted when minutes are added to the total study time.
type StudyTimeAddedEvent struct {
	BaseEvent
	Minutes        int `json:"minutes"`
	TotalStudyTime int `json:"total_study_time"`
}

// Payload implements Event interface.
func (e StudyTimeAddedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"minutes":          e.Minutes,
		"total_study_time": e.TotalStudyTime,
	}
}

// NewStudyTimeAddedEvent creates a new StudyTimeAddedEvent.
func NewStudyTimeAddedEvent(userID int64, minutes, total int, at time.Time) StudyTimeAddedEvent {
	return StudyTimeAddedEvent{
		BaseEvent:      NewBaseEvent(EventStudyTimeAdded, userID, at),
		Minutes:        minutes,
		TotalStudyTime: total,
	}
}

// StreakUpdatedEvent is emitted whenever the streak calculator runs.
type StreakUpdatedEvent struct {
	BaseEvent
	PreviousStreak int    `json:"previous_streak"`
	NewStreak      int    `json:"new_streak"`
	Outcome        string `json:"outcome"`
	LastStudied    string `json:"last_studied"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_streak": e.PreviousStreak,
		"new_streak":      e.NewStreak,
		"outcome":         e.Outcome,
		"last_studied":    e.LastStudied,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID int64, previous, next int, outcome, lastStudied string, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:      NewBaseEvent(EventStreakUpdated, userID, at),
		PreviousStreak: previous,
		NewStreak:      next,
		Outcome:        outcome,
		LastStudied:    lastStudied,
	}
}

// ProgressReplacedEvent is emitted after an administrative bulk overwrite.
type ProgressReplacedEvent struct {
	BaseEvent
	LessonsCompleted int `json:"lessons_completed"`
	StudyStreak      int `json:"study_streak"`
	TotalStudyTime   int `json:"total_study_time"`
}

// Payload implements Event interface.
func (e ProgressReplacedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lessons_completed": e.LessonsCompleted,
		"study_streak":      e.StudyStreak,
		"total_study_time":  e.TotalStudyTime,
	}
}

// NewProgressReplacedEvent creates a new ProgressReplacedEvent.
func NewProgressReplacedEvent(userID int64, lessons, streak, total int, at time.Time) ProgressReplacedEvent {
	return ProgressReplacedEvent{
		BaseEvent:        NewBaseEvent(EventProgressReplaced, userID, at),
		LessonsCompleted: lessons,
		StudyStreak:      streak,
		TotalStudyTime:   total,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per newly unlocked achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID   int64  `json:"achievement_id"`
	AchievementName string `json:"achievement_name"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id":   e.AchievementID,
		"achievement_name": e.AchievementName,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID int64, name string, at time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID, at),
		AchievementID:   achievementID,
		AchievementName: name,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes event into an envelope with the given id.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if base, ok := baseOf(event); ok {
		env.Version = base.Version
		env.CorrelationID = base.CorrelationID
	}
	return env, nil
}

func baseOf(event Event) (BaseEvent, bool) {
	type based interface{ base() BaseEvent }
	if b, ok := event.(based); ok {
		return b.base(), true
	}
	return BaseEvent{}, false
}

func (e BaseEvent) base() BaseEvent { return e }

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
