package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each one is emitted after the corresponding state
// change has been persisted.
const (
	// Progress events
	EventXPAwarded    EventType = "progress.xp_awarded"
	EventLevelUp      EventType = "progress.level_up"
	EventStreakBroken EventType = "progress.streak_broken"

	// Gamification events
	EventAchievementUnlocked EventType = "gamification.achievement_unlocked"
	EventChallengeCompleted  EventType = "gamification.challenge_completed"
	EventEvaluationRecorded  EventType = "gamification.evaluation_recorded"

	// Graduation events
	EventDegreeReached EventType = "graduation.degree_reached"
	EventBeltGraduated EventType = "graduation.belt_graduated"
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

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent is emitted after the XP ledger commits a delta.
type XPAwardedEvent struct {
	BaseEvent
	StudentID      string `json:"student_id"`
	OrganizationID string `json:"organization_id"`
	Amount         int    `json:"amount"`
	NewTotal       int    `json:"new_total"`
	NewLevel       int    `json:"new_level"`
	Source         string `json:"source"`
	ReferenceID    string `json:"reference_id,omitempty"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"organization_id": e.OrganizationID,
		"amount":          e.Amount,
		"new_total":       e.NewTotal,
		"new_level":       e.NewLevel,
		"source":          e.Source,
		"reference_id":    e.ReferenceID,
	}
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(studentID, orgID string, amount, newTotal, newLevel int, source, referenceID string) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent:      NewBaseEvent(EventXPAwarded, studentID),
		StudentID:      studentID,
		OrganizationID: orgID,
		Amount:         amount,
		NewTotal:       newTotal,
		NewLevel:       newLevel,
		Source:         source,
		ReferenceID:    referenceID,
	}
}

// LevelUpEvent is emitted when a student reaches a new global level.
type LevelUpEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	OldLevel  int    `json:"old_level"`
	NewLevel  int    `json:"new_level"`
	TotalXP   int    `json:"total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"old_level":  e.OldLevel,
		"new_level":  e.NewLevel,
		"total_xp":   e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(studentID string, oldLevel, newLevel, totalXP int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, studentID),
		StudentID: studentID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalXP:   totalXP,
	}
}

// StreakBrokenEvent is emitted when a gap longer than the grace window resets a streak.
type StreakBrokenEvent struct {
	BaseEvent
	StudentID      string `json:"student_id"`
	PreviousStreak int    `json:"previous_streak"`
	LongestStreak  int    `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"previous_streak": e.PreviousStreak,
		"longest_streak":  e.LongestStreak,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(studentID string, previous, longest int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, studentID),
		StudentID:      studentID,
		PreviousStreak: previous,
		LongestStreak:  longest,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Gamification Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per (student, achievement).
type AchievementUnlockedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	XPReward      int    `json:"xp_reward"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"achievement_id": e.AchievementID,
		"name":           e.Name,
		"xp_reward":      e.XPReward,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(studentID, achievementID, name string, xpReward int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, studentID),
		StudentID:     studentID,
		AchievementID: achievementID,
		Name:          name,
		XPReward:      xpReward,
	}
}

// ChallengeCompletedEvent is emitted the first time an attempt completes a challenge.
type ChallengeCompletedEvent struct {
	BaseEvent
	EnrollmentID string `json:"enrollment_id"`
	ChallengeID  string `json:"challenge_id"`
	XPAwarded    int    `json:"xp_awarded"`
}

// Payload implements Event interface.
func (e ChallengeCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"enrollment_id": e.EnrollmentID,
		"challenge_id":  e.ChallengeID,
		"xp_awarded":    e.XPAwarded,
	}
}

// NewChallengeCompletedEvent creates a new ChallengeCompletedEvent.
func NewChallengeCompletedEvent(studentID, enrollmentID, challengeID string, xp int) ChallengeCompletedEvent {
	return ChallengeCompletedEvent{
		BaseEvent:    NewBaseEvent(EventChallengeCompleted, studentID),
		EnrollmentID: enrollmentID,
		ChallengeID:  challengeID,
		XPAwarded:    xp,
	}
}

// EvaluationRecordedEvent is emitted after an evaluation is appended.
type EvaluationRecordedEvent struct {
	BaseEvent
	EnrollmentID string  `json:"enrollment_id"`
	EvaluationID string  `json:"evaluation_id"`
	LessonNumber int     `json:"lesson_number"`
	OverallScore float64 `json:"overall_score"`
	Passed       bool    `json:"passed"`
}

// Payload implements Event interface.
func (e EvaluationRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"enrollment_id": e.EnrollmentID,
		"evaluation_id": e.EvaluationID,
		"lesson_number": e.LessonNumber,
		"overall_score": e.OverallScore,
		"passed":        e.Passed,
	}
}

// NewEvaluationRecordedEvent creates a new EvaluationRecordedEvent.
func NewEvaluationRecordedEvent(studentID, enrollmentID, evaluationID string, lesson int, score float64, passed bool) EvaluationRecordedEvent {
	return EvaluationRecordedEvent{
		BaseEvent:    NewBaseEvent(EventEvaluationRecorded, studentID),
		EnrollmentID: enrollmentID,
		EvaluationID: evaluationID,
		LessonNumber: lesson,
		OverallScore: score,
		Passed:       passed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Graduation Events
// ═══════════════════════════════════════════════════════════════════════════

// DegreeReachedEvent is emitted once per (student, course, degree).
type DegreeReachedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
	Degree    int    `json:"degree"`
}

// Payload implements Event interface.
func (e DegreeReachedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"course_id":  e.CourseID,
		"degree":     e.Degree,
	}
}

// NewDegreeReachedEvent creates a new DegreeReachedEvent.
func NewDegreeReachedEvent(studentID, courseID string, degree int) DegreeReachedEvent {
	return DegreeReachedEvent{
		BaseEvent: NewBaseEvent(EventDegreeReached, studentID),
		StudentID: studentID,
		CourseID:  courseID,
		Degree:    degree,
	}
}

// BeltGraduatedEvent is emitted when a graduation is approved.
type BeltGraduatedEvent struct {
	BaseEvent
	StudentID  string `json:"student_id"`
	CourseID   string `json:"course_id"`
	FromBelt   string `json:"from_belt"`
	ToBelt     string `json:"to_belt"`
	ApprovedBy string `json:"approved_by"`
}

// Payload implements Event interface.
func (e BeltGraduatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":  e.StudentID,
		"course_id":   e.CourseID,
		"from_belt":   e.FromBelt,
		"to_belt":     e.ToBelt,
		"approved_by": e.ApprovedBy,
	}
}

// NewBeltGraduatedEvent creates a new BeltGraduatedEvent.
func NewBeltGraduatedEvent(studentID, courseID, fromBelt, toBelt, approvedBy string) BeltGraduatedEvent {
	return BeltGraduatedEvent{
		BaseEvent:  NewBaseEvent(EventBeltGraduated, studentID),
		StudentID:  studentID,
		CourseID:   courseID,
		FromBelt:   fromBelt,
		ToBelt:     toBelt,
		ApprovedBy: approvedBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

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
