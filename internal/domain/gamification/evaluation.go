package gamification

import (
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

// EvaluationType selects the base XP of an evaluation.
type EvaluationType string

const (
	EvaluationProgress  EvaluationType = "PROGRESS"
	EvaluationTechnique EvaluationType = "TECHNIQUE"
	EvaluationSparring  EvaluationType = "SPARRING"
	EvaluationFitness   EvaluationType = "FITNESS"
	EvaluationKnowledge EvaluationType = "KNOWLEDGE"
	EvaluationGrading   EvaluationType = "GRADING"
)

// IsValid reports whether t is a known evaluation type.
func (t EvaluationType) IsValid() bool {
	switch t {
	case EvaluationProgress, EvaluationTechnique, EvaluationSparring,
		EvaluationFitness, EvaluationKnowledge, EvaluationGrading:
		return true
	default:
		return false
	}
}

// DefaultPassingScore applies to lessons outside the evaluation schedule.
const DefaultPassingScore = 70.0

// TechniqueResult is one tested technique.
type TechniqueResult struct {
	TechniqueID       string
	TechniqueCategory string

	// Accuracy is 0-100; nil when the instructor did not measure it.
	Accuracy *float64
	Passed   bool
	Notes    string
}

// PhysicalTest is the optional conditioning part of an evaluation.
type PhysicalTest struct {
	Type        string
	Completed   int
	Target      int
	TimeSeconds *int
	Passed      bool
}

// Evaluation is an append-only evaluation record.
type Evaluation struct {
	ID           string
	EnrollmentID string
	Type         EvaluationType
	LessonNumber int
	Techniques   []TechniqueResult
	Physical     *PhysicalTest
	OverallScore float64
	Passed       bool
	XPAwarded    int
	EvaluatedBy  string
	Notes        string
	EvaluatedAt  time.Time
}

// ─────────────────────────────────────────────────────────────────────────────
// Schedule
// ─────────────────────────────────────────────────────────────────────────────

// ScheduledEvaluation is one fixed checkpoint of a course.
type ScheduledEvaluation struct {
	Name         string
	LessonNumber int
	Type         EvaluationType
	PassingScore float64
}

// DefaultSchedule is five progress tests every 8 lessons and a final exam at 48.
func DefaultSchedule() []ScheduledEvaluation {
	return []ScheduledEvaluation{
		{Name: "MINI_TEST_1", LessonNumber: 8, Type: EvaluationProgress, PassingScore: 70},
		{Name: "MINI_TEST_2", LessonNumber: 16, Type: EvaluationProgress, PassingScore: 75},
		{Name: "MINI_TEST_3", LessonNumber: 24, Type: EvaluationTechnique, PassingScore: 75},
		{Name: "MINI_TEST_4", LessonNumber: 32, Type: EvaluationTechnique, PassingScore: 80},
		{Name: "MINI_TEST_5", LessonNumber: 40, Type: EvaluationSparring, PassingScore: 80},
		{Name: "FINAL_EXAM", LessonNumber: 48, Type: EvaluationGrading, PassingScore: 85},
	}
}

// ScheduledAt returns the checkpoint held at lessonNumber.
func ScheduledAt(schedule []ScheduledEvaluation, lessonNumber int) (ScheduledEvaluation, bool) {
	for _, s := range schedule {
		if s.LessonNumber == lessonNumber {
			return s, true
		}
	}
	return ScheduledEvaluation{}, false
}

// NextEvaluationHint tells the caller what comes after a recorded evaluation.
type NextEvaluationHint struct {
	ScheduledEvaluation
	// CanTakeNow is true when the student already attended enough lessons.
	CanTakeNow bool
}

// NextAfter returns the first checkpoint after lessonNumber, or nil when the
// schedule is exhausted.
func NextAfter(schedule []ScheduledEvaluation, lessonNumber, lessonsCompleted int) *NextEvaluationHint {
	for _, s := range schedule {
		if s.LessonNumber > lessonNumber {
			return &NextEvaluationHint{
				ScheduledEvaluation: s,
				CanTakeNow:          lessonsCompleted >= s.LessonNumber,
			}
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scoring
// ─────────────────────────────────────────────────────────────────────────────

// ValidateResults rejects accuracies outside 0-100 and negative physical counts.
func ValidateResults(results []TechniqueResult, physical *PhysicalTest) error {
	for _, r := range results {
		if r.TechniqueID == "" {
			return shared.InvalidInput("gamification", "RecordEvaluation", "technique id is required")
		}
		if r.Accuracy != nil && (*r.Accuracy < 0 || *r.Accuracy > 100) {
			return shared.ErrInvalidAccuracy
		}
	}
	if physical != nil {
		if physical.Completed < 0 || physical.Target < 0 {
			return shared.ErrNegativeMetric
		}
		if physical.TimeSeconds != nil && *physical.TimeSeconds < 0 {
			return shared.ErrNegativeMetric
		}
	}
	return nil
}

// ComputeOutcome derives score and verdict when the instructor did not supply
// them: the score is the mean measured accuracy; passing needs the score at or
// above passingScore and a passed physical test when one was taken.
func ComputeOutcome(results []TechniqueResult, physical *PhysicalTest, passingScore float64) (float64, bool) {
	var sum float64
	var n int
	for _, r := range results {
		if r.Accuracy != nil {
			sum += *r.Accuracy
			n++
		}
	}
	score := 0.0
	if n > 0 {
		score = sum / float64(n)
	}
	passed := n > 0 && score >= passingScore
	if physical != nil && !physical.Passed {
		passed = false
	}
	return score, passed
}
