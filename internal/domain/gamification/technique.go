package gamification

import (
	"time"
)

// ProficiencyLevel is the discrete mastery bucket of a technique.
type ProficiencyLevel string

const (
	ProficiencyLearning   ProficiencyLevel = "LEARNING"
	ProficiencyPracticing ProficiencyLevel = "PRACTICING"
	ProficiencyCompetent  ProficiencyLevel = "COMPETENT"
	ProficiencyProficient ProficiencyLevel = "PROFICIENT"
	ProficiencyExpert     ProficiencyLevel = "EXPERT"
	ProficiencyMastered   ProficiencyLevel = "MASTERED"
)

// rank orders buckets from LEARNING (0) to MASTERED (5).
func (p ProficiencyLevel) rank() int {
	switch p {
	case ProficiencyLearning:
		return 0
	case ProficiencyPracticing:
		return 1
	case ProficiencyCompetent:
		return 2
	case ProficiencyProficient:
		return 3
	case ProficiencyExpert:
		return 4
	case ProficiencyMastered:
		return 5
	default:
		return -1
	}
}

// IsValid reports whether p is a known bucket.
func (p ProficiencyLevel) IsValid() bool {
	return p.rank() >= 0
}

// AtLeast reports whether p is the same as or above other.
func (p ProficiencyLevel) AtLeast(other ProficiencyLevel) bool {
	return p.rank() >= other.rank()
}

// TechniqueProgress is the enrollment × technique mastery record.
type TechniqueProgress struct {
	EnrollmentID string
	TechniqueID  string

	// TechniqueCategory groups techniques for category_mastery achievements
	// (e.g. "strikes", "defenses").
	TechniqueCategory string

	Status   ProficiencyLevel
	Accuracy float64
	Attempts int

	InstructorValidated bool
	Notes               string

	// MasteredAt is set the first time Status reaches MASTERED and kept afterwards.
	MasteredAt *time.Time
	UpdatedAt  time.Time
}

// IsMastered reports whether the technique is in the top bucket.
func (t *TechniqueProgress) IsMastered() bool {
	return t.Status == ProficiencyMastered
}

// IsLearned reports whether the technique is PROFICIENT or better.
func (t *TechniqueProgress) IsLearned() bool {
	return t.Status.AtLeast(ProficiencyProficient)
}

// RecordMeasurement folds one evaluated result into the record. A nil accuracy
// counts the attempt but leaves Status and Accuracy untouched, so a missing
// measurement never moves the bucket.
func (t *TechniqueProgress) RecordMeasurement(accuracy *float64, notes string, at time.Time, tables *Tables) {
	t.Attempts++
	t.InstructorValidated = true
	if notes != "" {
		t.Notes = notes
	}
	if accuracy != nil {
		t.Accuracy = *accuracy
		t.Status = tables.ProficiencyFor(*accuracy)
		if t.Status == ProficiencyMastered && t.MasteredAt == nil {
			m := at
			t.MasteredAt = &m
		}
	}
	if !t.Status.IsValid() {
		t.Status = ProficiencyLearning
	}
	t.UpdatedAt = at
}
