// Package graduation derives degree progress and belt eligibility from
// attendance and training records. It owns DegreeAchievement and
// BeltGraduation records; both are append-only.
package graduation

import (
	"errors"
	"fmt"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Default requirement values used when a course has none configured.
const (
	DefaultTotalDegrees      = 4
	DefaultDegreeIncrement   = 20.0
	DefaultMinAttendanceRate = 80.0
	DefaultMinQualityRating  = 3.0
	DefaultMinRepetitions    = 500
	DefaultMinMonthsEnrolled = 3.0
)

// Requirements is the per-course graduation configuration.
type Requirements struct {
	CourseID string
	FromBelt string
	ToBelt   string

	// TotalDegrees is how many degrees precede the belt change.
	TotalDegrees int

	// DegreeIncrement is the progress percentage each degree represents.
	DegreeIncrement float64

	// MinAttendanceRate is a percentage (0-100).
	MinAttendanceRate float64

	// MinQualityRating is the minimum average of 1-5 ratings.
	MinQualityRating float64

	MinRepetitions int

	// MinMonthsEnrolled uses 30-day months.
	MinMonthsEnrolled float64

	UpdatedAt time.Time
}

// DefaultRequirements returns the standard white-to-yellow configuration.
func DefaultRequirements(courseID string) Requirements {
	return Requirements{
		CourseID:          courseID,
		FromBelt:          "white",
		ToBelt:            "yellow",
		TotalDegrees:      DefaultTotalDegrees,
		DegreeIncrement:   DefaultDegreeIncrement,
		MinAttendanceRate: DefaultMinAttendanceRate,
		MinQualityRating:  DefaultMinQualityRating,
		MinRepetitions:    DefaultMinRepetitions,
		MinMonthsEnrolled: DefaultMinMonthsEnrolled,
	}
}

// Validate rejects configurations the calculator cannot work with.
func (r Requirements) Validate() error {
	var errs []error
	if r.CourseID == "" {
		errs = append(errs, errors.New("course id is required"))
	}
	if r.TotalDegrees < 1 {
		errs = append(errs, fmt.Errorf("total degrees %d must be at least 1", r.TotalDegrees))
	}
	if r.DegreeIncrement <= 0 || r.DegreeIncrement > 100 {
		errs = append(errs, fmt.Errorf("degree increment %.2f must be in (0, 100]", r.DegreeIncrement))
	}
	if r.MinAttendanceRate < 0 || r.MinAttendanceRate > 100 {
		errs = append(errs, fmt.Errorf("minimum attendance rate %.2f must be in [0, 100]", r.MinAttendanceRate))
	}
	if r.MinQualityRating < 0 || r.MinQualityRating > MaxQualityRating {
		errs = append(errs, fmt.Errorf("minimum quality rating %.2f must be in [0, %d]", r.MinQualityRating, MaxQualityRating))
	}
	if r.MinRepetitions < 0 || r.MinMonthsEnrolled < 0 {
		errs = append(errs, errors.New("minimum repetitions and months cannot be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return shared.WrapError("graduation", "ValidateRequirements", shared.ErrInvalidInput,
		"invalid graduation requirements", errors.Join(errs...))
}
