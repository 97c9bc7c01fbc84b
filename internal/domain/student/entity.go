package student

import (
	"errors"
	"strings"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Category is the student's demographic band. It drives the XP multiplier and
// the challenge metric adjustment.
type Category string

const (
	// CategoryAdult is the standard adult band.
	CategoryAdult Category = "ADULT"
	// CategoryMaster1 is the first master age band.
	CategoryMaster1 Category = "MASTER_1"
	// CategoryMaster2 is the second master age band.
	CategoryMaster2 Category = "MASTER_2"
	// CategoryMaster3 is the third master age band.
	CategoryMaster3 Category = "MASTER_3"
	// CategoryHero1 is the youngest youth band.
	CategoryHero1 Category = "HERO_1"
	// CategoryHero2 is the middle youth band.
	CategoryHero2 Category = "HERO_2"
	// CategoryHero3 is the oldest youth band.
	CategoryHero3 Category = "HERO_3"
)

// AllCategories lists every known category in display order.
func AllCategories() []Category {
	return []Category{
		CategoryAdult,
		CategoryMaster1, CategoryMaster2, CategoryMaster3,
		CategoryHero1, CategoryHero2, CategoryHero3,
	}
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryAdult, CategoryMaster1, CategoryMaster2, CategoryMaster3,
		CategoryHero1, CategoryHero2, CategoryHero3:
		return true
	default:
		return false
	}
}

// ParseCategory normalizes user input ("master_1", " Hero_2 ") into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", shared.ErrInvalidCategory
	}
	return c, nil
}

// Gender selects the column of the metric adjustment table.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// IsFemale reports whether the female column applies. Any other value,
// including empty, uses the male column.
func (g Gender) IsFemale() bool {
	return Gender(strings.ToUpper(string(g))) == GenderFemale
}

// XP represents experience points.
type XP int

// IsValid checks that XP is non-negative.
func (x XP) IsValid() bool {
	return x >= 0
}

// Int returns the raw value.
func (x XP) Int() int {
	return int(x)
}

// Level is derived from XP through a LevelResolver. Level 1 is the floor.
type Level int

// Int returns the raw value.
func (l Level) Int() int {
	return int(l)
}

// LevelResolver maps a cumulative XP total to a level.
type LevelResolver interface {
	LevelFor(totalXP int) int
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is the authoritative per-student progression record.
type Student struct {
	// ID is the internal identifier (UUID string).
	ID string

	// OrganizationID scopes the achievement catalog and leaderboard.
	OrganizationID string

	// Name is the display name.
	Name string

	// Category drives fairness multipliers.
	Category Category

	// Gender selects the metric adjustment column.
	Gender Gender

	// ReferredBy is the student who referred this one, if any.
	ReferredBy string

	// TotalXP never decreases.
	TotalXP XP

	// GlobalLevel is always LevelFor(TotalXP).
	GlobalLevel Level

	// CurrentStreak counts activity days with grace tolerance.
	CurrentStreak int

	// LongestStreak is the maximum CurrentStreak ever reached.
	LongestStreak int

	// LastActivityDate is nil until the first recorded activity.
	LastActivityDate *time.Time

	// Version increments on every SaveProgress. A save carrying a stale
	// Version fails with shared.ErrConcurrentModification.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStudentParams holds the parameters for creating a student.
type NewStudentParams struct {
	ID             string
	OrganizationID string
	Name           string
	Category       Category
	Gender         Gender
	ReferredBy     string
}

// NewStudent creates a student at zero XP and level 1.
func NewStudent(params NewStudentParams) (*Student, error) {
	if params.ID == "" {
		return nil, errors.New("student id is required")
	}
	if params.OrganizationID == "" {
		return nil, errors.New("organization id is required")
	}
	if params.Category == "" {
		params.Category = CategoryAdult
	}
	if !params.Category.IsValid() {
		return nil, shared.ErrInvalidCategory
	}

	now := time.Now().UTC()
	return &Student{
		ID:             params.ID,
		OrganizationID: params.OrganizationID,
		Name:           strings.TrimSpace(params.Name),
		Category:       params.Category,
		Gender:         params.Gender,
		ReferredBy:     params.ReferredBy,
		TotalXP:        0,
		GlobalLevel:    1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ApplyXP adds an already category-adjusted amount and recomputes the level.
// Returns whether the level increased.
func (s *Student) ApplyXP(amount int, levels LevelResolver) (bool, error) {
	if amount < 0 {
		return false, shared.ErrNegativeXP
	}
	old := s.GlobalLevel
	s.TotalXP += XP(amount)
	s.GlobalLevel = Level(levels.LevelFor(int(s.TotalXP)))
	s.UpdatedAt = time.Now().UTC()
	return s.GlobalLevel > old, nil
}

// ApplyStreak stores the outcome of a streak computation.
func (s *Student) ApplyStreak(current, longest int, activityDate time.Time) {
	s.CurrentStreak = current
	if longest > s.LongestStreak {
		s.LongestStreak = longest
	}
	d := activityDate
	s.LastActivityDate = &d
	s.UpdatedAt = time.Now().UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentPaused    EnrollmentStatus = "PAUSED"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment is the student × course record with a course-scoped XP mirror.
type Enrollment struct {
	ID        string
	StudentID string
	CourseID  string
	Status    EnrollmentStatus

	// Category and Gender are copied from the student at enrollment time
	// and used for challenge metric adjustment.
	Category Category
	Gender   Gender

	CurrentXP    XP
	CurrentLevel Level

	// AttendanceRate is present records over all recorded sessions, in [0, 1].
	AttendanceRate float64

	// LessonsCompleted counts distinct lesson numbers attended.
	LessonsCompleted int

	EnrolledAt  time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// IsActive reports whether XP awards should mirror into this enrollment.
func (e *Enrollment) IsActive() bool {
	return e.Status == EnrollmentActive
}

// ApplyXP mirrors a ledger delta into the course-scoped counters.
func (e *Enrollment) ApplyXP(amount int, levels LevelResolver) {
	if amount < 0 {
		return
	}
	e.CurrentXP += XP(amount)
	e.CurrentLevel = Level(levels.LevelFor(int(e.CurrentXP)))
	e.UpdatedAt = time.Now().UTC()
}

// SetAttendance stores the distinct-lesson count and the attendance rate,
// clamped to [0, 1].
func (e *Enrollment) SetAttendance(distinctLessons int, rate float64) {
	e.LessonsCompleted = distinctLessons
	switch {
	case rate < 0:
		rate = 0
	case rate > 1:
		rate = 1
	}
	e.AttendanceRate = rate
	e.UpdatedAt = time.Now().UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE
// ══════════════════════════════════════════════════════════════════════════════

// Course describes the size of a curriculum for completion math.
type Course struct {
	ID             string
	OrganizationID string
	Name           string

	// Belt is the belt the course leads to.
	Belt string

	TotalLessons int

	// RequiredTechniques is the number of techniques the curriculum expects
	// to reach PROFICIENT.
	RequiredTechniques int
}
