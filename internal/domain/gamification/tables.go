// Package gamification holds the pure rules of the progression engine:
// threshold tables, metric adjustment, streaks, achievements, challenges,
// evaluations and technique proficiency. Nothing here performs I/O; the
// repository interfaces at the bottom of the package are implemented in
// infrastructure/persistence.
package gamification

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// THRESHOLD TABLES
// ══════════════════════════════════════════════════════════════════════════════

// GenderAdjustment is one row of the metric adjustment table.
type GenderAdjustment struct {
	Male   float64
	Female float64
}

// StreakTier maps a minimum streak length to an XP multiplier.
type StreakTier struct {
	MinDays    int
	Multiplier float64
}

// ProficiencyBoundary is the lowest accuracy that still earns Level.
type ProficiencyBoundary struct {
	MinAccuracy float64
	Level       ProficiencyLevel
}

// CheckInRewards configures the XP granted for a check-in.
type CheckInRewards struct {
	// Base is multiplied by the streak multiplier and floored.
	Base int
	// PerTechnique is added for each technique practiced.
	PerTechnique int
	// FirstOfMonthBonus is added on the student's first check-in of a month.
	FirstOfMonthBonus int
}

// EvaluationRewards configures evaluation XP:
// base(type) × (lesson/LessonsPerTier + 1) + bonus + pass bonus, floored at Minimum.
type EvaluationRewards struct {
	BaseByType     map[EvaluationType]int
	LessonsPerTier int
	ScoreBaseline  float64
	ScoreStep      float64
	BonusPerStep   int
	PassBonus      int
	Minimum        int
}

// Tables is the immutable configuration of every numeric rule.
// Build it with DefaultTables or from YAML, then call Normalize once.
type Tables struct {
	// LevelThresholds[i] is the cumulative XP needed for level i+1.
	LevelThresholds []int

	XPMultipliers     map[student.Category]float64
	MetricAdjustments map[student.Category]GenderAdjustment

	// StreakTiers are kept sorted by MinDays descending.
	StreakTiers []StreakTier

	// Proficiency boundaries are kept sorted by MinAccuracy descending.
	Proficiency []ProficiencyBoundary

	CheckIn    CheckInRewards
	Evaluation EvaluationRewards

	// EarlyBirdHour is the local hour before which a check-in counts as early.
	EarlyBirdHour int

	// PerfectMonthDays caps the attendance needed for perfect_month.
	PerfectMonthDays int
}

// DefaultTables returns the academy's standard tables.
func DefaultTables() *Tables {
	t := &Tables{
		LevelThresholds: []int{
			0, 100, 250, 450, 700, 1000, 1350, 1750, 2200, 2700,
			3250, 3850, 4500, 5200, 5950, 6750, 7600, 8500, 9450, 10450,
		},
		XPMultipliers: map[student.Category]float64{
			student.CategoryAdult:   1.0,
			student.CategoryMaster1: 1.1,
			student.CategoryMaster2: 1.2,
			student.CategoryMaster3: 1.3,
			student.CategoryHero1:   0.7,
			student.CategoryHero2:   0.8,
			student.CategoryHero3:   0.9,
		},
		MetricAdjustments: map[student.Category]GenderAdjustment{
			student.CategoryAdult:   {Male: 1.0, Female: 0.8},
			student.CategoryMaster1: {Male: 0.9, Female: 0.72},
			student.CategoryMaster2: {Male: 0.8, Female: 0.64},
			student.CategoryMaster3: {Male: 0.7, Female: 0.56},
			student.CategoryHero1:   {Male: 0.6, Female: 0.48},
			student.CategoryHero2:   {Male: 0.7, Female: 0.56},
			student.CategoryHero3:   {Male: 0.8, Female: 0.64},
		},
		StreakTiers: []StreakTier{
			{MinDays: 100, Multiplier: 3.0},
			{MinDays: 60, Multiplier: 2.5},
			{MinDays: 30, Multiplier: 2.0},
			{MinDays: 7, Multiplier: 1.5},
		},
		Proficiency: []ProficiencyBoundary{
			{MinAccuracy: 95, Level: ProficiencyMastered},
			{MinAccuracy: 85, Level: ProficiencyExpert},
			{MinAccuracy: 75, Level: ProficiencyProficient},
			{MinAccuracy: 65, Level: ProficiencyCompetent},
			{MinAccuracy: 50, Level: ProficiencyPracticing},
		},
		CheckIn: CheckInRewards{
			Base:              50,
			PerTechnique:      10,
			FirstOfMonthBonus: 25,
		},
		Evaluation: EvaluationRewards{
			BaseByType: map[EvaluationType]int{
				EvaluationProgress:  75,
				EvaluationTechnique: 100,
				EvaluationSparring:  125,
				EvaluationFitness:   50,
				EvaluationKnowledge: 50,
				EvaluationGrading:   200,
			},
			LessonsPerTier: 8,
			ScoreBaseline:  70,
			ScoreStep:      5,
			BonusPerStep:   10,
			PassBonus:      50,
			Minimum:        25,
		},
		EarlyBirdHour:    8,
		PerfectMonthDays: 20,
	}
	return t
}

// Normalize sorts the tier lists and validates the whole table set.
func (t *Tables) Normalize() error {
	sort.SliceStable(t.StreakTiers, func(i, j int) bool {
		return t.StreakTiers[i].MinDays > t.StreakTiers[j].MinDays
	})
	sort.SliceStable(t.Proficiency, func(i, j int) bool {
		return t.Proficiency[i].MinAccuracy > t.Proficiency[j].MinAccuracy
	})
	return t.Validate()
}

// Validate checks table consistency.
func (t *Tables) Validate() error {
	var errs []error

	if len(t.LevelThresholds) == 0 {
		errs = append(errs, errors.New("level thresholds are empty"))
	} else {
		if t.LevelThresholds[0] != 0 {
			errs = append(errs, errors.New("level 1 threshold must be 0"))
		}
		for i := 1; i < len(t.LevelThresholds); i++ {
			if t.LevelThresholds[i] <= t.LevelThresholds[i-1] {
				errs = append(errs, fmt.Errorf("level %d threshold %d is not above level %d", i+1, t.LevelThresholds[i], i))
			}
		}
	}
	for c, m := range t.XPMultipliers {
		if m <= 0 {
			errs = append(errs, fmt.Errorf("xp multiplier for %s must be positive", c))
		}
	}
	for c, a := range t.MetricAdjustments {
		if a.Male <= 0 || a.Female <= 0 {
			errs = append(errs, fmt.Errorf("metric adjustment for %s must be positive", c))
		}
	}
	for _, s := range t.StreakTiers {
		if s.MinDays <= 0 || s.Multiplier < 1 {
			errs = append(errs, fmt.Errorf("invalid streak tier %+v", s))
		}
	}
	for _, p := range t.Proficiency {
		if p.MinAccuracy < 0 || p.MinAccuracy > 100 || !p.Level.IsValid() {
			errs = append(errs, fmt.Errorf("invalid proficiency boundary %+v", p))
		}
	}
	if t.Evaluation.LessonsPerTier <= 0 {
		errs = append(errs, errors.New("evaluation lessons per tier must be positive"))
	}
	if t.Evaluation.ScoreStep <= 0 {
		errs = append(errs, errors.New("evaluation score step must be positive"))
	}
	if t.EarlyBirdHour < 0 || t.EarlyBirdHour > 23 {
		errs = append(errs, errors.New("early bird hour must be within 0-23"))
	}

	return errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Levels
// ─────────────────────────────────────────────────────────────────────────────

// LevelFor returns the highest level whose threshold is <= totalXP. Level 1 is the floor.
func (t *Tables) LevelFor(totalXP int) int {
	for i := len(t.LevelThresholds) - 1; i >= 1; i-- {
		if totalXP >= t.LevelThresholds[i] {
			return i + 1
		}
	}
	return 1
}

// MaxLevel returns the top level of the table.
func (t *Tables) MaxLevel() int {
	return len(t.LevelThresholds)
}

// XPForNextLevel returns how much XP is missing for the next level, 0 at max level.
func (t *Tables) XPForNextLevel(totalXP int) int {
	level := t.LevelFor(totalXP)
	if level >= t.MaxLevel() {
		return 0
	}
	return t.LevelThresholds[level] - totalXP
}

// ProgressToNextLevel returns the percentage (0-100) of the current level
// span already covered; 100 at max level.
func (t *Tables) ProgressToNextLevel(totalXP int) float64 {
	level := t.LevelFor(totalXP)
	if level >= t.MaxLevel() {
		return 100
	}
	lo := t.LevelThresholds[level-1]
	hi := t.LevelThresholds[level]
	p := float64(totalXP-lo) / float64(hi-lo) * 100
	return math.Min(math.Max(p, 0), 100)
}

// ─────────────────────────────────────────────────────────────────────────────
// Multipliers
// ─────────────────────────────────────────────────────────────────────────────

// XPMultiplier returns the category multiplier; unknown categories get 1.0.
func (t *Tables) XPMultiplier(c student.Category) float64 {
	if m, ok := t.XPMultipliers[c]; ok {
		return m
	}
	return 1.0
}

// AdjustXP applies the category multiplier and rounds to the nearest integer.
func (t *Tables) AdjustXP(c student.Category, raw int) int {
	return int(math.Round(float64(raw) * t.XPMultiplier(c)))
}

// StreakMultiplier returns the multiplier of the highest tier reached.
func (t *Tables) StreakMultiplier(streak int) float64 {
	for _, tier := range t.StreakTiers {
		if streak >= tier.MinDays {
			return tier.Multiplier
		}
	}
	return 1.0
}

// ProficiencyFor buckets an accuracy score.
func (t *Tables) ProficiencyFor(accuracy float64) ProficiencyLevel {
	for _, b := range t.Proficiency {
		if accuracy >= b.MinAccuracy {
			return b.Level
		}
	}
	return ProficiencyLearning
}

// MetricFactor returns the category × gender adjustment. Unknown categories
// get 1.0; anything other than female uses the male column.
func (t *Tables) MetricFactor(c student.Category, g student.Gender) float64 {
	a, ok := t.MetricAdjustments[c]
	if !ok {
		return 1.0
	}
	if g.IsFemale() {
		return a.Female
	}
	return a.Male
}

// CheckInXP computes the raw (pre-category) XP of a check-in.
func (t *Tables) CheckInXP(streakMultiplier float64, techniquesPracticed int, firstOfMonth bool) int {
	xp := int(math.Floor(float64(t.CheckIn.Base) * streakMultiplier))
	if techniquesPracticed > 0 {
		xp += techniquesPracticed * t.CheckIn.PerTechnique
	}
	if firstOfMonth {
		xp += t.CheckIn.FirstOfMonthBonus
	}
	return xp
}

// EvaluationXP computes the raw reward of an evaluation.
func (t *Tables) EvaluationXP(typ EvaluationType, lessonNumber int, overallScore float64, passed bool) int {
	r := t.Evaluation
	tier := lessonNumber/r.LessonsPerTier + 1
	if lessonNumber < 0 {
		tier = 1
	}
	base := r.BaseByType[typ] * tier
	bonus := int(math.Floor((overallScore-r.ScoreBaseline)/r.ScoreStep)) * r.BonusPerStep
	total := base + bonus
	if passed {
		total += r.PassBonus
	}
	if total < r.Minimum {
		total = r.Minimum
	}
	return total
}
