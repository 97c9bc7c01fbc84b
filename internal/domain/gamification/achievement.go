package gamification

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// AchievementCategory groups criteria.
type AchievementCategory string

const (
	CategoryAttendance  AchievementCategory = "attendance"
	CategoryTechnique   AchievementCategory = "technique"
	CategoryProgression AchievementCategory = "progression"
	CategoryChallenge   AchievementCategory = "challenge"
	CategorySocial      AchievementCategory = "social"
	CategorySpecial     AchievementCategory = "special"
)

// Rarity is presentational only.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// CriteriaType is the tag of a criteria variant.
type CriteriaType string

const (
	CriteriaTotalClasses        CriteriaType = "total_classes"
	CriteriaConsecutiveDays     CriteriaType = "consecutive_days"
	CriteriaMonthlyAttendance   CriteriaType = "monthly_attendance"
	CriteriaTechniquesMastered  CriteriaType = "techniques_mastered"
	CriteriaCategoryMastery     CriteriaType = "category_mastery"
	CriteriaLevelReached        CriteriaType = "level_reached"
	CriteriaXPEarned            CriteriaType = "xp_earned"
	CriteriaCourseCompleted     CriteriaType = "course_completed"
	CriteriaChallengesCompleted CriteriaType = "challenges_completed"
	CriteriaPerfectWeek         CriteriaType = "perfect_week"
	CriteriaReferrals           CriteriaType = "referrals"
	CriteriaFirstClass          CriteriaType = "first_class"
	CriteriaPerfectMonth        CriteriaType = "perfect_month"
	CriteriaEarlyBird           CriteriaType = "early_bird"
)

// criteriaCategories is the closed set of variants and the category each belongs to.
var criteriaCategories = map[CriteriaType]AchievementCategory{
	CriteriaTotalClasses:        CategoryAttendance,
	CriteriaConsecutiveDays:     CategoryAttendance,
	CriteriaMonthlyAttendance:   CategoryAttendance,
	CriteriaTechniquesMastered:  CategoryTechnique,
	CriteriaCategoryMastery:     CategoryTechnique,
	CriteriaLevelReached:        CategoryProgression,
	CriteriaXPEarned:            CategoryProgression,
	CriteriaCourseCompleted:     CategoryProgression,
	CriteriaChallengesCompleted: CategoryChallenge,
	CriteriaPerfectWeek:         CategoryChallenge,
	CriteriaReferrals:           CategorySocial,
	CriteriaFirstClass:          CategorySpecial,
	CriteriaPerfectMonth:        CategorySpecial,
	CriteriaEarlyBird:           CategorySpecial,
}

// Criteria is the typed unlock condition of a definition.
type Criteria struct {
	Type CriteriaType

	// Target is the threshold for counting variants. Values below 1 mean 1.
	Target int

	// TechniqueCategory is used by category_mastery only.
	TechniqueCategory string
}

func (c Criteria) target() int {
	if c.Target < 1 {
		return 1
	}
	return c.Target
}

// AchievementDefinition is an immutable, organization-scoped catalog entry.
type AchievementDefinition struct {
	ID             string
	OrganizationID string

	// Key is a stable slug used to seed catalogs idempotently.
	Key string

	Name        string
	Description string
	Category    AchievementCategory
	Criteria    Criteria
	XPReward    int
	Rarity      Rarity

	// ExpiresAt limits seasonal achievements; nil never expires.
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// ActiveAt reports whether the definition can still be unlocked at now.
func (d *AchievementDefinition) ActiveAt(now time.Time) bool {
	return d.ExpiresAt == nil || now.Before(*d.ExpiresAt)
}

// Validate checks that the criteria variant exists and belongs to the category.
func (d *AchievementDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return shared.InvalidInput("gamification", "ValidateAchievement", "name is required")
	}
	if d.XPReward < 0 {
		return shared.InvalidInput("gamification", "ValidateAchievement", "xp reward cannot be negative")
	}
	cat, ok := criteriaCategories[d.Criteria.Type]
	if !ok {
		return shared.WrapError("gamification", "ValidateAchievement", shared.ErrInvalidInput,
			"unknown criteria type", fmt.Errorf("%q", d.Criteria.Type))
	}
	if cat != d.Category {
		return shared.InvalidInput("gamification", "ValidateAchievement",
			fmt.Sprintf("criteria %s belongs to %s, not %s", d.Criteria.Type, cat, d.Category))
	}
	if d.Criteria.Type == CriteriaCategoryMastery && d.Criteria.TechniqueCategory == "" {
		return shared.InvalidInput("gamification", "ValidateAchievement", "category_mastery needs a technique category")
	}
	return nil
}

// AchievementUnlock is the idempotency record of a grant.
type AchievementUnlock struct {
	ID            string
	StudentID     string
	AchievementID string
	UnlockedAt    time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// RULE EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentState is the aggregate view the rules read. It is loaded after the
// triggering mutation so rules see post-update values.
type StudentState struct {
	StudentID string
	TotalXP   int
	Level     int

	// CheckIns are the times of present attendance records, all courses.
	CheckIns []time.Time

	Techniques       []TechniqueProgress
	Attempts         []ChallengeAttempt
	CompletedCourses int
	Referrals        int

	// Now anchors month-relative rules.
	Now time.Time
}

// EventContext describes the mutation that triggered an evaluation pass.
type EventContext struct {
	Source     SourceType
	Amount     int
	NewLevel   int
	NewTotalXP int
	LeveledUp  bool
}

// RuleEvaluator dispatches criteria variants.
type RuleEvaluator struct {
	tables *Tables
}

// NewRuleEvaluator creates an evaluator using the tables' time-of-day settings.
func NewRuleEvaluator(t *Tables) RuleEvaluator {
	return RuleEvaluator{tables: t}
}

// Evaluate reports whether def is satisfied. A malformed definition returns
// false with an error so callers can log it and move on.
func (r RuleEvaluator) Evaluate(def *AchievementDefinition, st *StudentState, ec EventContext) (bool, error) {
	cat, known := criteriaCategories[def.Criteria.Type]
	if !known {
		return false, shared.WrapError("gamification", "Evaluate", shared.ErrInvalidInput,
			"unknown achievement criteria type", fmt.Errorf("%s: %q", def.ID, def.Criteria.Type))
	}
	if cat != def.Category {
		return false, shared.WrapError("gamification", "Evaluate", shared.ErrInvalidInput,
			"criteria does not match category", fmt.Errorf("%s: %s in %s", def.ID, def.Criteria.Type, def.Category))
	}

	c := def.Criteria
	switch c.Type {
	// attendance
	case CriteriaTotalClasses:
		return len(st.CheckIns) >= c.target(), nil
	case CriteriaConsecutiveDays:
		return MaxConsecutiveDays(st.CheckIns) >= c.target(), nil
	case CriteriaMonthlyAttendance:
		return countSince(st.CheckIns, timeutil.StartOfMonth(st.Now)) >= c.target(), nil

	// technique
	case CriteriaTechniquesMastered:
		return countMastered(st.Techniques, "") >= c.target(), nil
	case CriteriaCategoryMastery:
		return countMastered(st.Techniques, c.TechniqueCategory) >= c.target(), nil

	// progression
	case CriteriaLevelReached:
		return max(st.Level, ec.NewLevel) >= c.target(), nil
	case CriteriaXPEarned:
		return max(st.TotalXP, ec.NewTotalXP) >= c.target(), nil
	case CriteriaCourseCompleted:
		return st.CompletedCourses >= c.target(), nil

	// challenge
	case CriteriaChallengesCompleted:
		return countCompleted(st.Attempts) >= c.target(), nil
	case CriteriaPerfectWeek:
		return hasPerfectWeek(st.Attempts), nil

	// social
	case CriteriaReferrals:
		return st.Referrals >= c.target(), nil

	// special
	case CriteriaFirstClass:
		return len(st.CheckIns) >= 1, nil
	case CriteriaPerfectMonth:
		need := min(r.tables.PerfectMonthDays, timeutil.DaysInMonth(st.Now))
		return distinctDaysSince(st.CheckIns, timeutil.StartOfMonth(st.Now)) >= need, nil
	case CriteriaEarlyBird:
		return countEarly(st.CheckIns, r.tables.EarlyBirdHour) >= c.target(), nil
	}

	return false, shared.ErrUnknownCriteria
}

// ─────────────────────────────────────────────────────────────────────────────
// Predicates
// ─────────────────────────────────────────────────────────────────────────────

// MaxConsecutiveDays returns the longest run of consecutive local calendar
// days among the check-ins. Several check-ins on one day count once.
func MaxConsecutiveDays(checkIns []time.Time) int {
	days := distinctDays(checkIns)
	if len(days) == 0 {
		return 0
	}
	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if timeutil.DaysBetween(days[i-1], days[i]) == 1 {
			run++
			best = max(best, run)
		} else {
			run = 1
		}
	}
	return best
}

// distinctDays returns sorted local day starts.
func distinctDays(checkIns []time.Time) []time.Time {
	seen := make(map[string]time.Time, len(checkIns))
	for _, t := range checkIns {
		d := timeutil.StartOfDay(t)
		seen[timeutil.FormatDate(d)] = d
	}
	days := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func countSince(checkIns []time.Time, from time.Time) int {
	n := 0
	for _, t := range checkIns {
		if !t.Before(from) {
			n++
		}
	}
	return n
}

func distinctDaysSince(checkIns []time.Time, from time.Time) int {
	n := 0
	for _, d := range distinctDays(checkIns) {
		if !d.Before(from) {
			n++
		}
	}
	return n
}

func countEarly(checkIns []time.Time, hour int) int {
	n := 0
	for _, t := range checkIns {
		if timeutil.Local(t).Hour() < hour {
			n++
		}
	}
	return n
}

func countMastered(techniques []TechniqueProgress, category string) int {
	n := 0
	for i := range techniques {
		if !techniques[i].IsMastered() {
			continue
		}
		if category != "" && !strings.EqualFold(techniques[i].TechniqueCategory, category) {
			continue
		}
		n++
	}
	return n
}

func countCompleted(attempts []ChallengeAttempt) int {
	n := 0
	for _, a := range attempts {
		if a.Completed {
			n++
		}
	}
	return n
}

// hasPerfectWeek groups attempts by the ISO week they were first submitted
// and reports whether any week has every attempt completed.
func hasPerfectWeek(attempts []ChallengeAttempt) bool {
	type tally struct{ total, completed int }
	weeks := make(map[string]*tally)
	for _, a := range attempts {
		if !a.Attempted {
			continue
		}
		k := timeutil.ISOWeekKey(a.CreatedAt)
		w, ok := weeks[k]
		if !ok {
			w = &tally{}
			weeks[k] = w
		}
		w.total++
		if a.Completed {
			w.completed++
		}
	}
	for _, w := range weeks {
		if w.total > 0 && w.completed == w.total {
			return true
		}
	}
	return false
}
