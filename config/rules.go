package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

//go:embed tables.yaml
var embeddedTables []byte

//go:embed achievements.yaml
var embeddedCatalog []byte

// Rules bundles the numeric tables, the evaluation schedule and the default
// achievement catalog the engine is configured with.
type Rules struct {
	Tables   *gamification.Tables
	Schedule []gamification.ScheduledEvaluation
	Catalog  []gamification.AchievementDefinition
}

// ══════════════════════════════════════════════════════════════════════════════
// YAML DOCUMENTS
// ══════════════════════════════════════════════════════════════════════════════

type tablesDoc struct {
	Levels            []int                         `yaml:"levels"`
	XPMultipliers     map[string]float64            `yaml:"xp_multipliers"`
	MetricAdjustments map[string]genderAdjustmentDoc `yaml:"metric_adjustments"`
	StreakTiers       []streakTierDoc               `yaml:"streak_tiers"`
	Proficiency       []proficiencyDoc              `yaml:"proficiency"`
	CheckIn           checkInDoc                    `yaml:"check_in"`
	Evaluation        evaluationDoc                 `yaml:"evaluation"`
	EarlyBirdHour     int                           `yaml:"early_bird_hour"`
	PerfectMonthDays  int                           `yaml:"perfect_month_days"`
	Schedule          []scheduleDoc                 `yaml:"schedule"`
}

type genderAdjustmentDoc struct {
	Male   float64 `yaml:"male"`
	Female float64 `yaml:"female"`
}

type streakTierDoc struct {
	MinDays    int     `yaml:"min_days"`
	Multiplier float64 `yaml:"multiplier"`
}

type proficiencyDoc struct {
	MinAccuracy float64 `yaml:"min_accuracy"`
	Level       string  `yaml:"level"`
}

type checkInDoc struct {
	Base              int `yaml:"base"`
	PerTechnique      int `yaml:"per_technique"`
	FirstOfMonthBonus int `yaml:"first_of_month_bonus"`
}

type evaluationDoc struct {
	BaseByType     map[string]int `yaml:"base_by_type"`
	LessonsPerTier int            `yaml:"lessons_per_tier"`
	ScoreBaseline  float64        `yaml:"score_baseline"`
	ScoreStep      float64        `yaml:"score_step"`
	BonusPerStep   int            `yaml:"bonus_per_step"`
	PassBonus      int            `yaml:"pass_bonus"`
	Minimum        int            `yaml:"minimum"`
}

type scheduleDoc struct {
	Name         string  `yaml:"name"`
	Lesson       int     `yaml:"lesson"`
	Type         string  `yaml:"type"`
	PassingScore float64 `yaml:"passing_score"`
}

type achievementDoc struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Criteria    struct {
		Type              string `yaml:"type"`
		Target            int    `yaml:"target"`
		TechniqueCategory string `yaml:"technique_category"`
	} `yaml:"criteria"`
	XPReward int    `yaml:"xp_reward"`
	Rarity   string `yaml:"rarity"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSING
// ══════════════════════════════════════════════════════════════════════════════

// ParseTables decodes and validates a tables document.
func ParseTables(data []byte) (*gamification.Tables, []gamification.ScheduledEvaluation, error) {
	var doc tablesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode tables: %w", err)
	}

	t := &gamification.Tables{
		LevelThresholds:   doc.Levels,
		XPMultipliers:     make(map[student.Category]float64, len(doc.XPMultipliers)),
		MetricAdjustments: make(map[student.Category]gamification.GenderAdjustment, len(doc.MetricAdjustments)),
		CheckIn: gamification.CheckInRewards{
			Base:              doc.CheckIn.Base,
			PerTechnique:      doc.CheckIn.PerTechnique,
			FirstOfMonthBonus: doc.CheckIn.FirstOfMonthBonus,
		},
		Evaluation: gamification.EvaluationRewards{
			BaseByType:     make(map[gamification.EvaluationType]int, len(doc.Evaluation.BaseByType)),
			LessonsPerTier: doc.Evaluation.LessonsPerTier,
			ScoreBaseline:  doc.Evaluation.ScoreBaseline,
			ScoreStep:      doc.Evaluation.ScoreStep,
			BonusPerStep:   doc.Evaluation.BonusPerStep,
			PassBonus:      doc.Evaluation.PassBonus,
			Minimum:        doc.Evaluation.Minimum,
		},
		EarlyBirdHour:    doc.EarlyBirdHour,
		PerfectMonthDays: doc.PerfectMonthDays,
	}

	var errs []error
	for name, m := range doc.XPMultipliers {
		c, err := student.ParseCategory(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("xp_multipliers: unknown category %q", name))
			continue
		}
		t.XPMultipliers[c] = m
	}
	for name, a := range doc.MetricAdjustments {
		c, err := student.ParseCategory(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("metric_adjustments: unknown category %q", name))
			continue
		}
		t.MetricAdjustments[c] = gamification.GenderAdjustment{Male: a.Male, Female: a.Female}
	}
	for _, s := range doc.StreakTiers {
		t.StreakTiers = append(t.StreakTiers, gamification.StreakTier{MinDays: s.MinDays, Multiplier: s.Multiplier})
	}
	for _, p := range doc.Proficiency {
		t.Proficiency = append(t.Proficiency, gamification.ProficiencyBoundary{
			MinAccuracy: p.MinAccuracy,
			Level:       gamification.ProficiencyLevel(p.Level),
		})
	}
	for name, base := range doc.Evaluation.BaseByType {
		typ := gamification.EvaluationType(name)
		if !typ.IsValid() {
			errs = append(errs, fmt.Errorf("evaluation.base_by_type: unknown type %q", name))
			continue
		}
		t.Evaluation.BaseByType[typ] = base
	}

	schedule := make([]gamification.ScheduledEvaluation, 0, len(doc.Schedule))
	for _, s := range doc.Schedule {
		typ := gamification.EvaluationType(s.Type)
		if !typ.IsValid() || s.Lesson <= 0 {
			errs = append(errs, fmt.Errorf("schedule: invalid entry %q", s.Name))
			continue
		}
		schedule = append(schedule, gamification.ScheduledEvaluation{
			Name:         s.Name,
			LessonNumber: s.Lesson,
			Type:         typ,
			PassingScore: s.PassingScore,
		})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	if err := t.Normalize(); err != nil {
		return nil, nil, err
	}
	return t, schedule, nil
}

// ParseCatalog decodes and validates an achievement catalog document.
func ParseCatalog(data []byte) ([]gamification.AchievementDefinition, error) {
	var docs []achievementDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	out := make([]gamification.AchievementDefinition, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		def := gamification.AchievementDefinition{
			Key:         d.Key,
			Name:        d.Name,
			Description: d.Description,
			Category:    gamification.AchievementCategory(d.Category),
			Criteria: gamification.Criteria{
				Type:              gamification.CriteriaType(d.Criteria.Type),
				Target:            d.Criteria.Target,
				TechniqueCategory: d.Criteria.TechniqueCategory,
			},
			XPReward: d.XPReward,
			Rarity:   gamification.Rarity(d.Rarity),
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("achievement %q: %w", d.Key, err)
		}
		if seen[d.Key] {
			return nil, fmt.Errorf("achievement %q: duplicate key", d.Key)
		}
		seen[d.Key] = true
		out = append(out, def)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// LoadRules reads the tables document at tablesPath, or the embedded one when
// tablesPath is empty. An unreadable or invalid document falls back to the
// built-in defaults with a warning.
func LoadRules(tablesPath string, log *logger.Logger) *Rules {
	if log == nil {
		log = logger.Nop()
	}
	rules := &Rules{}

	data := embeddedTables
	if tablesPath != "" {
		b, err := os.ReadFile(tablesPath)
		if err != nil {
			log.Warn("tables file unreadable, using embedded tables", logger.String("path", tablesPath), logger.Err(err))
		} else {
			data = b
		}
	}

	tables, schedule, err := ParseTables(data)
	if err != nil {
		log.Warn("invalid tables document, using built-in defaults", logger.Err(err))
		tables = gamification.DefaultTables()
		_ = tables.Normalize()
		schedule = gamification.DefaultSchedule()
	}
	if len(schedule) == 0 {
		schedule = gamification.DefaultSchedule()
	}
	rules.Tables = tables
	rules.Schedule = schedule

	catalog, err := ParseCatalog(embeddedCatalog)
	if err != nil {
		log.Warn("invalid achievement catalog, using built-in catalog", logger.Err(err))
		catalog = gamification.DefaultCatalog()
	}
	rules.Catalog = catalog

	return rules
}
