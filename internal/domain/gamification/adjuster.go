package gamification

import (
	"math"

	"github.com/dojo-hub/progression-engine/internal/domain/student"
)

// MetricAdjuster scales challenge and physical-test targets by a student's
// category and gender. Time limits are scaled by the same factor as counts.
type MetricAdjuster struct {
	tables *Tables
}

// NewMetricAdjuster creates an adjuster backed by t.
func NewMetricAdjuster(t *Tables) MetricAdjuster {
	return MetricAdjuster{tables: t}
}

// Factor returns the multiplier applied to targets.
func (a MetricAdjuster) Factor(c student.Category, g student.Gender) float64 {
	return a.tables.MetricFactor(c, g)
}

// Adjust returns round(base × factor).
func (a MetricAdjuster) Adjust(base int, c student.Category, g student.Gender) int {
	return int(math.Round(float64(base) * a.Factor(c, g)))
}

// AdjustOptional adjusts a target that may be absent.
func (a MetricAdjuster) AdjustOptional(base *int, c student.Category, g student.Gender) *int {
	if base == nil {
		return nil
	}
	v := a.Adjust(*base, c, g)
	return &v
}
