// Package jobs contains the scheduled maintenance jobs of the engine.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dojo-hub/progression-engine/internal/application/query"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD RANKING JOB
// Replaces each organization's ranking with the top students of the store.
// Repairs awards the projector missed while the cache was unreachable.
// ══════════════════════════════════════════════════════════════════════════════

// RankingRebuilder replaces an organization ranking.
type RankingRebuilder interface {
	Rebuild(ctx context.Context, organizationID string, entries []query.RankedStudent) error
}

// RebuildRankingJob rebuilds the rankings of a fixed set of organizations.
type RebuildRankingJob struct {
	students      student.Repository
	ranking       RankingRebuilder
	organizations []string
	size          int
	log           *logger.Logger
}

// NewRebuildRankingJob creates the job. size bounds the number of students
// kept per organization.
func NewRebuildRankingJob(students student.Repository, ranking RankingRebuilder, organizations []string, size int, log *logger.Logger) *RebuildRankingJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RebuildRankingJob{
		students:      students,
		ranking:       ranking,
		organizations: organizations,
		size:          size,
		log:           log.With(logger.Component("rebuild_ranking")),
	}
}

// Name implements scheduler.Job.
func (j *RebuildRankingJob) Name() string { return "rebuild_ranking" }

// Run rebuilds every organization. One failing organization does not stop
// the others; the joined error is returned.
func (j *RebuildRankingJob) Run(ctx context.Context) error {
	var errs []error
	for _, org := range j.organizations {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.RebuildOrganization(ctx, org)
		if err != nil {
			j.log.Warn("ranking rebuild failed", logger.OrganizationID(org), logger.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", org, err))
			continue
		}
		j.log.Info("ranking rebuilt", logger.OrganizationID(org), logger.Int("entries", n))
	}
	return errors.Join(errs...)
}

// RebuildOrganization rebuilds one organization and returns the entry count.
func (j *RebuildRankingJob) RebuildOrganization(ctx context.Context, organizationID string) (int, error) {
	if organizationID == "" {
		return 0, errors.New("organization id is required")
	}
	top, err := j.students.ListTopByXP(ctx, organizationID, j.size)
	if err != nil {
		return 0, fmt.Errorf("list students: %w", err)
	}
	entries := make([]query.RankedStudent, 0, len(top))
	for _, s := range top {
		entries = append(entries, query.RankedStudent{StudentID: s.ID, TotalXP: int(s.TotalXP)})
	}
	if err := j.ranking.Rebuild(ctx, organizationID, entries); err != nil {
		return 0, fmt.Errorf("rebuild ranking: %w", err)
	}
	return len(entries), nil
}
