package query

import (
	"context"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/internal/domain/student"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD QUERY
// Top students of an organization by total XP. Served from the ranking when
// it has entries, otherwise from the store.
// ══════════════════════════════════════════════════════════════════════════════

// Leaderboard limits.
const (
	DefaultLeaderboardLimit = 20
	MaxLeaderboardLimit     = 100
)

// RankedStudent is one member of a ranking.
type RankedStudent struct {
	StudentID string
	TotalXP   int
}

// Ranking is a pre-sorted XP ranking per organization.
type Ranking interface {
	Top(ctx context.Context, organizationID string, limit int) ([]RankedStudent, error)
}

// LeaderboardEntry is one row of the leaderboard.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	TotalXP   int    `json:"total_xp"`
	Level     int    `json:"level"`
}

// LeaderboardHandler serves leaderboards.
type LeaderboardHandler struct {
	students student.Repository
	ranking  Ranking
	tables   *gamification.Tables
	log      *logger.Logger
}

// NewLeaderboardHandler creates a new LeaderboardHandler. ranking may be nil.
func NewLeaderboardHandler(students student.Repository, ranking Ranking, tables *gamification.Tables, log *logger.Logger) *LeaderboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LeaderboardHandler{
		students: students,
		ranking:  ranking,
		tables:   tables,
		log:      log.With(logger.Component("leaderboard")),
	}
}

// Handle returns the top limit students. Limit 0 means the default; larger
// values are capped.
func (h *LeaderboardHandler) Handle(ctx context.Context, organizationID string, limit int) ([]LeaderboardEntry, error) {
	if organizationID == "" {
		return nil, shared.InvalidInput("query", "Leaderboard", "organization_id is required")
	}
	switch {
	case limit < 0:
		return nil, shared.InvalidInput("query", "Leaderboard", "limit cannot be negative")
	case limit == 0:
		limit = DefaultLeaderboardLimit
	case limit > MaxLeaderboardLimit:
		limit = MaxLeaderboardLimit
	}

	if entries := h.fromRanking(ctx, organizationID, limit); len(entries) > 0 {
		return entries, nil
	}

	top, err := h.students.ListTopByXP(ctx, organizationID, limit)
	if err != nil {
		return nil, shared.WrapError("query", "Leaderboard", kindOf(err), "failed to get leaderboard", err)
	}
	entries := make([]LeaderboardEntry, 0, len(top))
	for i, s := range top {
		entries = append(entries, LeaderboardEntry{
			Rank:      i + 1,
			StudentID: s.ID,
			Name:      s.Name,
			TotalXP:   int(s.TotalXP),
			Level:     int(s.GlobalLevel),
		})
	}
	return entries, nil
}

// fromRanking reads the ranking and resolves names. Any ranking failure
// yields nil so the store answers instead.
func (h *LeaderboardHandler) fromRanking(ctx context.Context, organizationID string, limit int) []LeaderboardEntry {
	if h.ranking == nil {
		return nil
	}
	ranked, err := h.ranking.Top(ctx, organizationID, limit)
	if err != nil {
		h.log.Warn("ranking unavailable, falling back to store",
			logger.OrganizationID(organizationID), logger.Err(err))
		return nil
	}

	entries := make([]LeaderboardEntry, 0, len(ranked))
	for i, r := range ranked {
		e := LeaderboardEntry{
			Rank:      i + 1,
			StudentID: r.StudentID,
			TotalXP:   r.TotalXP,
			Level:     h.tables.LevelFor(r.TotalXP),
		}
		if s, err := h.students.GetByID(ctx, r.StudentID); err == nil {
			e.Name = s.Name
		}
		entries = append(entries, e)
	}
	return entries
}
