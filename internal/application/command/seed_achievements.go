package command

import (
	"context"
	"fmt"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// SeedAchievementsCommand seeds a catalog into an organization.
type SeedAchievementsCommand struct {
	OrganizationID string

	// Catalog defaults to gamification.DefaultCatalog.
	Catalog []gamification.AchievementDefinition
}

// SeedAchievementsResult counts what happened per entry.
type SeedAchievementsResult struct {
	Created int
	Skipped int
}

// SeedAchievementsHandler handles SeedAchievementsCommand.
type SeedAchievementsHandler struct {
	achievements gamification.AchievementRepository
	ids          IDGenerator
	clock        Clock
	log          *logger.Logger
}

// NewSeedAchievementsHandler creates a new SeedAchievementsHandler.
func NewSeedAchievementsHandler(achievements gamification.AchievementRepository, ids IDGenerator, clock Clock, log *logger.Logger) *SeedAchievementsHandler {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SeedAchievementsHandler{
		achievements: achievements,
		ids:          ids,
		clock:        clock,
		log:          log.With(logger.Component("seed_achievements")),
	}
}

// Handle creates every catalog entry whose key is new to the organization.
// It is safe to run repeatedly.
func (h *SeedAchievementsHandler) Handle(ctx context.Context, cmd SeedAchievementsCommand) (*SeedAchievementsResult, error) {
	if cmd.OrganizationID == "" {
		return nil, shared.InvalidInput("gamification", "SeedAchievements", "organization_id is required")
	}
	catalog := cmd.Catalog
	if catalog == nil {
		catalog = gamification.DefaultCatalog()
	}

	res := &SeedAchievementsResult{}
	now := h.clock.now()
	for i := range catalog {
		def := catalog[i]
		def.ID = h.ids.GenerateID()
		def.OrganizationID = cmd.OrganizationID
		def.CreatedAt = now
		if err := def.Validate(); err != nil {
			return res, fmt.Errorf("seed_achievements: %s: %w", def.Key, err)
		}

		created, err := h.achievements.CreateDefinition(ctx, &def)
		if err != nil {
			return res, fmt.Errorf("seed_achievements: failed to create %s: %w", def.Key, err)
		}
		if created {
			res.Created++
		} else {
			res.Skipped++
		}
	}

	h.log.Info("achievement catalog seeded",
		logger.OrganizationID(cmd.OrganizationID),
		logger.Int("created", res.Created),
		logger.Int("skipped", res.Skipped),
	)
	return res, nil
}
