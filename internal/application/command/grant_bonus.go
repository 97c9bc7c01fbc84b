package command

import (
	"context"
	"strings"

	"github.com/dojo-hub/progression-engine/internal/domain/gamification"
	"github.com/dojo-hub/progression-engine/internal/domain/shared"
	"github.com/dojo-hub/progression-engine/pkg/logger"
)

// GrantBonusCommand is a discretionary instructor bonus.
type GrantBonusCommand struct {
	StudentID string
	Amount    int
	Reason    string
	GrantedBy string
}

// Validate validates the command.
func (c GrantBonusCommand) Validate() error {
	if c.StudentID == "" {
		return shared.InvalidInput("gamification", "GrantBonus", "student_id is required")
	}
	if c.Amount <= 0 {
		return shared.NewDomainError("gamification", "GrantBonus", shared.ErrValueOutOfRange,
			"bonus amount must be positive")
	}
	if strings.TrimSpace(c.GrantedBy) == "" {
		return shared.InvalidInput("gamification", "GrantBonus", "granted_by is required")
	}
	return nil
}

// GrantBonusHandler routes instructor bonuses through the XP ledger.
type GrantBonusHandler struct {
	awardXP *AwardXPHandler
	log     *logger.Logger
}

// NewGrantBonusHandler creates a new GrantBonusHandler.
func NewGrantBonusHandler(awardXP *AwardXPHandler, log *logger.Logger) *GrantBonusHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GrantBonusHandler{awardXP: awardXP, log: log.With(logger.Component("grant_bonus"))}
}

// Handle executes the command.
func (h *GrantBonusHandler) Handle(ctx context.Context, cmd GrantBonusCommand) (*AwardXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	res, err := h.awardXP.Handle(ctx, AwardXPCommand{
		StudentID:   cmd.StudentID,
		Amount:      cmd.Amount,
		Source:      gamification.SourceBonus,
		ReferenceID: cmd.GrantedBy,
		Note:        strings.TrimSpace(cmd.Reason),
	})
	if err != nil {
		return nil, err
	}
	h.log.Info("instructor bonus granted",
		logger.StudentID(cmd.StudentID),
		logger.String("granted_by", cmd.GrantedBy),
		logger.XPAmount(res.XPAwarded),
	)
	return res, nil
}
