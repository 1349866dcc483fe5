package service

import (
	"context"
	"strings"

	"github.com/okian/questlog/internal/adapters/repository"
	"github.com/okian/questlog/internal/domain/errkind"
	"github.com/okian/questlog/internal/domain/progression"
)

// GetSkillLedger returns the user's standing in every skill they have been
// awarded, ordered by skill name. Level, stage, activity and progress are
// derived at read time from the stored totals.
func (s *Service) GetSkillLedger(ctx context.Context, userID string) ([]progression.Standing, error) {
	const op = "service.skill_ledger"
	if strings.TrimSpace(userID) == "" {
		return nil, s.fail(ctx, op, errkind.NewKind(op, errkind.ErrValidation, "user id is required"))
	}

	now := s.clock.Now()
	var out []progression.Standing
	err := s.store.View(ctx, func(tx repository.Tx) error {
		entries, err := tx.LedgerEntries(ctx, userID)
		if err != nil {
			return err
		}
		out = make([]progression.Standing, len(entries))
		for i, e := range entries {
			out[i] = s.thresholds.Derive(e, now)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return out, nil
}
