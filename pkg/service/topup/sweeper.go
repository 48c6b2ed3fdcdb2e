package topup

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
)

const sweepBatch = 100

// Sweep flags in-flight sagas untouched for longer than StaleAfter for
// reconciliation. Nothing is rolled back. Parked on-chain outcomes older
// than StaleAfter are dropped.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.cfg.StaleAfter)
	if n := s.evictParked(cutoff); n > 0 {
		s.logger.Warn("⚠️ Expired parked on-chain outcomes", "dropped", n)
	}

	sagas, err := s.uow.SagaRepository()
	if err != nil {
		return 0, err
	}
	stale, err := sagas.ListByState(ctx, domain.InFlightStates, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, sg := range stale {
		_, decision, err := s.apply(ctx, sg.ID, func(current *domain.TopUpSaga) domain.Decision {
			if current.State.Terminal() || !current.UpdatedAt.Before(cutoff) {
				return domain.DecisionNone
			}
			current.FlagReconciliation(fmt.Sprintf("stale in %s since %s", current.State, current.UpdatedAt.Format(time.RFC3339)))
			return domain.DecisionReconcile
		})
		if err != nil {
			s.logger.Error("❌ Flagging stale saga failed", "saga_id", sg.ID, "error", err)
			continue
		}
		if decision == domain.DecisionReconcile {
			flagged++
			s.logger.Warn("⚠️ Stale saga flagged for reconciliation", "saga_id", sg.ID, "state", sg.State)
		}
	}
	return flagged, nil
}

// RunSweeper sweeps every SweepInterval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	s.logger.Info("🧹 Saga sweeper started", "interval", s.cfg.SweepInterval, "stale_after", s.cfg.StaleAfter)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.logger.Error("❌ Saga sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Info("🧹 Saga sweep done", "flagged", n)
			}
		}
	}
}
