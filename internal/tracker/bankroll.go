package tracker

import (
	"context"
	"time"

	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// bankroll.go - optimistic-CAS banroll update with bounded retry (§4.7)
//
// Not pkg/retry: §4.7's retry shape is fixed-50ms-backoff over a
// re-fetch-then-recompute loop (the "next" value depends on the bankroll
// row the attempt actually observed), not a resubmission of the same
// call pkg/retry.Do expects.

const (
	bankrollCASRetries = 3
	bankrollCASBackoff = 50 * time.Millisecond
)

// applyBankrollDelta reloads the bankroll, applies apply to compute the
// next state, and commits it via CAS, retrying on a lost race up to
// bankrollCASRetries times before giving up.
func (t *Tracker) applyBankrollDelta(ctx context.Context, apply func(models.Bankroll) models.Bankroll) error {
	var lastErr error
	for attempt := 0; attempt <= bankrollCASRetries; attempt++ {
		current, err := t.repo.GetBankroll(ctx)
		if err != nil {
			return err
		}
		next := apply(*current)
		next.UpdatedAt = time.Now()

		err = t.repo.UpdateBankrollCAS(ctx, current.Version, next)
		if err == nil {
			return nil
		}
		if err != models.ErrVersionConflict {
			return err
		}

		lastErr = err
		t.logger.Warn("bankroll CAS conflict, retrying",
			utils.Int("attempt", attempt+1), utils.Int64("expected_version", current.Version))
		time.Sleep(bankrollCASBackoff)
	}
	return lastErr
}
