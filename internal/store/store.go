package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// store.go - Postgres-хранилище позиций/банкролла/правил (§3, §4.7, §4.5)
//
// Re-derived in the teacher's repository idiom (sentinel errors, one
// *sql.DB, plain database/sql + github.com/lib/pq driver registration,
// sqlmock-backed tests) after internal/repository/ was retired as
// crypto-CRUD carryover with no sports semantics — see DESIGN.md. Unlike
// internal/streamstore (append-only, advisory, never fails the caller on a
// sequence gap),
// this store backs the tracker's and signal processor's correctness-
// critical state, so every error here is propagated.

// ErrNoRows is returned when a single-row query finds nothing, distinct
// from models.ErrNotFound which is a domain-level sentinel used by
// callers that don't want to import database/sql.
var ErrNoRows = sql.ErrNoRows

// Store is the Postgres-backed repository for bankroll, positions, and
// trading rules.
type Store struct {
	db     *sql.DB
	logger *utils.Logger
}

// New wraps an existing *sql.DB connection pool (opened by the caller via
// sql.Open("postgres", cfg.Store.DatabaseURL), matching the teacher's
// connection-lifecycle-owned-by-main pattern).
func New(db *sql.DB) *Store {
	return &Store{db: db, logger: utils.L().WithComponent("store")}
}

// --- Bankroll ---------------------------------------------------------

// GetBankroll reads the single bankroll row.
func (s *Store) GetBankroll(ctx context.Context) (*models.Bankroll, error) {
	var b models.Bankroll
	err := s.db.QueryRowContext(ctx, `
		SELECT current_balance_cents, piggybank_balance_cents, peak_balance_cents,
		       trough_balance_cents, version, updated_at
		FROM bankroll LIMIT 1`).Scan(
		&b.CurrentBalanceCents, &b.PiggybankBalanceCents, &b.PeakBalanceCents,
		&b.TroughBalanceCents, &b.Version, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBankrollCAS applies next with an optimistic-concurrency check
// against expectedVersion, per §4.7: "UPDATE ... WHERE version = $expected
// RETURNING new_version". On zero affected rows (lost the race), the
// caller's retry loop is expected to reload and try again; after 3
// retries it should treat models.ErrVersionConflict as final.
func (s *Store) UpdateBankrollCAS(ctx context.Context, expectedVersion int64, next models.Bankroll) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bankroll
		SET current_balance_cents = $1, piggybank_balance_cents = $2,
		    peak_balance_cents = $3, trough_balance_cents = $4,
		    version = version + 1, updated_at = $5
		WHERE version = $6`,
		next.CurrentBalanceCents, next.PiggybankBalanceCents,
		next.PeakBalanceCents, next.TroughBalanceCents, next.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update bankroll: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrVersionConflict
	}
	return nil
}

// --- Positions ----------------------------------------------------------

// InsertPosition records a newly filled entry.
func (s *Store) InsertPosition(ctx context.Context, p *models.OpenPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (trade_id, game_id, sport, team, side, platform, market_id,
		                        entry_price_cents, size_cents, entry_time, entry_fees_cents, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.TradeID, p.GameID, p.Sport, p.Team, p.Side, p.Platform, p.MarketID,
		p.EntryPriceCents, p.SizeCents, p.EntryTime, p.EntryFeesCents, p.Status)
	return err
}

// ClosePosition writes exit/pnl/outcome fields and flips status to Closed
// (or Settled, if settled is true).
func (s *Store) ClosePosition(ctx context.Context, p *models.OpenPosition, settled bool) error {
	status := models.PositionClosed
	if settled {
		status = models.PositionSettled
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET exit_price_cents = $1, exit_time = $2, exit_fees_cents = $3,
		    pnl_gross_cents = $4, pnl_net_cents = $5, outcome = $6, status = $7
		WHERE trade_id = $8`,
		p.ExitPriceCents, p.ExitTime, p.ExitFeesCents,
		p.PnlGrossCents, p.PnlNetCents, p.Outcome, status, p.TradeID)
	return err
}

// OpenPositions returns every position still Open, across all games.
func (s *Store) OpenPositions(ctx context.Context) ([]*models.OpenPosition, error) {
	return s.queryPositions(ctx, `
		SELECT trade_id, game_id, sport, team, side, platform, market_id, entry_price_cents,
		       size_cents, entry_time, entry_fees_cents, status
		FROM positions WHERE status = 'open'`)
}

// OpenPositionsForGame returns every Open position for gameID, used by
// settlement on a game's Final transition.
func (s *Store) OpenPositionsForGame(ctx context.Context, gameID string) ([]*models.OpenPosition, error) {
	return s.queryPositions(ctx, `
		SELECT trade_id, game_id, sport, team, side, platform, market_id, entry_price_cents,
		       size_cents, entry_time, entry_fees_cents, status
		FROM positions WHERE status = 'open' AND game_id = $1`, gameID)
}

func (s *Store) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*models.OpenPosition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.OpenPosition
	for rows.Next() {
		var p models.OpenPosition
		if err := rows.Scan(&p.TradeID, &p.GameID, &p.Sport, &p.Team, &p.Side, &p.Platform, &p.MarketID,
			&p.EntryPriceCents, &p.SizeCents, &p.EntryTime, &p.EntryFeesCents, &p.Status); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// OrphanPositions returns Open positions held longer than olderThan, for
// the 5-minute orphan sweep (§4.7: catches positions whose game-end
// message was lost).
func (s *Store) OrphanPositions(ctx context.Context, olderThan time.Duration) ([]*models.OpenPosition, error) {
	cutoff := time.Now().Add(-olderThan)
	return s.queryPositions(ctx, `
		SELECT trade_id, game_id, sport, team, side, platform, market_id, entry_price_cents,
		       size_cents, entry_time, entry_fees_cents, status
		FROM positions WHERE status = 'open' AND entry_time < $1`, cutoff)
}

// --- Risk-check queries (§4.5) ------------------------------------------

// DailyLossCents sums net losses (negative pnl_net_cents) across positions
// closed since the start of the current UTC day.
func (s *Store) DailyLossCents(ctx context.Context) (int64, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	var loss sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT -SUM(pnl_net_cents) FROM positions
		WHERE pnl_net_cents < 0 AND exit_time >= $1`, dayStart).Scan(&loss)
	if err != nil {
		return 0, err
	}
	if !loss.Valid {
		return 0, nil
	}
	return loss.Int64, nil
}

// GameExposureCents sums size_cents of Open positions for gameID.
func (s *Store) GameExposureCents(ctx context.Context, gameID string) (int64, error) {
	return s.sumSizeCents(ctx, `SELECT SUM(size_cents) FROM positions WHERE status = 'open' AND game_id = $1`, gameID)
}

// SportExposureCents sums size_cents of Open positions for sport.
func (s *Store) SportExposureCents(ctx context.Context, sport models.Sport) (int64, error) {
	return s.sumSizeCents(ctx, `SELECT SUM(size_cents) FROM positions WHERE status = 'open' AND sport = $1`, sport)
}

func (s *Store) sumSizeCents(ctx context.Context, query string, arg interface{}) (int64, error) {
	var sum sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&sum); err != nil {
		return 0, err
	}
	if !sum.Valid {
		return 0, nil
	}
	return sum.Int64, nil
}

// HasOpposingPosition reports whether an Open position exists on (gameID,
// team) whose side differs from side — the no-opposing-position risk check.
func (s *Store) HasOpposingPosition(ctx context.Context, gameID, team string, side models.Side) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM positions
		WHERE status = 'open' AND game_id = $1 AND team = $2 AND side != $3`,
		gameID, team, side).Scan(&count)
	return count > 0, err
}

// HasSameSideOpen reports whether an Open position exists on (gameID,
// team, side) already — the pre-trade same-side-duplicate filter.
func (s *Store) HasSameSideOpen(ctx context.Context, gameID, team string, side models.Side) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM positions
		WHERE status = 'open' AND game_id = $1 AND team = $2 AND side = $3`,
		gameID, team, side).Scan(&count)
	return count > 0, err
}

// OpenPositionCountForGame is the "open positions per game < 2" risk check.
func (s *Store) OpenPositionCountForGame(ctx context.Context, gameID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM positions WHERE status = 'open' AND game_id = $1`, gameID).Scan(&count)
	return count, err
}

// LastOutcomeFor returns the most recent Outcome and exit_time recorded
// for (gameID, team), used by the team win/loss cooldown filter. Returns
// models.ErrNotFound if the team has no closed position yet.
func (s *Store) LastOutcomeFor(ctx context.Context, gameID, team string) (models.Outcome, time.Time, error) {
	var outcome models.Outcome
	var exitTime time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT outcome, exit_time FROM positions
		WHERE game_id = $1 AND team = $2 AND outcome IS NOT NULL
		ORDER BY exit_time DESC LIMIT 1`, gameID, team).Scan(&outcome, &exitTime)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, models.ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return outcome, exitTime, nil
}

// --- Trading rules (§4.5) -----------------------------------------------

// ActiveRules loads every rule flagged Active and not expired as of now.
func (s *Store) ActiveRules(ctx context.Context, now time.Time) ([]models.TradingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, conditions, action, min_edge_pct, expires_at, active
		FROM trading_rules WHERE active = true AND (expires_at IS NULL OR expires_at > $1)`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TradingRule
	for rows.Next() {
		var r models.TradingRule
		var conditions conditionsJSON
		if err := rows.Scan(&r.RuleID, &conditions, &r.Action, &r.MinEdgePct, &r.ExpiresAt, &r.Active); err != nil {
			return nil, err
		}
		r.Conditions = conditions
		out = append(out, r)
	}
	return out, rows.Err()
}
