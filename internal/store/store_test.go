package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"sportsarb/internal/models"
)

func TestGetBankroll(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"current_balance_cents", "piggybank_balance_cents", "peak_balance_cents", "trough_balance_cents", "version", "updated_at"}).
		AddRow(100000, 5000, 120000, 90000, 7, time.Now())
	mock.ExpectQuery(`SELECT current_balance_cents`).WillReturnRows(rows)

	s := New(db)
	b, err := s.GetBankroll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Version != 7 || b.CurrentBalanceCents != 100000 {
		t.Errorf("unexpected bankroll: %+v", b)
	}
}

func TestUpdateBankrollCASConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE bankroll`).WillReturnResult(sqlmock.NewResult(0, 0))

	s := New(db)
	err = s.UpdateBankrollCAS(context.Background(), 7, models.Bankroll{CurrentBalanceCents: 99000, UpdatedAt: time.Now()})
	if err != models.ErrVersionConflict {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestUpdateBankrollCASSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE bankroll`).WillReturnResult(sqlmock.NewResult(0, 1))

	s := New(db)
	err = s.UpdateBankrollCAS(context.Background(), 7, models.Bankroll{CurrentBalanceCents: 99000, UpdatedAt: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInsertAndClosePosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO positions`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE positions`).WillReturnResult(sqlmock.NewResult(0, 1))

	s := New(db)
	p := &models.OpenPosition{
		TradeID: "t1", GameID: "g1", Sport: models.SportNFL, Team: "Chiefs",
		Side: models.SideYes, Platform: models.PlatformKalshi,
		EntryPriceCents: 55, SizeCents: 1000, EntryTime: time.Now(), Status: models.PositionOpen,
	}
	if err := s.InsertPosition(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exit := int64(60)
	now := time.Now()
	p.ExitPriceCents = &exit
	p.ExitTime = &now
	if err := s.ClosePosition(context.Background(), p, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHasOpposingPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM positions`).
		WithArgs("g1", "Chiefs", models.SideYes).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	s := New(db)
	has, err := s.HasOpposingPosition(context.Background(), "g1", "Chiefs", models.SideYes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !has {
		t.Error("expected an opposing position")
	}
}

func TestLastOutcomeForNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT outcome, exit_time FROM positions`).
		WillReturnRows(sqlmock.NewRows([]string{"outcome", "exit_time"}))

	s := New(db)
	_, _, err = s.LastOutcomeFor(context.Background(), "g1", "Chiefs")
	if err != models.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDailyLossCentsNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT -SUM`).WillReturnRows(sqlmock.NewRows([]string{"loss"}).AddRow(nil))

	s := New(db)
	loss, err := s.DailyLossCents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loss != 0 {
		t.Errorf("expected 0 loss with no matching rows, got %d", loss)
	}
}
