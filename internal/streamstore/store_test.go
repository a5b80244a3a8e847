package streamstore

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"sportsarb/internal/bus"
)

func TestNewStore(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := NewStore(db)
	if s == nil {
		t.Fatal("NewStore returned nil")
	}
}

func TestAppendUnknownCategory(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := NewStore(db)
	err = s.Append("not-a-category", bus.Envelope{Topic: "x"})
	if err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestAppendInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := NewStore(db)
	env := bus.Envelope{
		Topic:        "prices.kalshi.NFL-KC-BUF",
		Payload:      []byte(`{"yes_bid":0.4}`),
		PublisherSeq: 1,
		PublishTS:    time.Now(),
		ReceiveTS:    time.Now(),
		Source:       "shard-1",
	}

	mock.ExpectExec(`INSERT INTO stream_prices`).
		WithArgs(env.Topic, []byte(env.Payload), env.PublisherSeq, env.PublishTS, env.ReceiveTS, env.Source).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Append("prices", env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCheckGapLogsOnDiscontinuity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := NewStore(db)
	mock.ExpectExec(`INSERT INTO stream_prices`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO stream_prices`).WillReturnResult(sqlmock.NewResult(2, 1))

	first := bus.Envelope{Topic: "prices.kalshi.g1", Source: "shard-1", PublisherSeq: 1}
	skip := bus.Envelope{Topic: "prices.kalshi.g1", Source: "shard-1", PublisherSeq: 5}

	if err := s.Append("prices", first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A gap (seq jumps from 1 to 5) should not itself produce an error -
	// it is logged, not propagated, since the observer is advisory.
	if err := s.Append("prices", skip); err != nil {
		t.Fatalf("unexpected error on gapped sequence: %v", err)
	}
}

func TestTrimUnknownCategory(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := NewStore(db)
	if err := s.Trim("nope", 100); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestTrimDeletesBeyondMaxLen(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := NewStore(db)
	mock.ExpectExec(`DELETE FROM stream_prices`).
		WithArgs(50000).
		WillReturnResult(sqlmock.NewResult(0, 10))

	if err := s.Trim("prices", 50000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRangeReadReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := NewStore(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "topic", "payload", "publisher_seq", "publish_ts", "receive_ts", "source"}).
		AddRow(2, "games.nfl", []byte(`{}`), 2, now, now, "orchestrator").
		AddRow(1, "games.nfl", []byte(`{}`), 1, now, now, "orchestrator")

	mock.ExpectQuery(`SELECT id, topic, payload, publisher_seq, publish_ts, receive_ts, source`).
		WithArgs(10).
		WillReturnRows(rows)

	got, err := s.RangeRead("games", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].PublisherSeq != 2 {
		t.Fatalf("expected newest-first ordering, got seq %d first", got[0].PublisherSeq)
	}
}

func TestCategoryFor(t *testing.T) {
	cases := map[string]string{
		"prices.kalshi.NFL-KC-BUF":        "prices",
		"signals.trade.nba":               "signals",
		"execution.request.abc":           "execution",
		"health:heartbeats":               "health:heartbeats",
	}
	for topic, want := range cases {
		if got := CategoryFor(topic); got != want {
			t.Errorf("CategoryFor(%q) = %q, want %q", topic, got, want)
		}
	}
}
