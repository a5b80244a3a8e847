package streamstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/pkg/utils"
)

// store.go - хранилище наблюдателя (persistence plane)
//
// Append-only таблица на категорию топика (prices, signals, executions,
// trades, games), с MAXLEN-тримминнгом и обнаружением пропусков
// publisher_seq по (source, topic). Наблюдатель advisory: его падение не
// должно влиять на корректность торгового пайплайна, поэтому Append
// логирует ошибку вставки и возвращает её, не паникуя; пропуск
// publisher_seq только логируется.

var ErrUnknownCategory = errors.New("streamstore: unknown category")

// categoryTables maps a hot-topic category to its backing table, mirroring
// the stream keys enumerated for the observer (stream:prices:kalshi, ...).
var categoryTables = map[string]string{
	"prices":     "stream_prices",
	"signals":    "stream_signals",
	"executions": "stream_executions",
	"trades":     "stream_trades",
	"games":      "stream_games",
}

// StoredEnvelope is a row read back from a stream table.
type StoredEnvelope struct {
	ID           int64
	Topic        string
	Payload      []byte
	PublisherSeq uint64
	PublishTS    time.Time
	ReceiveTS    time.Time
	Source       string
}

// Store is the Postgres-backed persistence plane for the observer.
type Store struct {
	db     *sql.DB
	logger *utils.Logger

	mu       sync.Mutex
	lastSeen map[seenKey]uint64
}

type seenKey struct {
	source string
	topic  string
}

// NewStore creates a Store over an existing *sql.DB connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		logger:   utils.L().WithComponent("streamstore"),
		lastSeen: make(map[seenKey]uint64),
	}
}

// Append inserts an envelope into the table for category. It detects a
// sequence gap for (source, topic) and logs a warning, but never fails the
// caller on a gap — gaps are advisory information, not an error condition.
func (s *Store) Append(category string, env bus.Envelope) error {
	table, ok := categoryTables[category]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	s.checkGap(env)

	query := fmt.Sprintf(`
		INSERT INTO %s (topic, payload, publisher_seq, publish_ts, receive_ts, source)
		VALUES ($1, $2, $3, $4, $5, $6)`, table)

	_, err := s.db.Exec(query, env.Topic, []byte(env.Payload), env.PublisherSeq,
		env.PublishTS, env.ReceiveTS, env.Source)
	if err != nil {
		s.logger.Error("failed to append stream entry",
			utils.String("category", category), utils.Err(err))
		return err
	}
	return nil
}

// checkGap compares the incoming publisher_seq against the last one seen
// for this (source, topic) pair and logs if a gap is detected.
func (s *Store) checkGap(env bus.Envelope) {
	key := seenKey{source: env.Source, topic: env.Topic}

	s.mu.Lock()
	last, seen := s.lastSeen[key]
	s.lastSeen[key] = env.PublisherSeq
	s.mu.Unlock()

	if seen && env.PublisherSeq != last+1 {
		s.logger.Warn("sequence gap detected",
			utils.String("source", env.Source),
			utils.String("topic", env.Topic),
			utils.Int64("last_seq", int64(last)),
			utils.Int64("new_seq", int64(env.PublisherSeq)))
	}
}

// Trim deletes the oldest rows in category's table beyond maxLen,
// keeping only the most recent maxLen entries by id.
func (s *Store) Trim(category string, maxLen int) error {
	table, ok := categoryTables[category]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id NOT IN (
			SELECT id FROM %s ORDER BY id DESC LIMIT $1
		)`, table, table)

	_, err := s.db.Exec(query, maxLen)
	return err
}

// RangeRead reads back up to limit of the most recent entries for
// category, newest first — an O(k) range read over the capped stream.
func (s *Store) RangeRead(category string, limit int) ([]StoredEnvelope, error) {
	table, ok := categoryTables[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	query := fmt.Sprintf(`
		SELECT id, topic, payload, publisher_seq, publish_ts, receive_ts, source
		FROM %s
		ORDER BY id DESC
		LIMIT $1`, table)

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEnvelope
	for rows.Next() {
		var e StoredEnvelope
		if err := rows.Scan(&e.ID, &e.Topic, &e.Payload, &e.PublisherSeq,
			&e.PublishTS, &e.ReceiveTS, &e.Source); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CategoryFor maps a hot topic (e.g. "prices.kalshi.NFL-KC-BUF") to its
// stream category (the segment before the first dot).
func CategoryFor(topic string) string {
	for i, c := range topic {
		if c == '.' {
			return topic[:i]
		}
	}
	return topic
}
