package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/recall/internal/cardhash"
	"github.com/conorfennell/recall/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new database connection and ensures the schema is up to date.
//
// The pool is limited to a single connection: SQLite allows one writer at a time, and
// funnelling every statement through one connection makes each transaction in
// UpdateProgress a critical section. It also keeps ":memory:" databases shared.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// connPragmas are applied by the driver to every new connection.
var connPragmas = []string{"foreign_keys(1)"}

// withPragmas appends connPragmas to dsn as _pragma query parameters.
func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range connPragmas {
		dsn += sep + "_pragma=" + p
		sep = "&"
	}
	return dsn
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const cardColumns = `c.id, c.question, c.answer, c.translation, c.category, c.hash, c.source_id`

const progressColumns = `p.card_id, p.interval_days, p.ease_factor, p.review_count, p.next_review_at, p.last_reviewed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner, extra ...any) (domain.Card, error) {
	var (
		c        domain.Card
		sourceID sql.NullInt64
	)
	dest := append([]any{&c.ID, &c.Question, &c.Answer, &c.Translation, &c.Category, &c.Hash, &sourceID}, extra...)
	if err := s.Scan(dest...); err != nil {
		return domain.Card{}, err
	}
	c.SourceID = sourceID.Int64
	return c, nil
}

// progressRow receives the progress columns and converts them to a domain.Progress.
type progressRow struct {
	cardID       int64
	interval     int
	easeFactor   float64
	reviewCount  int
	nextReview   int64
	lastReviewed sql.NullInt64
}

func (r *progressRow) dest() []any {
	return []any{&r.cardID, &r.interval, &r.easeFactor, &r.reviewCount, &r.nextReview, &r.lastReviewed}
}

func (r *progressRow) progress() domain.Progress {
	p := domain.Progress{
		CardID:       r.cardID,
		Interval:     r.interval,
		EaseFactor:   r.easeFactor,
		ReviewCount:  r.reviewCount,
		NextReviewAt: fromMillis(r.nextReview),
	}
	if r.lastReviewed.Valid {
		p.LastReviewedAt = fromMillis(r.lastReviewed.Int64)
	}
	return p
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(t), Valid: true}
}

// CreateCard inserts a new card and returns it with its assigned id.
// The content hash is computed when the card does not carry one.
// It returns domain.ErrDuplicateCard if a card with the same hash exists.
func (db *DB) CreateCard(ctx context.Context, card domain.Card) (*domain.Card, error) {
	if card.Hash == "" {
		card.Hash = cardhash.Hash(card)
	}
	if card.Category == "" {
		card.Category = domain.DefaultCategory
	}
	sourceID := sql.NullInt64{Int64: card.SourceID, Valid: card.SourceID != 0}

	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO cards (question, answer, translation, category, hash, source_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
		RETURNING id
	`,
		card.Question,
		card.Answer,
		card.Translation,
		card.Category,
		card.Hash,
		sourceID,
	).Scan(&card.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDuplicateCard
		}
		return nil, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	return &card, nil
}

// GetCard retrieves a card by id. It returns nil, nil when the card does not exist.
func (db *DB) GetCard(ctx context.Context, id int64) (*domain.Card, error) {
	return getCard(ctx, db.conn, id)
}

func getCard(ctx context.Context, q queryer, id int64) (*domain.Card, error) {
	row := q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards c WHERE c.id = ?`, id)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return &card, nil
}

// ListCards returns every card ordered by id.
func (db *DB) ListCards(ctx context.Context) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards c ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	cards := []domain.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// CountCards returns the number of cards.
func (db *DB) CountCards(ctx context.Context) (int, error) {
	return db.count(ctx, "cards", `SELECT COUNT(*) FROM cards`)
}

// GetProgress retrieves the progress of a card. It returns nil, nil when the card has never been reviewed.
func (db *DB) GetProgress(ctx context.Context, cardID int64) (*domain.Progress, error) {
	return getProgress(ctx, db.conn, cardID)
}

func getProgress(ctx context.Context, q queryer, cardID int64) (*domain.Progress, error) {
	var r progressRow
	row := q.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM progress p WHERE p.card_id = ?`, cardID)
	if err := row.Scan(r.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find progress for card %d: %w", cardID, err)
	}
	p := r.progress()
	return &p, nil
}

// UpdateProgress performs an atomic read-modify-write of a card's progress.
//
// Within one transaction it checks the card exists, loads its current progress
// (nil if never reviewed), passes it to fn and stores the returned record,
// inserting or fully replacing the row. If fn or any statement fails, the
// transaction is rolled back and the previous state is left untouched.
// It returns domain.ErrCardNotFound if the card does not exist.
func (db *DB) UpdateProgress(
	ctx context.Context,
	cardID int64,
	fn func(prior *domain.Progress) (domain.Progress, error),
) (*domain.Progress, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	card, err := getCard(ctx, tx, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, domain.ErrCardNotFound
	}

	prior, err := getProgress(ctx, tx, cardID)
	if err != nil {
		return nil, err
	}

	next, err := fn(prior)
	if err != nil {
		return nil, err
	}
	next.CardID = cardID

	_, err = tx.ExecContext(ctx, `
		INSERT INTO progress (card_id, interval_days, ease_factor, review_count, next_review_at, last_reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(card_id) DO UPDATE SET
			interval_days = excluded.interval_days,
			ease_factor = excluded.ease_factor,
			review_count = excluded.review_count,
			next_review_at = excluded.next_review_at,
			last_reviewed_at = excluded.last_reviewed_at
	`,
		next.CardID,
		next.Interval,
		next.EaseFactor,
		next.ReviewCount,
		toMillis(next.NextReviewAt),
		nullMillis(next.LastReviewedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert progress for card %d: %w", cardID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit progress for card %d: %w", cardID, err)
	}

	// Match the millisecond precision of the stored row.
	next.NextReviewAt = fromMillis(toMillis(next.NextReviewAt))
	if !next.LastReviewedAt.IsZero() {
		next.LastReviewedAt = fromMillis(toMillis(next.LastReviewedAt))
	}
	return &next, nil
}

// ListDue returns up to limit reviewed cards whose next review is at or before now,
// most overdue first.
func (db *DB) ListDue(ctx context.Context, limit int, now time.Time) ([]domain.CardProgress, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`, `+progressColumns+`
		FROM cards c
		INNER JOIN progress p ON p.card_id = c.id
		WHERE p.next_review_at <= ?
		ORDER BY p.next_review_at ASC, c.id ASC
		LIMIT ?
	`, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due cards: %w", err)
	}
	defer rows.Close()

	var due []domain.CardProgress
	for rows.Next() {
		var r progressRow
		card, err := scanCard(rows, r.dest()...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due card row: %w", err)
		}
		due = append(due, domain.CardProgress{Card: card, Progress: r.progress()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list due cards: %w", err)
	}
	return due, nil
}

// ListNew returns up to limit cards that have never been reviewed, in id order.
func (db *DB) ListNew(ctx context.Context, limit int) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards c
		LEFT JOIN progress p ON p.card_id = c.id
		WHERE p.card_id IS NULL
		ORDER BY c.id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list new cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan new card row: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list new cards: %w", err)
	}
	return cards, nil
}

// CountProgress returns the number of cards that have been reviewed at least once.
func (db *DB) CountProgress(ctx context.Context) (int, error) {
	return db.count(ctx, "progress", `SELECT COUNT(*) FROM progress`)
}

// CountDue returns the number of reviewed cards due at or before now.
func (db *DB) CountDue(ctx context.Context, now time.Time) (int, error) {
	return db.count(ctx, "due cards", `SELECT COUNT(*) FROM progress WHERE next_review_at <= ?`, toMillis(now))
}

// CountNew returns the number of cards that have never been reviewed.
func (db *DB) CountNew(ctx context.Context) (int, error) {
	return db.count(ctx, "new cards", `
		SELECT COUNT(*)
		FROM cards c
		LEFT JOIN progress p ON p.card_id = c.id
		WHERE p.card_id IS NULL
	`)
}

func (db *DB) count(ctx context.Context, what, query string, args ...any) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", what, err)
	}
	return n, nil
}

// UpsertSource registers a source path and returns its id. Registering an existing path returns the existing id.
func (db *DB) UpsertSource(ctx context.Context, path string) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO sources (path) VALUES (?)
		ON CONFLICT(path) DO UPDATE SET path = excluded.path
		RETURNING id
	`, path).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert source %s: %w", path, err)
	}
	return id, nil
}

// GetAllSources retrieves all stored sources ordered by id.
func (db *DB) GetAllSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, last_imported
		FROM sources
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var (
			s            domain.Source
			lastImported sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Path, &lastImported); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		if lastImported.Valid {
			s.LastImported = fromMillis(lastImported.Int64)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	return sources, nil
}

// MarkSourceImported updates the last_imported timestamp for a source.
func (db *DB) MarkSourceImported(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_imported = ?
		WHERE id = ?
	`, toMillis(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last imported for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source. Cards imported from it are kept and lose their source reference.
// It returns domain.ErrSourceNotFound if no source has the given id.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
	}
	if n == 0 {
		return domain.ErrSourceNotFound
	}
	return nil
}
