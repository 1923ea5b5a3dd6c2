// Package store persists users and their rewrite history in Postgres or SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sfkse/rewriteit/app/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// HistoryLimit is how many rewrites are kept per user.
const HistoryLimit = 10

// ErrNotFound is returned when a user or paraphrase does not exist.
var ErrNotFound = errors.New("not found")

const userColumns = `id, slack_user_id, user_name, created_at, plan, credits_assigned, credits_used, user_info, stripe_customer_id`

const paraphraseColumns = `id, user_id, original_text, paraphrased_text, tone, created_at, updated_at, seq`

// historyOrder sorts newest first. seq is a per-user counter, so entries
// recorded within the same clock tick keep their insertion order.
const historyOrder = `ORDER BY seq DESC, created_at DESC, id DESC`

// Store is safe for concurrent use; every call checks a connection out of the pool.
type Store struct {
	db          *sqlx.DB
	driver      string
	dsn         string
	now         func() time.Time
	freeCredits int
}

type Option func(*Store)

// WithClock overrides time.Now for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFreeCredits sets the credit allotment of newly created users.
func WithFreeCredits(n int) Option {
	return func(s *Store) { s.freeCredits = n }
}

// Open connects to the database named by databaseURL. postgres:// and
// postgresql:// select lib/pq, sqlite:// and file: select SQLite.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	driver, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite3" {
		// SQLite allows one writer; serialising through one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:          db,
		driver:      driver,
		dsn:         dsn,
		now:         time.Now,
		freeCredits: 25,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func parseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "postgres", databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite3", withSQLiteParams(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return "sqlite3", withSQLiteParams(databaseURL), nil
	default:
		return "", "", fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

func withSQLiteParams(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Driver returns "postgres" or "sqlite3".
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// GetOrCreateUser upserts a user by Slack id. Repeat calls keep the id and
// credits and only overwrite name/info when new values are provided.
func (s *Store) GetOrCreateUser(ctx context.Context, slackUserID, name string, info models.Metadata) (*models.User, error) {
	if slackUserID == "" {
		return nil, errors.New("missing slack user id")
	}

	q := s.db.Rebind(`
		INSERT INTO users (id, slack_user_id, user_name, created_at, plan, credits_assigned, credits_used, user_info)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (slack_user_id) DO UPDATE SET
			user_name = COALESCE(excluded.user_name, users.user_name),
			user_info = COALESCE(excluded.user_info, users.user_info)
		RETURNING ` + userColumns)

	var user models.User
	err := s.db.GetContext(ctx, &user, q,
		uuid.NewString(),
		slackUserID,
		nullIfEmpty(name),
		s.timestamp(),
		models.PlanFree,
		s.freeCredits,
		info,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", slackUserID, err)
	}
	return &user, nil
}

func (s *Store) GetUserBySlackID(ctx context.Context, slackUserID string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE slack_user_id = ?`), slackUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by slack id: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// SpendCredit increments credits_used by one.
func (s *Store) SpendCredit(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE users
		SET credits_used = credits_used + 1
		WHERE id = ?`), userID)
	if err != nil {
		return fmt.Errorf("failed to spend credit: %w", err)
	}
	return expectRow(res)
}

// RecordRewrite appends one entry to the user's history.
func (s *Store) RecordRewrite(ctx context.Context, userID, original, rewritten, tone string) (*models.Paraphrase, error) {
	now := s.timestamp()
	p := &models.Paraphrase{
		ID:              uuid.NewString(),
		UserID:          userID,
		OriginalText:    original,
		ParaphrasedText: rewritten,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if tone != "" {
		p.Tone = &tone
	}

	err := s.db.GetContext(ctx, &p.Seq, s.db.Rebind(`
		INSERT INTO paraphrases (id, user_id, original_text, paraphrased_text, tone, created_at, updated_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM paraphrases WHERE user_id = ?))
		RETURNING seq`),
		p.ID, p.UserID, p.OriginalText, p.ParaphrasedText, p.Tone, p.CreatedAt, p.UpdatedAt, p.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record rewrite: %w", err)
	}
	return p, nil
}

// LatestRewrites returns up to limit entries, newest first.
func (s *Store) LatestRewrites(ctx context.Context, userID string, limit int) ([]models.Paraphrase, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	out := []models.Paraphrase{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT `+paraphraseColumns+`
		FROM paraphrases
		WHERE user_id = ?
		`+historyOrder+`
		LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load rewrites: %w", err)
	}
	return out, nil
}

// LatestRewrite returns the newest entry or ErrNotFound.
func (s *Store) LatestRewrite(ctx context.Context, userID string) (*models.Paraphrase, error) {
	list, err := s.LatestRewrites(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// GetRewrite returns one of the user's entries by id, or ErrNotFound when it
// does not exist or belongs to someone else.
func (s *Store) GetRewrite(ctx context.Context, userID, id string) (*models.Paraphrase, error) {
	var p models.Paraphrase
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`
		SELECT `+paraphraseColumns+`
		FROM paraphrases
		WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rewrite: %w", err)
	}
	return &p, nil
}

// TrimHistory deletes everything but the keep most recent entries and
// reports how many rows went away.
func (s *Store) TrimHistory(ctx context.Context, userID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		DELETE FROM paraphrases
		WHERE user_id = ?
		  AND id NOT IN (
			SELECT id FROM paraphrases
			WHERE user_id = ?
			`+historyOrder+`
			LIMIT ?
		  )`), userID, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SetStripeCustomer links a Stripe customer to the user.
func (s *Store) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE users
		SET stripe_customer_id = ?
		WHERE id = ?`), customerID, userID)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer: %w", err)
	}
	return expectRow(res)
}

// UpdatePlanBySlackID sets plan and credit allotment, and records the
// Stripe customer when one is given.
func (s *Store) UpdatePlanBySlackID(ctx context.Context, slackUserID string, plan models.Plan, credits int, customerID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE users
		SET plan = ?, credits_assigned = ?, stripe_customer_id = COALESCE(?, stripe_customer_id)
		WHERE slack_user_id = ?`), plan, credits, nullIfEmpty(customerID), slackUserID)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return expectRow(res)
}

func (s *Store) UpdatePlanByStripeCustomer(ctx context.Context, customerID string, plan models.Plan, credits int) error {
	if customerID == "" {
		return errors.New("missing stripe customer id")
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE users
		SET plan = ?, credits_assigned = ?
		WHERE stripe_customer_id = ?`), plan, credits, customerID)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
