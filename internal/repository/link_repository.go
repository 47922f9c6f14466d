package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidesantangelo/yll/internal/model"
)

var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrCodeTaken     = errors.New("short code already taken")
	ErrDatabaseError = errors.New("database error")
)

const dbTimeout = 5 * time.Second

// Postgres unique_violation
const uniqueViolationCode = "23505"

// LinkRepository defines the interface for link data operations
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	FindByCode(ctx context.Context, code string) (*model.Link, error)
	IncrementClicks(ctx context.Context, code string) error
	CodeExists(ctx context.Context, code string) (bool, error)
}

// PostgresLinkRepository implements LinkRepository using PostgreSQL
type PostgresLinkRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLinkRepository creates a new PostgresLinkRepository
func NewPostgresLinkRepository(db *pgxpool.Pool) *PostgresLinkRepository {
	return &PostgresLinkRepository{
		db:     db,
		logger: zap.L().With(zap.String("component", "PostgresLinkRepository")),
	}
}

// Migrate applies the links schema
func (r *PostgresLinkRepository) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS links (
			code            TEXT PRIMARY KEY,
			url             TEXT NOT NULL,
			password_digest TEXT,
			expires_at      TIMESTAMPTZ,
			clicks          BIGINT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_links_url ON links (url);
	`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// Create inserts a new link. A concurrent insert racing to the same
// code surfaces as ErrCodeTaken so the caller can regenerate.
func (r *PostgresLinkRepository) Create(ctx context.Context, link *model.Link) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var digest *string
	if link.PasswordDigest != "" {
		digest = &link.PasswordDigest
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO links (code, url, password_digest, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING clicks, created_at`,
		link.Code, link.URL, digest, link.ExpiresAt,
	).Scan(&link.Clicks, &link.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			r.logger.Warn("Code collision on insert", zap.String("code", link.Code))
			return ErrCodeTaken
		}
		r.logger.Error("Failed to insert link", zap.Error(err), zap.String("code", link.Code))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return nil
}

// FindByCode retrieves a link by its short code (exact, case-sensitive)
func (r *PostgresLinkRepository) FindByCode(ctx context.Context, code string) (*model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var link model.Link
	var digest *string
	err := r.db.QueryRow(ctx,
		`SELECT code, url, password_digest, expires_at, clicks, created_at
		 FROM links WHERE code = $1`,
		code,
	).Scan(&link.Code, &link.URL, &digest, &link.ExpiresAt, &link.Clicks, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Link not found", zap.String("code", code))
			return nil, ErrLinkNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("code", code))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if digest != nil {
		link.PasswordDigest = *digest
	}

	return &link, nil
}

// IncrementClicks bumps the click counter in a single atomic update,
// safe under concurrent redirects to the same code
func (r *PostgresLinkRepository) IncrementClicks(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx,
		"UPDATE links SET clicks = clicks + 1 WHERE code = $1", code)
	if err != nil {
		r.logger.Error("Failed to increment clicks", zap.Error(err), zap.String("code", code))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// CodeExists checks if a given code already exists
func (r *PostgresLinkRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM links WHERE code = $1)", code).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check code existence", zap.Error(err), zap.String("code", code))
		return false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return exists, nil
}
