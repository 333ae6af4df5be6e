package account

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"wetalk/internal/pkg/logx"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	insertAccountQuery = `INSERT INTO accounts (username, password_hash) VALUES ($1, $2) RETURNING image_id`
	selectAccountQuery = `SELECT image_id, password_hash FROM accounts WHERE username = $1`
)

// PostgresStore keeps accounts in PostgreSQL so registration survives
// process restarts. Image ids come from the accounts sequence; the
// migration seeds the bootstrap "Group" row as id 1.
type PostgresStore struct {
	db       *sql.DB
	presence PresenceChecker

	// mu serializes Verify calls so the credential check and the presence
	// check form one critical section.
	mu sync.Mutex

	logger zerolog.Logger
}

// NewPostgresStore wraps an existing database handle. Used directly by tests;
// production wiring goes through Open.
func NewPostgresStore(db *sql.DB, presence PresenceChecker) *PostgresStore {
	return &PostgresStore{
		db:       db,
		presence: presence,
		logger:   logx.Logger().With().Str("component", "PostgresStore").Logger(),
	}
}

// Open connects to PostgreSQL, applies pending migrations, and returns the store.
func Open(dsn string, presence PresenceChecker) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return NewPostgresStore(db, presence), nil
}

// Close releases the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Register creates a new account row and returns its image id.
func (s *PostgresStore) Register(ctx context.Context, username, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	var imageID int64
	err = s.db.QueryRowContext(ctx, insertAccountQuery, username, string(hash)).Scan(&imageID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateUsername
		}
		return 0, err
	}

	s.logger.Info().Str("username", username).Int64("image_id", imageID).Msg("Account registered.")

	return imageID, nil
}

// Verify checks credentials and presence under one critical section.
func (s *PostgresStore) Verify(ctx context.Context, username, password string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var imageID int64
	var hash string

	err := s.db.QueryRowContext(ctx, selectAccountQuery, username).Scan(&imageID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, err
	}

	if hash == "" {
		// Bootstrap row, not a client account.
		return 0, ErrWrongCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return 0, ErrWrongCredentials
	}

	if s.presence != nil && s.presence.IsPresent(username) {
		return 0, ErrCurrentlyOnline
	}

	return imageID, nil
}

// runMigrations applies all pending migrations from the embedded file system.
func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
