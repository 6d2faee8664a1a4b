// Package user persists account and uploaded-document metadata.
//
// This is plain relational bookkeeping next to the vector pipeline: who
// exists, and which files they uploaded. The document rows record uploads;
// the retrievable content itself lives in the vector store.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested user does not exist.
var ErrNotFound = errors.New("user not found")

// User is a registered account. The ID doubles as the tenant identifier for
// the vector index (see TenantID).
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// TenantID returns the identifier under which this user's vectors are
// namespaced.
func (u User) TenantID() string {
	return strconv.FormatInt(u.ID, 10)
}

// Document records one uploaded file.
type Document struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Store persists users and documents in PostgreSQL.
// Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store on the given pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Register creates the user or returns the existing one; registering the
// same username twice is idempotent.
func (s *Store) Register(ctx context.Context, username string) (User, error) {
	if username == "" {
		return User{}, errors.New("username must not be empty")
	}

	const query = `INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id, username, created_at`

	var u User
	if err := s.pool.QueryRow(ctx, query, username).Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
		return User{}, fmt.Errorf("registering user %q: %w", username, err)
	}

	s.logger.Debug("user registered", "id", u.ID, "username", u.Username)
	return u, nil
}

// Get returns the user by id.
func (s *Store) Get(ctx context.Context, id int64) (User, error) {
	const query = `SELECT id, username, created_at FROM users WHERE id = $1`

	var u User
	err := s.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return User{}, fmt.Errorf("loading user %d: %w", id, err)
	}
	return u, nil
}

// AddDocument records an upload for the user.
func (s *Store) AddDocument(ctx context.Context, userID int64, filename string) (Document, error) {
	const query = `INSERT INTO documents (user_id, filename) VALUES ($1, $2)
		RETURNING id, user_id, filename, uploaded_at`

	var d Document
	if err := s.pool.QueryRow(ctx, query, userID, filename).Scan(&d.ID, &d.UserID, &d.Filename, &d.UploadedAt); err != nil {
		return Document{}, fmt.Errorf("recording document %q for user %d: %w", filename, userID, err)
	}
	return d, nil
}

// ListDocuments returns the user's uploads, newest first.
func (s *Store) ListDocuments(ctx context.Context, userID int64) ([]Document, error) {
	const query = `SELECT id, user_id, filename, uploaded_at FROM documents
		WHERE user_id = $1 ORDER BY uploaded_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing documents for user %d: %w", userID, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.Filename, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents for user %d: %w", userID, err)
	}
	return docs, nil
}
