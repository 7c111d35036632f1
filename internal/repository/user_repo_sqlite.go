package repository

import (
	"context"
	"database/sql"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"localchat/internal/domain"
)

// SQLiteUserRepository implementa UserRepository sobre un archivo SQLite local.
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, username, password_hash, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Email,
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if isSQLiteUniqueViolation(err) {
		return ErrUserExists
	}
	return err
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, username, password_hash, email, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	return r.scanOne(ctx, query, id)
}

func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	const query = `
		SELECT id, username, password_hash, email, created_at, updated_at
		FROM users
		WHERE username = ?
	`
	return r.scanOne(ctx, query, username)
}

func (r *SQLiteUserRepository) scanOne(ctx context.Context, query string, arg string) (domain.User, error) {
	var (
		u     domain.User
		email sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&email,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	return u, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
