package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Salint/oauth2-system/internal/models"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour spoken by SQLStorage.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS oauth_clients (
		client_id TEXT PRIMARY KEY,
		client_secret TEXT NOT NULL DEFAULT '',
		redirect_uris TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash BLOB NOT NULL,
		allowed_scopes TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS authorization_codes (
		code TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		redirect_uri TEXT NOT NULL,
		scope TEXT NOT NULL,
		user_id TEXT NOT NULL,
		code_challenge TEXT NOT NULL DEFAULT '',
		code_challenge_method TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		refresh_token TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		aud TEXT NOT NULL,
		scope TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS oauth_clients (
		client_id TEXT PRIMARY KEY,
		client_secret TEXT NOT NULL DEFAULT '',
		redirect_uris TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash BYTEA NOT NULL,
		allowed_scopes TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS authorization_codes (
		code TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		redirect_uri TEXT NOT NULL,
		scope TEXT NOT NULL,
		user_id TEXT NOT NULL,
		code_challenge TEXT NOT NULL DEFAULT '',
		code_challenge_method TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		refresh_token TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		aud TEXT NOT NULL,
		scope TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
}

// SQLStorage stores credentials in a relational database. Redemption and
// rotation run in a transaction around a DELETE whose affected rows decide
// the winner, and the users table carries a UNIQUE email column.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStorage opens conn with the driver for dialect and creates the
// tables if they do not exist.
func OpenSQLStorage(ctx context.Context, dialect Dialect, conn string) (*SQLStorage, error) {
	db, err := sql.Open(string(dialect), conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// A single connection keeps in-memory databases shared and
		// serializes writers.
		db.SetMaxOpenConns(1)
	}

	s := NewSQLStorage(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStorage wraps an existing connection pool.
func NewSQLStorage(db *sql.DB, dialect Dialect) *SQLStorage {
	return &SQLStorage{db: db, dialect: dialect}
}

// Migrate creates the credential tables.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT client_id, client_secret, redirect_uris FROM oauth_clients WHERE client_id = ?"), clientID)

	var (
		client models.Client
		uris   string
	)
	if err := row.Scan(&client.ID, &client.Secret, &uris); err != nil {
		return nil, s.translateError(err)
	}
	if err := json.Unmarshal([]byte(uris), &client.RedirectURIs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal redirect_uris: %w", err)
	}
	return &client, nil
}

func (s *SQLStorage) SaveClient(ctx context.Context, client *models.Client) error {
	uris, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("failed to marshal redirect_uris: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO oauth_clients (client_id, client_secret, redirect_uris)
		VALUES (?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET client_secret = excluded.client_secret, redirect_uris = excluded.redirect_uris`),
		client.ID, client.Secret, string(uris))
	if err != nil {
		return fmt.Errorf("failed to save client: %w", s.translateError(err))
	}
	return nil
}

const userColumns = "user_id, email, password_hash, allowed_scopes, created_at"

func (s *SQLStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE user_id = ?", userID)
}

func (s *SQLStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

func (s *SQLStorage) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		user      models.User
		scopes    string
		createdAt int64
	)
	row := s.db.QueryRowContext(ctx, s.rebind(query), arg)
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &scopes, &createdAt); err != nil {
		return nil, s.translateError(err)
	}
	if err := json.Unmarshal([]byte(scopes), &user.AllowedScopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed_scopes: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}

func (s *SQLStorage) CreateUser(ctx context.Context, user *models.User) error {
	scopes, err := json.Marshal(user.AllowedScopes)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed_scopes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind("INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?)"),
		user.ID, user.Email, user.PasswordHash, string(scopes), user.CreatedAt.UnixMilli())
	if err != nil {
		return s.translateError(err)
	}
	return nil
}

func (s *SQLStorage) SaveAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error {
	scope, err := json.Marshal(code.Scope)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO authorization_codes
		(code, client_id, redirect_uri, scope, user_id, code_challenge, code_challenge_method, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		code.Code, code.ClientID, code.RedirectURI, string(scope), code.UserID,
		code.CodeChallenge, code.CodeChallengeMethod, code.CreatedAt.UnixMilli(), code.ExpiresAt.UnixMilli())
	if err != nil {
		return s.translateError(err)
	}
	return nil
}

func (s *SQLStorage) GetAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT code, client_id, redirect_uri, scope, user_id,
		code_challenge, code_challenge_method, created_at, expires_at
		FROM authorization_codes WHERE code = ?`), code)

	var (
		authCode             models.AuthorizationCode
		scope                string
		createdAt, expiresAt int64
	)
	err := row.Scan(&authCode.Code, &authCode.ClientID, &authCode.RedirectURI, &scope, &authCode.UserID,
		&authCode.CodeChallenge, &authCode.CodeChallengeMethod, &createdAt, &expiresAt)
	if err != nil {
		return nil, s.translateError(err)
	}
	if err := json.Unmarshal([]byte(scope), &authCode.Scope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scope: %w", err)
	}
	authCode.CreatedAt = fromMillis(createdAt)
	authCode.ExpiresAt = fromMillis(expiresAt)
	return &authCode, nil
}

func (s *SQLStorage) RedeemAuthorizationCode(ctx context.Context, code string, refresh *models.RefreshToken) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM authorization_codes WHERE code = ?"), code)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return s.insertRefreshToken(ctx, tx, refresh)
	})
}

func (s *SQLStorage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return s.translateError(s.insertRefreshToken(ctx, s.db, token))
}

func (s *SQLStorage) RotateRefreshToken(ctx context.Context, token, clientID string, next Rotation) (*models.RefreshToken, error) {
	var old *models.RefreshToken
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`DELETE FROM refresh_tokens WHERE refresh_token = ? AND client_id = ?
			RETURNING refresh_token, client_id, user_id, aud, scope, created_at, expires_at`), token, clientID)

		var (
			t                    models.RefreshToken
			scope                string
			createdAt, expiresAt int64
		)
		if err := row.Scan(&t.Token, &t.ClientID, &t.UserID, &t.Aud, &scope, &createdAt, &expiresAt); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(scope), &t.Scope); err != nil {
			return fmt.Errorf("failed to unmarshal scope: %w", err)
		}
		t.CreatedAt = fromMillis(createdAt)
		t.ExpiresAt = fromMillis(expiresAt)
		old = &t

		if next.Reject != nil && next.Reject(old) {
			return nil
		}
		return s.insertRefreshToken(ctx, tx, next.Replacement(old))
	})
	if err != nil {
		return nil, err
	}
	return old, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStorage) insertRefreshToken(ctx context.Context, db execer, token *models.RefreshToken) error {
	scope, err := json.Marshal(token.Scope)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}
	_, err = db.ExecContext(ctx, s.rebind(`INSERT INTO refresh_tokens
		(refresh_token, client_id, user_id, aud, scope, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		token.Token, token.ClientID, token.UserID, token.Aud, string(scope),
		token.CreatedAt.UnixMilli(), token.ExpiresAt.UnixMilli())
	return err
}

// inTx runs fn in a transaction, committing only if fn succeeds. Errors are
// translated to the storage sentinels.
func (s *SQLStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.translateError(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return s.translateError(err)
	}
	if err := tx.Commit(); err != nil {
		return s.translateError(err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return ErrAlreadyExists
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrAlreadyExists
	}
	return err
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ CredentialStorage = (*SQLStorage)(nil)
