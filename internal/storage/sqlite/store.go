// Package sqlite persists arrangements, refresh token grants and assertion
// replay state in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/datarightlab/fapi-op/pkg/op"
)

type Store struct {
	db  *sql.DB
	dsn string
}

var (
	_ op.ArrangementStore = (*Store)(nil)
	_ op.TokenReplayCache = (*Store)(nil)
)

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) GetArrangement(ctx context.Context, id string) (*op.ArrangementGrant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, subject, scopes, expires_at FROM arrangements WHERE id = ?`, id)
	grant := new(op.ArrangementGrant)
	var scopes string
	var expiresAt sql.NullTime
	err := row.Scan(&grant.ID, &grant.ClientID, &grant.Subject, &scopes, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, op.ErrArrangementNotFound
	}
	if err != nil {
		return nil, err
	}
	grant.Scopes = splitScopes(scopes)
	if expiresAt.Valid {
		grant.Expiry = expiresAt.Time
	}
	return grant, nil
}

func (s *Store) CreateArrangement(ctx context.Context, grant *op.ArrangementGrant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO arrangements (id, client_id, subject, scopes, expires_at) VALUES (?, ?, ?, ?, ?)`,
		grant.ID, grant.ClientID, grant.Subject, strings.Join(grant.Scopes, " "), nullTime(grant.Expiry))
	return err
}

// DeleteArrangementIfOwned deletes the arrangement in a single conditional
// statement. The ownership condition lives in the WHERE clause, so the check
// and the delete cannot be interleaved with a concurrent revocation.
func (s *Store) DeleteArrangementIfOwned(ctx context.Context, id, clientID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM arrangements WHERE id = ? AND client_id = ?`, id, clientID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) DeleteRelatedGrants(ctx context.Context, arrangementID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_token_grants WHERE arrangement_id = ?`, arrangementID)
	return err
}

func (s *Store) GetRefreshTokenGrant(ctx context.Context, id string) (*op.RefreshTokenGrant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, arrangement_id, client_id, subject, scopes, expires_at FROM refresh_token_grants WHERE id = ?`, id)
	grant := new(op.RefreshTokenGrant)
	var scopes string
	var expiresAt sql.NullTime
	err := row.Scan(&grant.ID, &grant.ArrangementID, &grant.ClientID, &grant.Subject, &scopes, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, op.ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	grant.Scopes = splitScopes(scopes)
	if expiresAt.Valid {
		grant.Expiry = expiresAt.Time
	}
	return grant, nil
}

func (s *Store) CreateRefreshTokenGrant(ctx context.Context, grant *op.RefreshTokenGrant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_token_grants (id, arrangement_id, client_id, subject, scopes, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		grant.ID, grant.ArrangementID, grant.ClientID, grant.Subject, strings.Join(grant.Scopes, " "), nullTime(grant.Expiry))
	return err
}

func (s *Store) DeleteRefreshTokenGrantIfOwned(ctx context.Context, id, clientID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_token_grants WHERE id = ? AND client_id = ?`, id, clientID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TryAdd relies on the primary key conflict to make the insert-if-absent
// atomic: of two concurrent inserts of the same jti, exactly one affects a row.
func (s *Store) TryAdd(ctx context.Context, jti string, expiry time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assertion_jtis (jti, expires_at) VALUES (?, ?)
		 ON CONFLICT (jti) DO NOTHING`, jti, expiry)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) TryFind(ctx context.Context, jti string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM assertion_jtis WHERE jti = ?`, jti)
	var expiresAt time.Time
	err := row.Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return expiresAt.After(time.Now()), nil
}

// PurgeExpired deletes expired jtis and grants. Intended to be run
// periodically by the embedding application.
func (s *Store) PurgeExpired(ctx context.Context) error {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assertion_jtis WHERE expires_at < ?`, now); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_token_grants WHERE expires_at IS NOT NULL AND expires_at < ?`, now); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM arrangements WHERE expires_at IS NOT NULL AND expires_at < ?`, now)
	return err
}

func splitScopes(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
