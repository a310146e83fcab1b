package storage

import (
	"codewords/codenames"
	"codewords/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

func wrapUnexpected(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
}

func (pgr *PostgresRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	user := domain.User{Username: username}

	row := pgr.pool.QueryRow(ctx, "SELECT id, password_hash FROM users WHERE username = $1", username)

	err := row.Scan(&user.Id, &user.PasswordHash)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, wrapUnexpected(err)
	}

	return user, nil
}

func (pgr *PostgresRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{Id: id}

	row := pgr.pool.QueryRow(ctx, "SELECT username, password_hash FROM users WHERE id = $1", id)

	err := row.Scan(&user.Username, &user.PasswordHash)

	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return domain.User{}, domain.ErrUserNotFound
		// "22P02" is invalid_text_representation, a malformed uuid can't match anyone
		case errors.As(err, &pgErr) && pgErr.Code == "22P02":
			return domain.User{}, domain.ErrUserNotFound
		default:
			return domain.User{}, wrapUnexpected(err)
		}
	}

	return user, nil
}

func (pgr *PostgresRepo) CreateUser(ctx context.Context, username string, passwordHash string) (string, error) {
	row := pgr.pool.QueryRow(ctx, "INSERT INTO users(username, password_hash) VALUES($1, $2) RETURNING id", username, passwordHash)

	var id string
	err := row.Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// "23505" is the PostgreSQL error code for unique_violation
			if pgErr.Code == "23505" {
				return "", domain.ErrDuplicateUsername
			}
		}
		return "", wrapUnexpected(err)
	}

	return id, nil
}

// CreateGame writes the durable record that lets players join gameId.
func (pgr *PostgresRepo) CreateGame(ctx context.Context, gameId, hostId string) error {
	_, err := pgr.pool.Exec(ctx, "INSERT INTO games(id, host_id) VALUES($1, $2)", gameId, hostId)
	if err != nil {
		return wrapUnexpected(err)
	}
	return nil
}

func (pgr *PostgresRepo) GameExists(ctx context.Context, gameId string) (bool, error) {
	var exists bool
	row := pgr.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM games WHERE id = $1)", gameId)
	if err := row.Scan(&exists); err != nil {
		return false, wrapUnexpected(err)
	}
	return exists, nil
}

// GetSession loads the serialized session blob stored under id.
func (pgr *PostgresRepo) GetSession(ctx context.Context, id string) (*codenames.Session, error) {
	var state []byte
	row := pgr.pool.QueryRow(ctx, "SELECT state FROM sessions WHERE id = $1", id)
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, wrapUnexpected(err)
	}
	return decodeSession(state)
}

// SetSession upserts the whole session; the last write wins.
func (pgr *PostgresRepo) SetSession(ctx context.Context, session *codenames.Session) error {
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
	_, err = pgr.pool.Exec(ctx, `
		INSERT INTO sessions(id, state, updated_at) VALUES($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		session.Id, state)
	if err != nil {
		return wrapUnexpected(err)
	}
	return nil
}

func (pgr *PostgresRepo) DeleteSession(ctx context.Context, id string) error {
	if _, err := pgr.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id); err != nil {
		return wrapUnexpected(err)
	}
	return nil
}

func decodeSession(state []byte) (*codenames.Session, error) {
	session := &codenames.Session{}
	if err := json.Unmarshal(state, session); err != nil {
		return nil, fmt.Errorf("%w: corrupted session: %w", domain.UnexpectedDatabaseError, err)
	}
	return session, nil
}
