package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/rushlobby/internal/lobby"
)

// ErrLaunchNotFound is returned when no archived launch matches a session id.
var ErrLaunchNotFound = errors.New("launch not found")

// ErrLaunchExists is returned when a session id has already been archived.
var ErrLaunchExists = errors.New("launch already archived")

// LaunchRepository stores launched session snapshots.
type LaunchRepository struct {
	db *pgxpool.Pool
}

// NewLaunchRepository creates a LaunchRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewLaunchRepository(db *pgxpool.Pool) *LaunchRepository {
	return &LaunchRepository{db: db}
}

// Insert archives a launch record.
//
// Precondition: rec.SessionID must be non-empty; rec.State must be a JSON document.
// Postcondition: The record is stored, or ErrLaunchExists if the session was archived before.
func (r *LaunchRepository) Insert(ctx context.Context, rec lobby.LaunchRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO session_launches
			(session_id, leader_name, single_mode, player_count, group_count, state, launched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.SessionID, rec.LeaderName, rec.Single, rec.PlayerCount, rec.GroupCount,
		rec.State, rec.LaunchedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrLaunchExists
		}
		return fmt.Errorf("inserting launch %s: %w", rec.SessionID, err)
	}
	return nil
}

// Get returns the archived launch for a session id.
//
// Postcondition: Returns the record, or ErrLaunchNotFound.
func (r *LaunchRepository) Get(ctx context.Context, sessionID string) (lobby.LaunchRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT session_id, leader_name, single_mode, player_count, group_count, state, launched_at
		FROM session_launches WHERE session_id = $1`,
		sessionID,
	)
	rec, err := scanLaunch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return lobby.LaunchRecord{}, ErrLaunchNotFound
	}
	if err != nil {
		return lobby.LaunchRecord{}, fmt.Errorf("loading launch %s: %w", sessionID, err)
	}
	return rec, nil
}

// Recent returns up to limit launches, newest first.
//
// Precondition: limit must be > 0.
func (r *LaunchRepository) Recent(ctx context.Context, limit int) ([]lobby.LaunchRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT session_id, leader_name, single_mode, player_count, group_count, state, launched_at
		FROM session_launches ORDER BY launched_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing launches: %w", err)
	}
	defer rows.Close()

	var out []lobby.LaunchRecord
	for rows.Next() {
		rec, err := scanLaunch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning launch: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanLaunch(row pgx.Row) (lobby.LaunchRecord, error) {
	var rec lobby.LaunchRecord
	err := row.Scan(
		&rec.SessionID, &rec.LeaderName, &rec.Single, &rec.PlayerCount, &rec.GroupCount,
		&rec.State, &rec.LaunchedAt,
	)
	return rec, err
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// SQLSTATE 23505 is unique_violation
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
