package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stopplanner.sistper.org/internal/models"
)

const requestColumns = `id, line_code, lat, lon, note, preferred_days, preferred_time, status, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (models.StopRequest, error) {
	var r models.StopRequest
	err := row.Scan(&r.ID, &r.LineCode, &r.Lat, &r.Lon, &r.Note, &r.PreferredDays, &r.PreferredTime, &r.Status, &r.CreatedAt)
	return r, err
}

// CreateRequest stores a new pending request and returns it with its id and
// creation time filled in.
func (s *Store) CreateRequest(ctx context.Context, r models.StopRequest) (models.StopRequest, error) {
	r.Status = models.StatusPending
	r.CreatedAt = time.Now().UTC()

	query := s.rebind(`INSERT INTO stop_requests (line_code, lat, lon, note, preferred_days, preferred_time, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowContext(ctx, query,
		r.LineCode, r.Lat, r.Lon, r.Note, r.PreferredDays, r.PreferredTime, r.Status, r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		return models.StopRequest{}, fmt.Errorf("failed to insert stop request: %w", err)
	}
	return r, nil
}

// GetRequest returns the request with the given id or ErrNotFound.
func (s *Store) GetRequest(ctx context.Context, id int64) (models.StopRequest, error) {
	query := s.rebind(`SELECT ` + requestColumns + ` FROM stop_requests WHERE id = ?`)
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.StopRequest{}, ErrNotFound
	}
	if err != nil {
		return models.StopRequest{}, fmt.Errorf("failed to get stop request %d: %w", id, err)
	}
	return r, nil
}

// ListRequests returns requests with the given status. limit <= 0 means no limit.
func (s *Store) ListRequests(ctx context.Context, status string, limit int, newestFirst bool) ([]models.StopRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM stop_requests WHERE status = ?`
	if newestFirst {
		query += ` ORDER BY created_at DESC, id DESC`
	} else {
		query += ` ORDER BY created_at ASC, id ASC`
	}
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRequests(ctx, s.rebind(query), args...)
}

// ListPending returns every pending request ordered by line, then age.
func (s *Store) ListPending(ctx context.Context) ([]models.StopRequest, error) {
	query := s.rebind(`SELECT ` + requestColumns + ` FROM stop_requests
		WHERE status = ? ORDER BY line_code ASC, created_at ASC, id ASC`)
	return s.queryRequests(ctx, query, models.StatusPending)
}

// ListPendingForLine returns the pending requests of one line, oldest first.
func (s *Store) ListPendingForLine(ctx context.Context, lineCode string) ([]models.StopRequest, error) {
	query := s.rebind(`SELECT ` + requestColumns + ` FROM stop_requests
		WHERE status = ? AND line_code = ? ORDER BY created_at ASC, id ASC`)
	return s.queryRequests(ctx, query, models.StatusPending, lineCode)
}

// CountPending returns the number of pending requests on a line.
func (s *Store) CountPending(ctx context.Context, lineCode string) (int, error) {
	var n int
	query := s.rebind(`SELECT COUNT(*) FROM stop_requests WHERE status = ? AND line_code = ?`)
	if err := s.db.QueryRowContext(ctx, query, models.StatusPending, lineCode).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending requests: %w", err)
	}
	return n, nil
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]models.StopRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stop requests: %w", err)
	}
	defer rows.Close()

	requests := []models.StopRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stop request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return requests, nil
}

// RejectRequest marks a pending request as rejected.
func (s *Store) RejectRequest(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.transition(ctx, tx, id, models.StatusRejected); err != nil {
		return err
	}
	return tx.Commit()
}

// transition moves a pending request to status inside tx. It reports
// ErrNotFound or ErrNotPending when the request cannot move.
func (s *Store) transition(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	res, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE stop_requests SET status = ? WHERE id = ? AND status = ?`),
		status, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to update stop request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update stop request %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM stop_requests WHERE id = ?`), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("stop request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up stop request %d: %w", id, err)
	}
	return fmt.Errorf("stop request %d: %w", id, ErrNotPending)
}
