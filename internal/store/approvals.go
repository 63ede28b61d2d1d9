package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stopplanner.sistper.org/internal/models"
)

// ApproveRequests persists stop and marks every request in ids approved, in
// one transaction. If any request is missing or no longer pending nothing
// is written.
func (s *Store) ApproveRequests(ctx context.Context, stop models.ApprovedStop, ids []int64) (models.ApprovedStop, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ApprovedStop{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if err := s.transition(ctx, tx, id, models.StatusApproved); err != nil {
			return models.ApprovedStop{}, err
		}
	}

	stop.ApprovedAt = time.Now().UTC()
	var insertAfter sql.NullInt64
	if stop.InsertAfter != nil {
		insertAfter = sql.NullInt64{Int64: int64(*stop.InsertAfter), Valid: true}
	}
	var requestID sql.NullInt64
	if stop.RequestID != nil {
		requestID = sql.NullInt64{Int64: *stop.RequestID, Valid: true}
	}

	query := s.rebind(`INSERT INTO approved_stops (line_code, lat, lon, insert_after, approved_at, request_id)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	if err := tx.QueryRowContext(ctx, query,
		stop.LineCode, stop.Lat, stop.Lon, insertAfter, stop.ApprovedAt, requestID,
	).Scan(&stop.ID); err != nil {
		return models.ApprovedStop{}, fmt.Errorf("failed to insert approved stop: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.ApprovedStop{}, fmt.Errorf("failed to commit approval: %w", err)
	}
	return stop, nil
}

// ListApproved returns the approved stops of a line in approval order.
func (s *Store) ListApproved(ctx context.Context, lineCode string) ([]models.ApprovedStop, error) {
	query := s.rebind(`SELECT id, line_code, lat, lon, insert_after, approved_at, request_id
		FROM approved_stops WHERE line_code = ? ORDER BY approved_at ASC, id ASC`)
	rows, err := s.db.QueryContext(ctx, query, lineCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved stops: %w", err)
	}
	defer rows.Close()

	stops := []models.ApprovedStop{}
	for rows.Next() {
		var (
			a           models.ApprovedStop
			insertAfter sql.NullInt64
			requestID   sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.LineCode, &a.Lat, &a.Lon, &insertAfter, &a.ApprovedAt, &requestID); err != nil {
			return nil, fmt.Errorf("failed to scan approved stop: %w", err)
		}
		if insertAfter.Valid {
			v := int(insertAfter.Int64)
			a.InsertAfter = &v
		}
		if requestID.Valid {
			v := requestID.Int64
			a.RequestID = &v
		}
		stops = append(stops, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return stops, nil
}
