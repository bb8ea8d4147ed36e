package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func (s *Store) SaveRequest(ctx context.Context, r leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var decidedAt sql.NullString
	if r.DecidedAt != nil {
		decidedAt = nullString(formatTime(*r.DecidedAt))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_requests (
			id, employee_id, leave_type_id, start_at, end_at, reason, hours,
			status, decided_by, decided_at, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at,
			comment = excluded.comment`,
		r.ID, string(r.EmployeeID), string(r.LeaveTypeID), formatTime(r.Start), formatTime(r.End),
		r.Reason, r.Hours.String(), string(r.Status), nullString(string(r.DecidedBy)), decidedAt,
		r.Comment, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	return nil
}

func (s *Store) DecideRequest(ctx context.Context, r leave.Request, from leave.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var decidedAt sql.NullString
	if r.DecidedAt != nil {
		decidedAt = nullString(formatTime(*r.DecidedAt))
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, decided_by = ?, decided_at = ?, comment = ?
		WHERE id = ? AND status = ?`,
		string(r.Status), nullString(string(r.DecidedBy)), decidedAt, r.Comment, r.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to decide request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to decide request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: request %s is no longer %s", leave.ErrInvalidTransition, r.ID, from)
	}
	return nil
}

const requestColumns = `r.id, r.employee_id, r.leave_type_id, r.start_at, r.end_at, r.reason, r.hours,
	r.status, r.decided_by, r.decided_at, r.comment, r.created_at`

func scanRequest(scan func(dest ...any) error) (leave.Request, error) {
	var r leave.Request
	var employee, leaveType, start, end, hours, status, createdAt string
	var decidedBy, decidedAt sql.NullString
	err := scan(&r.ID, &employee, &leaveType, &start, &end, &r.Reason, &hours,
		&status, &decidedBy, &decidedAt, &r.Comment, &createdAt)
	if err != nil {
		return r, err
	}
	if r.Hours, err = parseDecimal(hours); err != nil {
		return r, err
	}
	r.EmployeeID = generic.EntityID(employee)
	r.LeaveTypeID = generic.ResourceID(leaveType)
	r.Start = parseTime(start)
	r.End = parseTime(end)
	r.Status = leave.RequestStatus(status)
	r.DecidedBy = generic.EntityID(decidedBy.String)
	if decidedAt.Valid {
		t := parseTime(decidedAt.String)
		r.DecidedAt = &t
	}
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM leave_requests r WHERE r.id = ?", id)
	r, err := scanRequest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRequests joins employees so a manager sees their reports' requests.
func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.EmployeeID != "" {
		where = append(where, "r.employee_id = ?")
		args = append(args, string(filter.EmployeeID))
	}
	if filter.ManagerID != "" {
		where = append(where, "e.manager_id = ?")
		args = append(args, string(filter.ManagerID))
	}
	if filter.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + requestColumns + " FROM leave_requests r LEFT JOIN employees e ON e.id = r.employee_id"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.created_at, r.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var result []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

var (
	_ leave.Repository = (*Store)(nil)
	_ engine.RunStore  = (*Store)(nil)
)
