package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Status == "" {
		e.Status = leave.StatusActive
	}
	var eligible sql.NullInt64
	if e.CompensationEligibleAfterMonths != nil {
		eligible = sql.NullInt64{Int64: int64(*e.CompensationEligibleAfterMonths), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (
			id, name, email, hire_date, status, policy_id, schedule_id, manager_id,
			compensation_eligible_after_months, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			hire_date = excluded.hire_date,
			status = excluded.status,
			policy_id = excluded.policy_id,
			schedule_id = excluded.schedule_id,
			manager_id = excluded.manager_id,
			compensation_eligible_after_months = excluded.compensation_eligible_after_months`,
		string(e.ID), e.Name, e.Email, formatDate(e.HireDate), string(e.Status),
		nullString(string(e.PolicyID)), nullString(e.ScheduleID), nullString(string(e.ManagerID)),
		eligible, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

const employeeColumns = `id, name, email, hire_date, status, policy_id, schedule_id, manager_id,
	compensation_eligible_after_months`

func scanEmployee(scan func(dest ...any) error) (leave.Employee, error) {
	var e leave.Employee
	var id, status string
	var hire, policy, schedule, manager sql.NullString
	var eligible sql.NullInt64
	if err := scan(&id, &e.Name, &e.Email, &hire, &status, &policy, &schedule, &manager, &eligible); err != nil {
		return e, err
	}
	e.ID = generic.EntityID(id)
	e.HireDate = parseDate(hire)
	e.Status = leave.EmployeeStatus(status)
	e.PolicyID = generic.PolicyID(policy.String)
	e.ScheduleID = schedule.String
	e.ManagerID = generic.EntityID(manager.String)
	if eligible.Valid {
		months := int(eligible.Int64)
		e.CompensationEligibleAfterMonths = &months
	}
	return e, nil
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EntityID) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", string(id))
	e, err := scanEmployee(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrEntityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return s.listEmployees(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	return s.listEmployees(ctx, "SELECT "+employeeColumns+" FROM employees WHERE status = ? ORDER BY id",
		string(leave.StatusActive))
}

func (s *Store) listEmployees(ctx context.Context, query string, args ...any) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var result []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// PUBLIC HOLIDAYS
// =============================================================================

// UpsertHoliday keys on the date: an existing holiday keeps its ID and takes
// the new name.
func (s *Store) UpsertHoliday(ctx context.Context, h generic.Holiday) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := h.Date.String()
	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM public_holidays WHERE date = ?", date).Scan(&existing)
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx, "UPDATE public_holidays SET name = ? WHERE id = ?", h.Name, existing)
		return false, err
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO public_holidays (id, date, name, created_at) VALUES (?, ?, ?, ?)",
		h.ID, date, h.Name, formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save holiday: %w", err)
	}
	return true, nil
}

func (s *Store) ListHolidays(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, date, name FROM public_holidays WHERE date >= ? AND date <= ? ORDER BY date",
		from.String(), to.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var result []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		var date string
		if err := rows.Scan(&h.ID, &date, &h.Name); err != nil {
			return nil, err
		}
		if h.Date, err = generic.ParseDate(date); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}
