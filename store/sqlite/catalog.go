package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// SaveLeaveType creates or renames a leave type. A name already used by
// another leave type returns generic.ErrConflict.
func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_types (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		string(lt.ID), lt.Name, formatTime(time.Now()),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: leave type name %q is taken", generic.ErrConflict, lt.Name)
	}
	return err
}

func (s *Store) FindLeaveTypeByName(ctx context.Context, name string) (*leave.LeaveType, error) {
	return s.findLeaveType(ctx, "name = ?", name)
}

func (s *Store) GetLeaveType(ctx context.Context, id generic.ResourceID) (*leave.LeaveType, error) {
	return s.findLeaveType(ctx, "id = ?", string(id))
}

func (s *Store) findLeaveType(ctx context.Context, where string, arg string) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id, name string
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM leave_types WHERE "+where, arg).Scan(&id, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &leave.LeaveType{ID: generic.ResourceID(id), Name: name}, nil
}

func (s *Store) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM leave_types ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []leave.LeaveType
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		result = append(result, leave.LeaveType{ID: generic.ResourceID(id), Name: name})
	}
	return result, rows.Err()
}

// =============================================================================
// POLICIES
// =============================================================================

// SavePolicy upserts the policy and replaces its rules. Rules saved with
// ID 0 are numbered by position, starting at 1.
func (s *Store) SavePolicy(ctx context.Context, p leave.Policy) error {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO policies (
			id, name, frequency, accrual_amount, accrual_unit, waiting_amount, waiting_unit,
			fiscal_year_start_month, allow_carry_over, max_carry_over, holiday_compensation,
			yearly_anchor, set_mode, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			frequency = excluded.frequency,
			accrual_amount = excluded.accrual_amount,
			accrual_unit = excluded.accrual_unit,
			waiting_amount = excluded.waiting_amount,
			waiting_unit = excluded.waiting_unit,
			fiscal_year_start_month = excluded.fiscal_year_start_month,
			allow_carry_over = excluded.allow_carry_over,
			max_carry_over = excluded.max_carry_over,
			holiday_compensation = excluded.holiday_compensation,
			yearly_anchor = excluded.yearly_anchor,
			set_mode = excluded.set_mode,
			updated_at = excluded.updated_at`,
		string(p.ID), p.Name, string(p.Frequency), p.AccrualAmount.String(), string(p.AccrualUnit),
		p.WaitingPeriod.Amount, string(p.WaitingPeriod.Unit), int(p.FiscalYearStartMonth),
		p.AllowCarryOver, p.MaxCarryOver.String(), p.HolidayCompensation,
		string(p.YearlyAnchor), string(p.SetMode), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM policy_rules WHERE policy_id = ?", string(p.ID)); err != nil {
		return err
	}
	for i, r := range p.Rules {
		id := r.ID
		if id == 0 {
			id = int64(i + 1)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO policy_rules (policy_id, rule_id, years_of_service, rule_type, amount)
			VALUES (?, ?, ?, ?, ?)`,
			string(p.ID), id, r.YearsOfService, string(r.Type), r.Amount.String(),
		)
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: policy %s has duplicate rule id %d", generic.ErrConflict, p.ID, id)
		}
		if err != nil {
			return fmt.Errorf("failed to save policy rule: %w", err)
		}
	}
	return tx.Commit()
}

const policyColumns = `id, name, frequency, accrual_amount, accrual_unit, waiting_amount, waiting_unit,
	fiscal_year_start_month, allow_carry_over, max_carry_over, holiday_compensation,
	yearly_anchor, set_mode`

func scanPolicy(scan func(dest ...any) error) (leave.Policy, error) {
	var p leave.Policy
	var id, frequency, amount, unit, waitUnit, maxCarry, anchor, setMode string
	var fiscal int
	err := scan(&id, &p.Name, &frequency, &amount, &unit, &p.WaitingPeriod.Amount, &waitUnit,
		&fiscal, &p.AllowCarryOver, &maxCarry, &p.HolidayCompensation, &anchor, &setMode)
	if err != nil {
		return p, err
	}
	if p.AccrualAmount, err = parseDecimal(amount); err != nil {
		return p, err
	}
	if p.MaxCarryOver, err = parseDecimal(maxCarry); err != nil {
		return p, err
	}
	p.ID = generic.PolicyID(id)
	p.Frequency = generic.AccrualFrequency(frequency)
	p.AccrualUnit = generic.Unit(unit)
	p.WaitingPeriod.Unit = leave.WaitingUnit(waitUnit)
	p.FiscalYearStartMonth = time.Month(fiscal)
	p.YearlyAnchor = leave.YearlyAnchor(anchor)
	p.SetMode = leave.SetMode(setMode)
	return p, nil
}

func (s *Store) GetPolicy(ctx context.Context, id generic.PolicyID) (*leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+policyColumns+" FROM policies WHERE id = ?", string(id))
	p, err := scanPolicy(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Rules, err = s.policyRules(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+policyColumns+" FROM policies ORDER BY id")
	if err != nil {
		return nil, err
	}
	var result []leave.Policy
	for rows.Next() {
		p, err := scanPolicy(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rules are loaded after the cursor is closed; there is only one connection.
	for i := range result {
		if result[i].Rules, err = s.policyRules(ctx, result[i].ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) policyRules(ctx context.Context, id generic.PolicyID) ([]leave.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, years_of_service, rule_type, amount
		FROM policy_rules WHERE policy_id = ? ORDER BY rule_id`,
		string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []leave.Rule
	for rows.Next() {
		var r leave.Rule
		var ruleType, amount string
		if err := rows.Scan(&r.ID, &r.YearsOfService, &ruleType, &amount); err != nil {
			return nil, err
		}
		if r.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		r.Type = leave.RuleType(ruleType)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// =============================================================================
// WORK SCHEDULES
// =============================================================================

// SaveSchedule upserts the schedule and replaces its weekday rules.
func (s *Store) SaveSchedule(ctx context.Context, ws leave.WorkSchedule) error {
	if err := ws.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO work_schedules (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		ws.ID, ws.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schedule_rules WHERE schedule_id = ?", ws.ID); err != nil {
		return err
	}
	for _, r := range ws.Rules {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_rules (schedule_id, weekday, start_time, end_time)
			VALUES (?, ?, ?, ?)`,
			ws.ID, int(r.Weekday), r.Start.String(), r.End.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to save schedule rule: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*leave.WorkSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws := leave.WorkSchedule{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT name FROM work_schedules WHERE id = ?", id).Scan(&ws.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT weekday, start_time, end_time FROM schedule_rules WHERE schedule_id = ? ORDER BY weekday", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var weekday int
		var start, end string
		if err := rows.Scan(&weekday, &start, &end); err != nil {
			return nil, err
		}
		r := leave.ScheduleRule{Weekday: time.Weekday(weekday)}
		if r.Start, err = leave.ParseClockTime(start); err != nil {
			return nil, err
		}
		if r.End, err = leave.ParseClockTime(end); err != nil {
			return nil, err
		}
		ws.Rules = append(ws.Rules, r)
	}
	return &ws, rows.Err()
}
