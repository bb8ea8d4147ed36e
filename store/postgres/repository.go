package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leave_types (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		string(lt.ID), lt.Name,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: leave type name %q is taken", generic.ErrConflict, lt.Name)
	}
	return err
}

func (s *Store) FindLeaveTypeByName(ctx context.Context, name string) (*leave.LeaveType, error) {
	return s.findLeaveType(ctx, "name = $1", name)
}

func (s *Store) GetLeaveType(ctx context.Context, id generic.ResourceID) (*leave.LeaveType, error) {
	return s.findLeaveType(ctx, "id = $1", string(id))
}

func (s *Store) findLeaveType(ctx context.Context, where, arg string) (*leave.LeaveType, error) {
	var id, name string
	err := s.pool.QueryRow(ctx, "SELECT id, name FROM leave_types WHERE "+where, arg).Scan(&id, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &leave.LeaveType{ID: generic.ResourceID(id), Name: name}, nil
}

func (s *Store) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM leave_types ORDER BY name")
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

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO policies (
				id, name, frequency, accrual_amount, accrual_unit, waiting_amount, waiting_unit,
				fiscal_year_start_month, allow_carry_over, max_carry_over, holiday_compensation,
				yearly_anchor, set_mode
			) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10::numeric, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				frequency = EXCLUDED.frequency,
				accrual_amount = EXCLUDED.accrual_amount,
				accrual_unit = EXCLUDED.accrual_unit,
				waiting_amount = EXCLUDED.waiting_amount,
				waiting_unit = EXCLUDED.waiting_unit,
				fiscal_year_start_month = EXCLUDED.fiscal_year_start_month,
				allow_carry_over = EXCLUDED.allow_carry_over,
				max_carry_over = EXCLUDED.max_carry_over,
				holiday_compensation = EXCLUDED.holiday_compensation,
				yearly_anchor = EXCLUDED.yearly_anchor,
				set_mode = EXCLUDED.set_mode,
				updated_at = NOW()`,
			string(p.ID), p.Name, string(p.Frequency), p.AccrualAmount.String(), string(p.AccrualUnit),
			p.WaitingPeriod.Amount, string(p.WaitingPeriod.Unit), int(p.FiscalYearStartMonth),
			p.AllowCarryOver, p.MaxCarryOver.String(), p.HolidayCompensation,
			string(p.YearlyAnchor), string(p.SetMode),
		)
		if err != nil {
			return fmt.Errorf("failed to save policy: %w", err)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM policy_rules WHERE policy_id = $1", string(p.ID)); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, r := range p.Rules {
			id := r.ID
			if id == 0 {
				id = int64(i + 1)
			}
			batch.Queue(`
				INSERT INTO policy_rules (policy_id, rule_id, years_of_service, rule_type, amount)
				VALUES ($1, $2, $3, $4, $5::numeric)`,
				string(p.ID), id, r.YearsOfService, string(r.Type), r.Amount.String(),
			)
		}
		err = tx.SendBatch(ctx, batch).Close()
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: policy %s has duplicate rule ids", generic.ErrConflict, p.ID)
		}
		return err
	})
}

const policyColumns = `id, name, frequency, accrual_amount::text, accrual_unit, waiting_amount, waiting_unit,
	fiscal_year_start_month, allow_carry_over, max_carry_over::text, holiday_compensation,
	yearly_anchor, set_mode`

func scanPolicy(row pgx.Row) (leave.Policy, error) {
	var p leave.Policy
	var id, frequency, amount, unit, waitUnit, maxCarry, anchor, setMode string
	var fiscal int16
	err := row.Scan(&id, &p.Name, &frequency, &amount, &unit, &p.WaitingPeriod.Amount, &waitUnit,
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
	p, err := scanPolicy(s.pool.QueryRow(ctx, "SELECT "+policyColumns+" FROM policies WHERE id = $1", string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}
	rules, err := s.policyRules(ctx, []generic.PolicyID{p.ID})
	if err != nil {
		return nil, err
	}
	p.Rules = rules[p.ID]
	return &p, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]leave.Policy, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+policyColumns+" FROM policies ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []leave.Policy
	var ids []generic.PolicyID
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rules, err := s.policyRules(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Rules = rules[result[i].ID]
	}
	return result, nil
}

func (s *Store) policyRules(ctx context.Context, ids []generic.PolicyID) (map[generic.PolicyID][]leave.Rule, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT policy_id, rule_id, years_of_service, rule_type, amount::text
		FROM policy_rules WHERE policy_id = ANY($1) ORDER BY policy_id, rule_id`,
		keys,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[generic.PolicyID][]leave.Rule)
	for rows.Next() {
		var policyID, ruleType, amount string
		var r leave.Rule
		if err := rows.Scan(&policyID, &r.ID, &r.YearsOfService, &ruleType, &amount); err != nil {
			return nil, err
		}
		if r.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		r.Type = leave.RuleType(ruleType)
		result[generic.PolicyID(policyID)] = append(result[generic.PolicyID(policyID)], r)
	}
	return result, rows.Err()
}

// =============================================================================
// WORK SCHEDULES
// =============================================================================

func (s *Store) SaveSchedule(ctx context.Context, ws leave.WorkSchedule) error {
	if err := ws.Validate(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO work_schedules (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			ws.ID, ws.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to save schedule: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM schedule_rules WHERE schedule_id = $1", ws.ID); err != nil {
			return err
		}
		for _, r := range ws.Rules {
			_, err := tx.Exec(ctx, `
				INSERT INTO schedule_rules (schedule_id, weekday, start_time, end_time)
				VALUES ($1, $2, $3, $4)`,
				ws.ID, int(r.Weekday), r.Start.String(), r.End.String(),
			)
			if err != nil {
				return fmt.Errorf("failed to save schedule rule: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*leave.WorkSchedule, error) {
	ws := leave.WorkSchedule{ID: id}
	err := s.pool.QueryRow(ctx, "SELECT name FROM work_schedules WHERE id = $1", id).Scan(&ws.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		"SELECT weekday, start_time, end_time FROM schedule_rules WHERE schedule_id = $1 ORDER BY weekday", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var weekday int16
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

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	if e.Status == "" {
		e.Status = leave.StatusActive
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO employees (
			id, name, email, hire_date, status, policy_id, schedule_id, manager_id,
			compensation_eligible_after_months
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			hire_date = EXCLUDED.hire_date,
			status = EXCLUDED.status,
			policy_id = EXCLUDED.policy_id,
			schedule_id = EXCLUDED.schedule_id,
			manager_id = EXCLUDED.manager_id,
			compensation_eligible_after_months = EXCLUDED.compensation_eligible_after_months`,
		string(e.ID), e.Name, e.Email, dateArg(e.HireDate), string(e.Status),
		nullString(string(e.PolicyID)), nullString(e.ScheduleID), nullString(string(e.ManagerID)),
		e.CompensationEligibleAfterMonths,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

const employeeColumns = `id, name, email, hire_date, status, policy_id, schedule_id, manager_id,
	compensation_eligible_after_months`

func scanEmployee(row pgx.Row) (leave.Employee, error) {
	var e leave.Employee
	var id, status string
	var hire *time.Time
	var policy, schedule, manager *string
	var eligible *int32
	if err := row.Scan(&id, &e.Name, &e.Email, &hire, &status, &policy, &schedule, &manager, &eligible); err != nil {
		return e, err
	}
	e.ID = generic.EntityID(id)
	e.HireDate = dateOf(hire)
	e.Status = leave.EmployeeStatus(status)
	e.PolicyID = generic.PolicyID(deref(policy))
	e.ScheduleID = deref(schedule)
	e.ManagerID = generic.EntityID(deref(manager))
	if eligible != nil {
		months := int(*eligible)
		e.CompensationEligibleAfterMonths = &months
	}
	return e, nil
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EntityID) (*leave.Employee, error) {
	e, err := scanEmployee(s.pool.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = $1", string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
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
	return s.listEmployees(ctx, "SELECT "+employeeColumns+" FROM employees WHERE status = $1 ORDER BY id",
		string(leave.StatusActive))
}

func (s *Store) listEmployees(ctx context.Context, query string, args ...any) ([]leave.Employee, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var result []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
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

// UpsertHoliday keys on the date. xmax = 0 distinguishes an insert from the
// update branch of the upsert.
func (s *Store) UpsertHoliday(ctx context.Context, h generic.Holiday) (bool, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO public_holidays (id, date, name) VALUES ($1, $2, $3)
		ON CONFLICT (date) DO UPDATE SET name = EXCLUDED.name
		RETURNING (xmax = 0)`,
		h.ID, h.Date.Time, h.Name,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to save holiday: %w", err)
	}
	return inserted, nil
}

func (s *Store) ListHolidays(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, date, name FROM public_holidays WHERE date BETWEEN $1 AND $2 ORDER BY date",
		from.Time, to.Time,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var result []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		var date time.Time
		if err := rows.Scan(&h.ID, &date, &h.Name); err != nil {
			return nil, err
		}
		h.Date = dateOf(&date)
		result = append(result, h)
	}
	return result, rows.Err()
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func (s *Store) SaveRequest(ctx context.Context, r leave.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leave_requests (
			id, employee_id, leave_type_id, start_at, end_at, reason, hours,
			status, decided_by, decided_at, comment, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			decided_by = EXCLUDED.decided_by,
			decided_at = EXCLUDED.decided_at,
			comment = EXCLUDED.comment`,
		r.ID, string(r.EmployeeID), string(r.LeaveTypeID), r.Start, r.End, r.Reason, r.Hours.String(),
		string(r.Status), nullString(string(r.DecidedBy)), r.DecidedAt, r.Comment, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	return nil
}

func (s *Store) DecideRequest(ctx context.Context, r leave.Request, from leave.RequestStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leave_requests
		SET status = $1, decided_by = $2, decided_at = $3, comment = $4
		WHERE id = $5 AND status = $6`,
		string(r.Status), nullString(string(r.DecidedBy)), r.DecidedAt, r.Comment, r.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to decide request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: request %s is no longer %s", leave.ErrInvalidTransition, r.ID, from)
	}
	return nil
}

const requestColumns = `r.id, r.employee_id, r.leave_type_id, r.start_at, r.end_at, r.reason, r.hours::text,
	r.status, r.decided_by, r.decided_at, r.comment, r.created_at`

func scanRequest(row pgx.Row) (leave.Request, error) {
	var r leave.Request
	var employee, leaveType, hours, status string
	var decidedBy *string
	err := row.Scan(&r.ID, &employee, &leaveType, &r.Start, &r.End, &r.Reason, &hours,
		&status, &decidedBy, &r.DecidedAt, &r.Comment, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	if r.Hours, err = parseDecimal(hours); err != nil {
		return r, err
	}
	r.EmployeeID = generic.EntityID(employee)
	r.LeaveTypeID = generic.ResourceID(leaveType)
	r.Status = leave.RequestStatus(status)
	r.DecidedBy = generic.EntityID(deref(decidedBy))
	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	return r, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	r, err := scanRequest(s.pool.QueryRow(ctx, "SELECT "+requestColumns+" FROM leave_requests r WHERE r.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.EmployeeID != "" {
		where = append(where, "r.employee_id = "+arg(string(filter.EmployeeID)))
	}
	if filter.ManagerID != "" {
		where = append(where, "e.manager_id = "+arg(string(filter.ManagerID)))
	}
	if filter.Status != "" {
		where = append(where, "r.status = "+arg(string(filter.Status)))
	}

	query := "SELECT " + requestColumns + " FROM leave_requests r LEFT JOIN employees e ON e.id = r.employee_id"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.created_at, r.id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var result []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// =============================================================================
// RUN HISTORY (engine.RunStore interface)
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run engine.RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_runs (
			id, process, triggered_by, window_from, window_to, status, started_at, finished_at,
			processed, skipped, already_done, failed, deferred, adjustments, hours, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::numeric, $16)`,
		run.ID, string(run.Process), run.Trigger, run.From.Time, run.To.Time, string(run.Status),
		run.StartedAt, run.FinishedAt, run.Processed, run.Skipped, run.AlreadyDone, run.Failed,
		run.Deferred, run.Adjustments, run.Hours.String(), run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]engine.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, process, triggered_by, window_from, window_to, status, started_at, finished_at,
		       processed, skipped, already_done, failed, deferred, adjustments, hours::text, error
		FROM job_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []engine.RunRecord
	for rows.Next() {
		var run engine.RunRecord
		var process, status, hours string
		var from, to time.Time
		err := rows.Scan(&run.ID, &process, &run.Trigger, &from, &to, &status, &run.StartedAt, &run.FinishedAt,
			&run.Processed, &run.Skipped, &run.AlreadyDone, &run.Failed, &run.Deferred,
			&run.Adjustments, &hours, &run.Error)
		if err != nil {
			return nil, err
		}
		if run.Hours, err = parseDecimal(hours); err != nil {
			return nil, err
		}
		run.Process = engine.Process(process)
		run.Status = engine.RunStatus(status)
		run.From = dateOf(&from)
		run.To = dateOf(&to)
		result = append(result, run)
	}
	return result, rows.Err()
}

var (
	_ leave.Repository = (*Store)(nil)
	_ engine.RunStore  = (*Store)(nil)
)
