package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SEED DOCUMENT
// =============================================================================

// Document is a complete seed file. Sections are applied in dependency
// order: leave types, schedules, policies, employees, holidays.
type Document struct {
	LeaveTypes []LeaveTypeDoc `yaml:"leave_types,omitempty" json:"leave_types,omitempty" validate:"dive"`
	Schedules  []ScheduleDoc  `yaml:"schedules,omitempty" json:"schedules,omitempty" validate:"dive"`
	Policies   []PolicyDoc    `yaml:"policies,omitempty" json:"policies,omitempty"`
	Employees  []EmployeeDoc  `yaml:"employees,omitempty" json:"employees,omitempty" validate:"dive"`
	Holidays   []HolidayDoc   `yaml:"holidays,omitempty" json:"holidays,omitempty" validate:"dive"`
}

type LeaveTypeDoc struct {
	ID   string `yaml:"id,omitempty" json:"id,omitempty"`
	Name string `yaml:"name" json:"name" validate:"required"`
}

type ScheduleDoc struct {
	ID    string            `yaml:"id" json:"id" validate:"required"`
	Name  string            `yaml:"name" json:"name"`
	Rules []ScheduleRuleDoc `yaml:"rules" json:"rules" validate:"dive"`
}

type ScheduleRuleDoc struct {
	Weekday string `yaml:"weekday" json:"weekday" validate:"required"`
	Start   string `yaml:"start" json:"start" validate:"required"`
	End     string `yaml:"end" json:"end" validate:"required"`
}

type EmployeeDoc struct {
	ID       string `yaml:"id" json:"id" validate:"required"`
	Name     string `yaml:"name" json:"name" validate:"required"`
	Email    string `yaml:"email,omitempty" json:"email,omitempty" validate:"omitempty,email"`
	HireDate string `yaml:"hire_date,omitempty" json:"hire_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status   string `yaml:"status,omitempty" json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	Policy   string `yaml:"policy,omitempty" json:"policy,omitempty"`
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Manager  string `yaml:"manager,omitempty" json:"manager,omitempty"`

	CompensationEligibleAfterMonths *int `yaml:"compensation_eligible_after_months,omitempty" json:"compensation_eligible_after_months,omitempty" validate:"omitempty,gte=0"`
}

type HolidayDoc struct {
	Date string `yaml:"date" json:"date" validate:"required,datetime=2006-01-02"`
	Name string `yaml:"name" json:"name" validate:"required"`
}

// SeedResult counts what Seed wrote.
type SeedResult struct {
	LeaveTypes      int
	Schedules       int
	Policies        int
	Employees       int
	HolidaysCreated int
	HolidaysUpdated int
}

// =============================================================================
// LOADING
// =============================================================================

// LoadFile reads a seed document. Files ending in .json are JSON; everything
// else is YAML.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") && !isJSON(data) {
		return nil, fmt.Errorf("failed to parse seed file %s: not a JSON document", path)
	}
	return ParseDocument(data)
}

// ParseDocument decodes and validates a seed document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := decode(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed document: %w", err)
	}
	if err := validator.New().Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid seed document: %w", err)
	}
	return &doc, nil
}

// =============================================================================
// CONVERSION
// =============================================================================

func (d ScheduleDoc) ToSchedule() (leave.WorkSchedule, error) {
	s := leave.WorkSchedule{ID: d.ID, Name: d.Name}
	if s.Name == "" {
		s.Name = d.ID
	}
	for _, rd := range d.Rules {
		day, err := parseWeekday(rd.Weekday)
		if err != nil {
			return leave.WorkSchedule{}, fmt.Errorf("schedule %s: %w", d.ID, err)
		}
		start, err := leave.ParseClockTime(rd.Start)
		if err != nil {
			return leave.WorkSchedule{}, fmt.Errorf("schedule %s: %w", d.ID, err)
		}
		end, err := leave.ParseClockTime(rd.End)
		if err != nil {
			return leave.WorkSchedule{}, fmt.Errorf("schedule %s: %w", d.ID, err)
		}
		s.Rules = append(s.Rules, leave.ScheduleRule{Weekday: day, Start: start, End: end})
	}
	if err := s.Validate(); err != nil {
		return leave.WorkSchedule{}, fmt.Errorf("schedule %s: %w", d.ID, err)
	}
	return s, nil
}

func (d EmployeeDoc) ToEmployee() (leave.Employee, error) {
	e := leave.Employee{
		ID:         generic.EntityID(d.ID),
		Name:       d.Name,
		Email:      d.Email,
		Status:     leave.EmployeeStatus(d.Status),
		PolicyID:   generic.PolicyID(d.Policy),
		ScheduleID: d.Schedule,
		ManagerID:  generic.EntityID(d.Manager),

		CompensationEligibleAfterMonths: d.CompensationEligibleAfterMonths,
	}
	if e.Status == "" {
		e.Status = leave.StatusActive
	}
	if d.HireDate != "" {
		hire, err := generic.ParseDate(d.HireDate)
		if err != nil {
			return leave.Employee{}, fmt.Errorf("employee %s: %w", d.ID, err)
		}
		e.HireDate = hire
	}
	return e, nil
}

func (d HolidayDoc) ToHoliday() (generic.Holiday, error) {
	date, err := generic.ParseDate(d.Date)
	if err != nil {
		return generic.Holiday{}, err
	}
	return generic.Holiday{Date: date, Name: d.Name}, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if day, ok := weekdays[key]; ok {
		return day, nil
	}
	for name, day := range weekdays {
		if len(key) == 3 && strings.HasPrefix(name, key) {
			return day, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// =============================================================================
// SEEDING
// =============================================================================

// Seed writes the document to repo. Every record is an upsert, so seeding
// the same document twice leaves the repository unchanged. The whole
// document is converted before anything is written.
func Seed(ctx context.Context, repo leave.Repository, doc *Document) (SeedResult, error) {
	var res SeedResult
	f := NewPolicyFactory()

	schedules := make([]leave.WorkSchedule, 0, len(doc.Schedules))
	for _, sd := range doc.Schedules {
		s, err := sd.ToSchedule()
		if err != nil {
			return res, err
		}
		schedules = append(schedules, s)
	}
	policies := make([]leave.Policy, 0, len(doc.Policies))
	for _, pd := range doc.Policies {
		p, err := f.FromDoc(pd)
		if err != nil {
			return res, err
		}
		policies = append(policies, p)
	}
	employees := make([]leave.Employee, 0, len(doc.Employees))
	for _, ed := range doc.Employees {
		e, err := ed.ToEmployee()
		if err != nil {
			return res, err
		}
		employees = append(employees, e)
	}
	holidays := make([]generic.Holiday, 0, len(doc.Holidays))
	for _, hd := range doc.Holidays {
		h, err := hd.ToHoliday()
		if err != nil {
			return res, err
		}
		holidays = append(holidays, h)
	}

	for _, ld := range doc.LeaveTypes {
		if err := seedLeaveType(ctx, repo, ld); err != nil {
			return res, err
		}
		res.LeaveTypes++
	}
	for _, s := range schedules {
		if err := repo.SaveSchedule(ctx, s); err != nil {
			return res, fmt.Errorf("failed to save schedule %s: %w", s.ID, err)
		}
		res.Schedules++
	}
	for _, p := range policies {
		if err := repo.SavePolicy(ctx, p); err != nil {
			return res, fmt.Errorf("failed to save policy %s: %w", p.ID, err)
		}
		res.Policies++
	}
	for _, e := range employees {
		if err := repo.SaveEmployee(ctx, e); err != nil {
			return res, fmt.Errorf("failed to save employee %s: %w", e.ID, err)
		}
		res.Employees++
	}
	for _, h := range holidays {
		created, err := repo.UpsertHoliday(ctx, h)
		if err != nil {
			return res, fmt.Errorf("failed to save holiday %s: %w", h.Date, err)
		}
		if created {
			res.HolidaysCreated++
		} else {
			res.HolidaysUpdated++
		}
	}
	return res, nil
}

// seedLeaveType keeps the stored ID when a leave type with the same name
// already exists.
func seedLeaveType(ctx context.Context, repo leave.Catalog, ld LeaveTypeDoc) error {
	existing, err := repo.FindLeaveTypeByName(ctx, ld.Name)
	switch {
	case err == nil:
		if ld.ID == "" || generic.ResourceID(ld.ID) == existing.ID {
			return nil
		}
	case !errors.Is(err, generic.ErrResourceNotFound):
		return fmt.Errorf("failed to look up leave type %q: %w", ld.Name, err)
	}

	lt := leave.LeaveType{ID: generic.ResourceID(ld.ID), Name: ld.Name}
	if lt.ID == "" {
		lt.ID = generic.ResourceID(uuid.NewString())
	}
	if err := repo.SaveLeaveType(ctx, lt); err != nil {
		return fmt.Errorf("failed to save leave type %q: %w", ld.Name, err)
	}
	return nil
}
