/*
Package factory converts YAML/JSON documents into leave configuration.

PURPOSE:
  HR defines leave types, policies, schedules, employees and holidays in a
  document; the factory validates it and creates the leave structs. The same
  policy shape is accepted by POST /api/policies.

POLICY SCHEMA (YAML; JSON uses the same keys):
  id: standard
  name: Standard Annual Leave
  frequency: yearly              # daily | weekly | monthly | yearly
  accrual_amount: 12
  accrual_unit: days             # days | hours
  waiting_period: {amount: 3, unit: MONTHS}
  fiscal_year_start_month: 4
  allow_carry_over: true
  max_carry_over: 5
  holiday_compensation: true
  yearly_anchor: hire_anniversary # calendar | hire_anniversary | fiscal_year
  set_mode: entitlement          # entitlement | increment
  rules:
    - {years_of_service: 2, type: ADD, amount: 1}
    - {years_of_service: 10, type: SET, amount: 20}

USAGE:
  f := factory.NewPolicyFactory()
  p, err := f.ParsePolicy(data)   // YAML or JSON
  doc := f.ToDoc(p)               // back to the document form

SEE ALSO:
  - leave/types.go: Policy type definition
  - leave/policies.go: Go-based policy presets
  - seed.go: Whole seed documents
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// PolicyDoc is the document form of a policy.
type PolicyDoc struct {
	ID                   string            `yaml:"id" json:"id" validate:"required"`
	Name                 string            `yaml:"name" json:"name" validate:"required"`
	Frequency            string            `yaml:"frequency" json:"frequency" validate:"required"`
	AccrualAmount        float64           `yaml:"accrual_amount" json:"accrual_amount" validate:"gte=0"`
	AccrualUnit          string            `yaml:"accrual_unit,omitempty" json:"accrual_unit,omitempty" validate:"omitempty,oneof=days hours"`
	WaitingPeriod        *WaitingPeriodDoc `yaml:"waiting_period,omitempty" json:"waiting_period,omitempty"`
	FiscalYearStartMonth int               `yaml:"fiscal_year_start_month,omitempty" json:"fiscal_year_start_month,omitempty" validate:"gte=0,lte=12"`
	AllowCarryOver       bool              `yaml:"allow_carry_over" json:"allow_carry_over"`
	MaxCarryOver         float64           `yaml:"max_carry_over,omitempty" json:"max_carry_over,omitempty" validate:"gte=0"`
	HolidayCompensation  bool              `yaml:"holiday_compensation" json:"holiday_compensation"`
	YearlyAnchor         string            `yaml:"yearly_anchor,omitempty" json:"yearly_anchor,omitempty" validate:"omitempty,oneof=calendar hire_anniversary fiscal_year"`
	SetMode              string            `yaml:"set_mode,omitempty" json:"set_mode,omitempty" validate:"omitempty,oneof=entitlement increment"`
	Rules                []RuleDoc         `yaml:"rules,omitempty" json:"rules,omitempty" validate:"dive"`
}

type WaitingPeriodDoc struct {
	Amount int    `yaml:"amount" json:"amount" validate:"gte=0"`
	Unit   string `yaml:"unit" json:"unit" validate:"omitempty,oneof=DAYS MONTHS days months"`
}

type RuleDoc struct {
	ID             int64   `yaml:"id,omitempty" json:"id,omitempty"`
	YearsOfService int     `yaml:"years_of_service" json:"years_of_service" validate:"gte=0"`
	Type           string  `yaml:"type" json:"type" validate:"required,oneof=ADD SET add set"`
	Amount         float64 `yaml:"amount" json:"amount"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts policy documents to leave.Policy.
type PolicyFactory struct {
	validate *validator.Validate
}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{validate: validator.New()}
}

// ParsePolicy decodes a single policy. Input starting with '{' is JSON,
// anything else YAML. Unknown keys are rejected.
func (f *PolicyFactory) ParsePolicy(data []byte) (leave.Policy, error) {
	var pd PolicyDoc
	if err := decode(data, &pd); err != nil {
		return leave.Policy{}, fmt.Errorf("failed to parse policy: %w", err)
	}
	return f.FromDoc(pd)
}

// FromDoc validates the document and builds the policy with defaults applied.
func (f *PolicyFactory) FromDoc(pd PolicyDoc) (leave.Policy, error) {
	if err := f.validate.Struct(pd); err != nil {
		return leave.Policy{}, fmt.Errorf("%w: %s: %v", leave.ErrInvalidPolicy, pd.ID, err)
	}
	freq, err := generic.ParseFrequency(pd.Frequency)
	if err != nil {
		return leave.Policy{}, fmt.Errorf("%w: %s: %v", leave.ErrInvalidPolicy, pd.ID, err)
	}

	p := leave.Policy{
		ID:                   generic.PolicyID(pd.ID),
		Name:                 pd.Name,
		Frequency:            freq,
		AccrualAmount:        decimal.NewFromFloat(pd.AccrualAmount),
		AccrualUnit:          generic.Unit(pd.AccrualUnit),
		FiscalYearStartMonth: time.Month(pd.FiscalYearStartMonth),
		AllowCarryOver:       pd.AllowCarryOver,
		MaxCarryOver:         decimal.NewFromFloat(pd.MaxCarryOver),
		HolidayCompensation:  pd.HolidayCompensation,
		YearlyAnchor:         leave.YearlyAnchor(pd.YearlyAnchor),
		SetMode:              leave.SetMode(pd.SetMode),
	}
	if pd.WaitingPeriod != nil {
		p.WaitingPeriod = leave.WaitingPeriod{
			Amount: pd.WaitingPeriod.Amount,
			Unit:   leave.WaitingUnit(strings.ToUpper(pd.WaitingPeriod.Unit)),
		}
	}
	for i, rd := range pd.Rules {
		id := rd.ID
		if id == 0 {
			id = int64(i + 1)
		}
		p.Rules = append(p.Rules, leave.Rule{
			ID:             id,
			YearsOfService: rd.YearsOfService,
			Type:           leave.RuleType(strings.ToUpper(rd.Type)),
			Amount:         decimal.NewFromFloat(rd.Amount),
		})
	}

	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return leave.Policy{}, err
	}
	return p, nil
}

// ToDoc converts a policy back to its document form.
func (f *PolicyFactory) ToDoc(p leave.Policy) PolicyDoc {
	pd := PolicyDoc{
		ID:                   string(p.ID),
		Name:                 p.Name,
		Frequency:            strings.ToLower(string(p.Frequency)),
		AccrualAmount:        p.AccrualAmount.InexactFloat64(),
		AccrualUnit:          string(p.AccrualUnit),
		FiscalYearStartMonth: int(p.FiscalYearStartMonth),
		AllowCarryOver:       p.AllowCarryOver,
		MaxCarryOver:         p.MaxCarryOver.InexactFloat64(),
		HolidayCompensation:  p.HolidayCompensation,
		YearlyAnchor:         string(p.YearlyAnchor),
		SetMode:              string(p.SetMode),
	}
	if p.WaitingPeriod.Amount > 0 {
		pd.WaitingPeriod = &WaitingPeriodDoc{Amount: p.WaitingPeriod.Amount, Unit: string(p.WaitingPeriod.Unit)}
	}
	for _, r := range p.Rules {
		pd.Rules = append(pd.Rules, RuleDoc{
			ID:             r.ID,
			YearsOfService: r.YearsOfService,
			Type:           string(r.Type),
			Amount:         r.Amount.InexactFloat64(),
		})
	}
	return pd
}

// =============================================================================
// DECODING HELPERS
// =============================================================================

func isJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func decode(data []byte, out any) error {
	if isJSON(data) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(out)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
