// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
)

// Config holds every setting the server and CLI read. Keys are environment
// variable names; a .env file in the working directory is loaded first.
type Config struct {
	AppEnv   string `mapstructure:"APP_ENV" validate:"oneof=development production test"`
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	HTTPPort string `mapstructure:"HTTP_PORT" validate:"required,numeric"`

	DBDriver    string `mapstructure:"DB_DRIVER" validate:"oneof=sqlite postgres"`
	SQLitePath  string `mapstructure:"SQLITE_PATH" validate:"required_if=DBDriver sqlite"`
	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required_if=DBDriver postgres"`

	AnnualLeaveType            string  `mapstructure:"ANNUAL_LEAVE_TYPE" validate:"required"`
	CompensationLeaveType      string  `mapstructure:"COMPENSATION_LEAVE_TYPE"`
	DefaultDailyHours          float64 `mapstructure:"DEFAULT_DAILY_HOURS" validate:"gt=0,lte=24"`
	MealBreakThresholdHours    float64 `mapstructure:"MEAL_BREAK_THRESHOLD_HOURS" validate:"gte=0,lte=24"`
	MealBreakDeductionHours    float64 `mapstructure:"MEAL_BREAK_DEDUCTION_HOURS" validate:"gte=0,lte=24"`
	CompensationEligibleMonths int     `mapstructure:"COMPENSATION_ELIGIBLE_MONTHS" validate:"gte=0"`

	RunMaxDuration  time.Duration `mapstructure:"RUN_MAX_DURATION" validate:"gte=0"`
	RunMaxEmployees int           `mapstructure:"RUN_MAX_EMPLOYEES" validate:"gte=0"`
	RunConcurrency  int           `mapstructure:"RUN_CONCURRENCY" validate:"gte=1,lte=64"`

	SchedulerEnabled  bool          `mapstructure:"SCHEDULER_ENABLED"`
	SchedulerInterval time.Duration `mapstructure:"SCHEDULER_INTERVAL" validate:"gte=1s"`
	SchedulerAttempts int           `mapstructure:"SCHEDULER_MAX_ATTEMPTS" validate:"gte=1"`
	AccrualHour       int           `mapstructure:"ACCRUAL_HOUR" validate:"gte=0,lte=23"`
	CompensationHour  int           `mapstructure:"COMPENSATION_HOUR" validate:"gte=0,lte=23"`
	SettlementHour    int           `mapstructure:"SETTLEMENT_HOUR" validate:"gte=0,lte=23,ltefield=AccrualHour"`
	Timezone          string        `mapstructure:"TIMEZONE" validate:"required"`

	HolidayFeedURL string `mapstructure:"HOLIDAY_FEED_URL" validate:"required,url"`

	Notifier    string `mapstructure:"NOTIFIER" validate:"oneof=log ses"`
	SESSender   string `mapstructure:"SES_SENDER" validate:"required_if=Notifier ses"`
	AWSRegion   string `mapstructure:"AWS_REGION"`
	AWSEndpoint string `mapstructure:"AWS_ENDPOINT"`
}

var defaults = map[string]any{
	"APP_ENV":                      "development",
	"LOG_LEVEL":                    "info",
	"HTTP_PORT":                    "8080",
	"DB_DRIVER":                    "sqlite",
	"SQLITE_PATH":                  "./data/leave.db",
	"DATABASE_URL":                 "",
	"ANNUAL_LEAVE_TYPE":            leave.AnnualLeaveName,
	"COMPENSATION_LEAVE_TYPE":      "",
	"DEFAULT_DAILY_HOURS":          8.0,
	"MEAL_BREAK_THRESHOLD_HOURS":   5.0,
	"MEAL_BREAK_DEDUCTION_HOURS":   1.0,
	"COMPENSATION_ELIGIBLE_MONTHS": 0,
	"RUN_MAX_DURATION":             "0s",
	"RUN_MAX_EMPLOYEES":            0,
	"RUN_CONCURRENCY":              4,
	"SCHEDULER_ENABLED":            true,
	"SCHEDULER_INTERVAL":           "1m",
	"SCHEDULER_MAX_ATTEMPTS":       3,
	"ACCRUAL_HOUR":                 1,
	"COMPENSATION_HOUR":            2,
	"SETTLEMENT_HOUR":              0,
	"TIMEZONE":                     "Asia/Hong_Kong",
	"HOLIDAY_FEED_URL":             "https://www.1823.gov.hk/common/ical/en.json",
	"NOTIFIER":                     "log",
	"SES_SENDER":                   "",
	"AWS_REGION":                   "ap-east-1",
	"AWS_ENDPOINT":                 "",
}

// Load reads .env (if present) and the environment, applies defaults and
// validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: TIMEZONE: %w", err)
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

// Location is the zone the scheduler uses to decide what "today" is.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Engine maps the batch settings onto engine.Config.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		AnnualLeaveType:       c.AnnualLeaveType,
		CompensationLeaveType: c.CompensationLeaveType,
		DefaultEligibleMonths: c.CompensationEligibleMonths,
		Hours: leave.HoursConfig{
			DefaultDailyHours:  decimal.NewFromFloat(c.DefaultDailyHours),
			MealBreakThreshold: decimal.NewFromFloat(c.MealBreakThresholdHours),
			MealBreakDeduction: decimal.NewFromFloat(c.MealBreakDeductionHours),
		},
		Budget: engine.Budget{
			MaxDuration:  c.RunMaxDuration,
			MaxEmployees: c.RunMaxEmployees,
		},
		Concurrency: c.RunConcurrency,
	}
}
