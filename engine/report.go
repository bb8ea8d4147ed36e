package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// REPORT - What one run did
// =============================================================================

type Process string

const (
	ProcessAccrual      Process = "accrual"
	ProcessCompensation Process = "compensation"
	ProcessSettlement   Process = "settlement"
)

// Marker key prefixes. Compensation markers are keyed by leave type and
// holiday date rather than policy.
const (
	markerAccrual    = "accrual"
	markerHoliday    = "holiday"
	markerSettlement = "settlement"
)

type Failure struct {
	EmployeeID generic.EntityID
	Error      string
}

// Report counts employees by outcome. An employee interrupted by the budget
// after some of its adjustments landed counts as both Processed and Deferred.
type Report struct {
	Process    Process
	From       generic.TimePoint
	To         generic.TimePoint
	StartedAt  time.Time
	FinishedAt time.Time

	Processed   int
	Skipped     int
	AlreadyDone int
	Failed      int
	Deferred    int

	Adjustments int
	Hours       decimal.Decimal // net change across all adjustments
	Failures    []Failure
}

// Incomplete reports whether the budget stopped the run before every
// employee was reached.
func (r *Report) Incomplete() bool { return r.Deferred > 0 }

func (r *Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Window renders the processed dates.
func (r *Report) Window() string {
	if r.From.Equal(r.To) {
		return r.From.String()
	}
	return r.From.String() + ".." + r.To.String()
}

func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.Process, r.Window())
	fmt.Fprintf(&b, "  processed:    %d\n", r.Processed)
	fmt.Fprintf(&b, "  skipped:      %d\n", r.Skipped)
	fmt.Fprintf(&b, "  already done: %d\n", r.AlreadyDone)
	fmt.Fprintf(&b, "  failed:       %d\n", r.Failed)
	fmt.Fprintf(&b, "  deferred:     %d\n", r.Deferred)
	fmt.Fprintf(&b, "  adjustments:  %d\n", r.Adjustments)
	fmt.Fprintf(&b, "  hours:        %s\n", r.Hours.StringFixed(2))
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  ! %s: %s\n", f.EmployeeID, f.Error)
	}
	return b.String()
}

// merge folds another report into r, used by CatchUp totals.
func (r *Report) merge(o *Report) {
	r.Processed += o.Processed
	r.Skipped += o.Skipped
	r.AlreadyDone += o.AlreadyDone
	r.Failed += o.Failed
	r.Deferred += o.Deferred
	r.Adjustments += o.Adjustments
	r.Hours = r.Hours.Add(o.Hours)
	r.Failures = append(r.Failures, o.Failures...)
}

// outcome is what happened to one employee.
type outcome struct {
	employee    generic.EntityID
	applied     []generic.Adjustment
	skipped     bool
	interrupted bool
	err         error
}

func (r *Report) record(o outcome) {
	switch {
	case o.err != nil:
		r.Failed++
		r.Failures = append(r.Failures, Failure{EmployeeID: o.employee, Error: o.err.Error()})
	case o.skipped:
		r.Skipped++
	case o.interrupted && len(o.applied) == 0:
		r.Deferred++
	case len(o.applied) == 0:
		r.AlreadyDone++
	default:
		r.Processed++
		if o.interrupted {
			r.Deferred++
		}
	}
	for _, adj := range o.applied {
		r.Adjustments++
		r.Hours = r.Hours.Add(adj.Delta.Value)
	}
}

func (r *Report) sortFailures() {
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].EmployeeID < r.Failures[j].EmployeeID })
}
