package leave

import "errors"

var (
	// ErrMissingHireDate is a per-employee data error; accrual cannot compute
	// service length without it.
	ErrMissingHireDate = errors.New("missing hire date")

	// ErrMalformedSchedule is a per-employee data error: a schedule rule ends
	// before it starts or a weekday is listed twice.
	ErrMalformedSchedule = errors.New("malformed work schedule")

	// ErrInvalidPolicy is returned when a policy definition breaks an invariant.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrInvalidTransition is returned when a decided request is decided again.
	ErrInvalidTransition = errors.New("invalid request status transition")

	// ErrNotManager is returned when someone other than the employee's manager
	// tries to decide a request.
	ErrNotManager = errors.New("only the employee's manager can decide this request")

	// ErrInvalidRequest is returned for malformed leave requests (end before start).
	ErrInvalidRequest = errors.New("invalid leave request")
)
