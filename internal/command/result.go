package command

import "fmt"

// Status is the outcome class of an executed command.
type Status int

const (
	StatusNoOp Status = iota // handled, nothing changed
	StatusSucceeded
	StatusCanceled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusNoOp:
		return "noop"
	case StatusCanceled:
		return "canceled"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the immutable outcome of one command execution.
// Build it with Succeeded, NoOp, Canceled or Failed; the zero value is a NoOp.
type Result struct {
	status  Status
	changed bool
	message string
	cause   error
}

// Succeeded reports a handled command. changed tells listeners whether the
// layout actually moved.
func Succeeded(changed bool, message string) Result {
	return Result{status: StatusSucceeded, changed: changed, message: message}
}

// NoOp reports a command that was handled but changed nothing,
// e.g. re-selecting the tab that is already active.
func NoOp(message string) Result {
	return Result{status: StatusNoOp, message: message}
}

// Canceled reports a command that voluntarily gave up.
func Canceled(message string) Result {
	return Result{status: StatusCanceled, message: message}
}

// Failed reports an execution failure. cause is mandatory.
func Failed(cause error, message string) (Result, error) {
	if cause == nil {
		return Result{}, missing("cause")
	}
	return Result{status: StatusFailed, message: message, cause: cause}, nil
}

func (r Result) Status() Status  { return r.status }
func (r Result) Message() string { return r.message }
func (r Result) Cause() error    { return r.cause }

// Changed is only meaningful for successful results; failed and canceled
// results always report false.
func (r Result) Changed() bool {
	return r.changed && r.IsSuccess()
}

// IsSuccess is true for Succeeded and NoOp.
func (r Result) IsSuccess() bool {
	return r.status == StatusSucceeded || r.status == StatusNoOp
}

func (r Result) IsFailure() bool  { return r.status == StatusFailed }
func (r Result) IsCanceled() bool { return r.status == StatusCanceled }

// Halts reports whether a drain must stop after this result.
func (r Result) Halts() bool {
	return r.status == StatusFailed || r.status == StatusCanceled
}

func (r Result) String() string {
	s := r.status.String()
	if r.status == StatusSucceeded && r.changed {
		s += " (changed)"
	}
	if r.message != "" {
		s += ": " + r.message
	}
	if r.cause != nil {
		s += " [" + r.cause.Error() + "]"
	}
	return s
}
