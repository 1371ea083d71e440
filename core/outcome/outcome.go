// Package outcome defines the typed result every run phase resolves to.
// Retry and abort decisions are made on these values instead of on caught
// errors, so a phase failure can never escape the runner as a panic or an
// unhandled error.
package outcome

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a phase outcome.
type Kind int

const (
	// Success means the phase completed and the run may advance.
	Success Kind = iota
	// SoftFail means the phase failed in an expected way (element absent,
	// quest not completable); the run continues past it where the flow allows.
	SoftFail
	// Fatal means the run cannot continue (no session, navigation dead).
	Fatal
	// Cancelled means the process-wide cancellation fired mid-phase.
	Cancelled
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Success:
		return "Success"
	case SoftFail:
		return "SoftFail"
	case Fatal:
		return "Fatal"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Outcome is the result of one run phase.
type Outcome struct {
	Kind   Kind
	Reason string
	Err    error
}

// OK returns a successful outcome.
func OK() Outcome {
	return Outcome{Kind: Success}
}

// Soft returns a soft failure with a human-readable reason.
func Soft(reason string, err error) Outcome {
	return Outcome{Kind: SoftFail, Reason: reason, Err: err}
}

// Softf returns a soft failure with a formatted reason and no wrapped error.
func Softf(format string, args ...any) Outcome {
	return Outcome{Kind: SoftFail, Reason: fmt.Sprintf(format, args...)}
}

// Fail returns a fatal outcome wrapping err.
func Fail(reason string, err error) Outcome {
	return Outcome{Kind: Fatal, Reason: reason, Err: err}
}

// FromErr maps an error to an outcome: nil becomes Success, a context
// cancellation becomes Cancelled, anything else a soft failure.
func FromErr(reason string, err error) Outcome {
	if err == nil {
		return OK()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled(err)
	}
	return Soft(reason, err)
}

// Canceled returns a cancellation outcome.
func Canceled(err error) Outcome {
	return Outcome{Kind: Cancelled, Err: err}
}

// Succeeded reports whether the phase completed normally.
func (o Outcome) Succeeded() bool {
	return o.Kind == Success
}

// Aborts reports whether the run must stop at this phase.
func (o Outcome) Aborts() bool {
	return o.Kind == Fatal || o.Kind == Cancelled
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	if o.Reason == "" && o.Err == nil {
		return o.Kind.String()
	}
	if o.Err == nil {
		return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
	}
	if o.Reason == "" {
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	}
	return fmt.Sprintf("%s: %s: %v", o.Kind, o.Reason, o.Err)
}
