package launcher

import (
	"errors"
	"fmt"
)

// Kind classifies a launcher failure.
type Kind int

const (
	// KindPrecondition covers a missing runtime, an unreachable daemon or a
	// missing build definition. Nothing can be retried without operator action.
	KindPrecondition Kind = iota + 1

	// KindCapability covers missing or inaccessible GPUs that the operator
	// declined to work around.
	KindCapability

	// KindConflict covers name and port collisions that could not be resolved.
	KindConflict

	// KindLaunch covers build errors, run errors and handle validation failures.
	KindLaunch

	// KindRuntime covers failures after launch, such as the container exiting
	// before it became ready.
	KindRuntime
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindCapability:
		return "capability"
	case KindConflict:
		return "conflict"
	case KindLaunch:
		return "launch"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

var (
	ErrRuntimeMissing         = errors.New("container runtime not found")
	ErrDaemonUnreachable      = errors.New("container runtime daemon not reachable")
	ErrBuildDefinitionMissing = errors.New("build definition not found")
	ErrBuildFailed            = errors.New("image build failed")
	ErrDeclined               = errors.New("declined by operator")
	ErrNameConflict           = errors.New("container name already in use")
	ErrPortExhausted          = errors.New("no free host port found")
	ErrLaunchFailed           = errors.New("container failed to launch")
	ErrFailedToStart          = errors.New("container exited before becoming ready")
	ErrContainerExited        = errors.New("container exited")
	ErrStopFailed             = errors.New("container could not be stopped")
)

// Error is a classified launcher failure.
//
// Err is matched with errors.Is against the sentinels above. Hint is the
// remediation text shown to the operator; Logs carries container output
// captured at the time of failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	Hint string
	Logs string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error, hint string) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Hint: hint}
}

// wrap attaches a sentinel to an underlying cause so both match errors.Is.
func wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// HintOf returns the remediation hint of a launcher error, if any.
func HintOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Hint
	}
	return ""
}

// LogsOf returns container logs attached to a launcher error, if any.
func LogsOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Logs
	}
	return ""
}

// KindOf returns the kind of a launcher error, or 0 for other errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}
