package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/kelsos/quickrank/internal/async"
	"github.com/kelsos/quickrank/internal/client"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrPrecondition  = errors.New("precondition failed")
	ErrTransport     = errors.New("transport error")
	ErrRemoteTask    = errors.New("remote task failed")
	ErrDeadline      = errors.New("run deadline exceeded")
	ErrRunInProgress = errors.New("a run is already in progress")
)

// Error is a terminal run failure.
type Error struct {
	Sentinel error  // classification for errors.Is()
	Phase    Phase  // phase the run was in
	Op       string // step that failed, e.g. "upload-cv"
	Message  string // becomes the run's failure reason
	Cause    error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

func precondition(message string) *Error {
	return &Error{Sentinel: ErrPrecondition, Phase: PhaseUploading, Op: "precondition", Message: message}
}

// classify turns the error of one step into a terminal run error. Remote task
// failures keep the remote message verbatim. ctx is the run context, whose
// expiry means the run deadline passed whatever err says.
func classify(ctx context.Context, phase Phase, op, what string, err error) *Error {
	var failed *async.TaskFailedError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Sentinel: ErrDeadline, Phase: phase, Op: op, Message: ErrDeadline.Error(), Cause: err}
	case errors.As(err, &failed):
		return &Error{Sentinel: ErrRemoteTask, Phase: phase, Op: op, Message: failed.Reason, Cause: err}
	case errors.Is(err, client.ErrMissingToken):
		return &Error{Sentinel: ErrPrecondition, Phase: phase, Op: op, Message: "missing API token", Cause: err}
	default:
		return &Error{Sentinel: ErrTransport, Phase: phase, Op: op, Message: fmt.Sprintf("%s: %v", what, err), Cause: err}
	}
}
