package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type TaskKind string

const (
	KindSingle TaskKind = "single"
	KindBatch  TaskKind = "batch"
)

// TaskHandle identifies one remote unit of work.
type TaskHandle struct {
	ID   string
	Kind TaskKind
}

func (h TaskHandle) String() string {
	return fmt.Sprintf("%s task %s", h.Kind, h.ID)
}

type TaskProgress struct {
	Stage   string  `json:"stage,omitempty"`
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
}

// BatchItem is the outcome of one item of a batch task.
type BatchItem struct {
	Success bool
	Result  json.RawMessage
	Error   string
}

// TaskStatus is the normalized snapshot of either task kind. Single tasks use
// Progress, Result and Error; batch tasks use the counters and Results.
type TaskStatus struct {
	Handle TaskHandle
	Ready  bool

	Progress *TaskProgress
	Result   json.RawMessage
	Error    string

	Completed int
	Total     int
	Failed    int
	Results   []BatchItem
}

// Succeeded returns the number of batch items that completed without error.
func (s *TaskStatus) Succeeded() int {
	return s.Completed - s.Failed
}

// Fraction returns intra-task progress in [0, 1].
func (s *TaskStatus) Fraction() float64 {
	switch s.Handle.Kind {
	case KindBatch:
		if s.Total <= 0 {
			return 0
		}
		return float64(s.Completed) / float64(s.Total)
	default:
		if s.Ready {
			return 1
		}
		if s.Progress == nil {
			return 0
		}
		return s.Progress.Percent / 100
	}
}

// SuccessfulResults returns the payloads of successful batch items in order.
func (s *TaskStatus) SuccessfulResults() []json.RawMessage {
	var out []json.RawMessage
	for _, item := range s.Results {
		if item.Success {
			out = append(out, item.Result)
		}
	}
	return out
}

// ErrMalformedStatus marks a status payload that breaks the envelope invariants.
var ErrMalformedStatus = errors.New("malformed task status")

// UnknownFailureReason stands in for a remote error value with no message.
const UnknownFailureReason = "task failed without a reason"

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedStatus, fmt.Sprintf(format, args...))
}

// SingleStatusResponse is the wire shape of GET /tasks/{id}.
type SingleStatusResponse struct {
	Success bool              `json:"success"`
	Data    *SingleStatusData `json:"data"`
	Message string            `json:"message,omitempty"`
}

type SingleStatusData struct {
	Ready    bool            `json:"ready"`
	Progress *TaskProgress   `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`
}

// BatchStatusResponse is the wire shape of GET /tasks/{id}?batch=true.
type BatchStatusResponse struct {
	Success   bool            `json:"success"`
	Ready     bool            `json:"ready"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Failed    int             `json:"failed"`
	Results   []BatchItemWire `json:"results,omitempty"`
	Message   string          `json:"message,omitempty"`
}

type BatchItemWire struct {
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// Normalize validates the response and converts it to a TaskStatus.
func (r *SingleStatusResponse) Normalize(id string) (*TaskStatus, error) {
	if !r.Success {
		return nil, malformed("success=false: %s", r.Message)
	}
	if r.Data == nil {
		return nil, malformed("missing data")
	}

	status := &TaskStatus{
		Handle: TaskHandle{ID: id, Kind: KindSingle},
		Ready:  r.Data.Ready,
	}

	hasResult := present(r.Data.Result)
	hasError := present(r.Data.Error)

	if !r.Data.Ready {
		if hasResult || hasError {
			return nil, malformed("result or error set on a task that is not ready")
		}
		if p := r.Data.Progress; p != nil {
			clamped := *p
			clamped.Percent = clampPercent(p.Percent)
			status.Progress = &clamped
		}
		return status, nil
	}

	if hasResult == hasError {
		return nil, malformed("ready task must carry exactly one of result or error")
	}
	if hasError {
		status.Error = failureReason(r.Data.Error)
	} else {
		status.Result = r.Data.Result
	}
	return status, nil
}

// Normalize validates the response and converts it to a TaskStatus.
func (r *BatchStatusResponse) Normalize(id string) (*TaskStatus, error) {
	if !r.Success {
		return nil, malformed("success=false: %s", r.Message)
	}
	if r.Failed < 0 || r.Failed > r.Completed || r.Completed > r.Total {
		return nil, malformed("inconsistent counts completed=%d total=%d failed=%d", r.Completed, r.Total, r.Failed)
	}
	if r.Ready && r.Completed != r.Total {
		return nil, malformed("ready with completed=%d of total=%d", r.Completed, r.Total)
	}

	status := &TaskStatus{
		Handle:    TaskHandle{ID: id, Kind: KindBatch},
		Ready:     r.Ready,
		Completed: r.Completed,
		Total:     r.Total,
		Failed:    r.Failed,
	}

	for _, item := range r.Results {
		hasError := present(item.Error)
		success := !hasError
		if item.Success != nil {
			success = *item.Success
		}
		out := BatchItem{Success: success}
		if success {
			out.Result = item.Result
		} else {
			out.Error = failureReason(item.Error)
		}
		status.Results = append(status.Results, out)
	}

	return status, nil
}

// ErrorMessage extracts a readable message from a remote error value, which
// may be a plain string or an object with a message field.
func ErrorMessage(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}

	return strings.TrimSpace(string(raw))
}

// failureReason is ErrorMessage for a failed outcome, which always carries a
// reason even when the remote sent an empty one.
func failureReason(raw json.RawMessage) string {
	if msg := strings.TrimSpace(ErrorMessage(raw)); msg != "" {
		return msg
	}
	return UnknownFailureReason
}

func present(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
