package pipeline

import (
	"errors"
	"fmt"
	"math"
)

type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseUploading  Phase = "UPLOADING"
	PhaseExtracting Phase = "EXTRACTING"
	PhaseAnalyzing  Phase = "ANALYZING"
	PhaseRanking    Phase = "RANKING"
	PhaseComplete   Phase = "COMPLETE"
	PhaseError      Phase = "ERROR"
)

// Phases lists the working phases in execution order.
var Phases = []Phase{PhaseUploading, PhaseExtracting, PhaseAnalyzing, PhaseRanking}

// Terminal reports whether no further transition is possible without a reset.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// Active reports whether a run is executing in p.
func (p Phase) Active() bool {
	_, ok := bands[p]
	return ok && p != PhaseComplete
}

type band struct {
	start float64
	width float64
}

const uploadHeadStart = 5

var bands = map[Phase]band{
	PhaseUploading:  {start: 0, width: 10},
	PhaseExtracting: {start: 10, width: 40},
	PhaseAnalyzing:  {start: 50, width: 15},
	PhaseRanking:    {start: 65, width: 35},
	PhaseComplete:   {start: 100, width: 0},
}

var order = map[Phase]int{
	PhaseIdle:       0,
	PhaseUploading:  1,
	PhaseExtracting: 2,
	PhaseAnalyzing:  3,
	PhaseRanking:    4,
	PhaseComplete:   5,
}

// ErrInvalidTransition is returned for any move that skips or revisits a phase.
var ErrInvalidTransition = errors.New("invalid phase transition")

// Tracker is the phase state machine of one run. It converts the current
// phase and an intra-phase fraction into one overall percentage that never
// decreases. Tracker is not safe for concurrent use; the Orchestrator guards it.
type Tracker struct {
	phase       Phase
	progress    float64
	message     string
	failedPhase Phase
	reason      string
}

func NewTracker() *Tracker {
	return &Tracker{phase: PhaseIdle, message: "Ready"}
}

func (t *Tracker) Phase() Phase { return t.phase }
func (t *Tracker) Progress() float64 { return t.progress }
func (t *Tracker) Message() string { return t.message }
func (t *Tracker) FailedPhase() Phase { return t.failedPhase }
func (t *Tracker) FailureReason() string { return t.reason }

// Enter moves to next, which must directly follow the current phase.
// Progress is raised to at least the band start.
func (t *Tracker) Enter(next Phase, message string) error {
	cur, ok := order[t.phase]
	want, known := order[next]
	if !ok || !known || want != cur+1 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.phase, next)
	}

	t.phase = next
	t.message = message

	floor := bands[next].start
	if next == PhaseUploading {
		floor = uploadHeadStart
	}
	t.raise(floor)
	return nil
}

// Advance applies an intra-phase fraction in [0, 1] to the current band.
// It is ignored outside the working phases.
func (t *Tracker) Advance(fraction float64, message string) {
	if !t.phase.Active() {
		return
	}
	b := bands[t.phase]
	if math.IsNaN(fraction) {
		fraction = 0
	}
	fraction = math.Max(0, math.Min(1, fraction))

	t.raise(b.start + b.width*fraction)
	if message != "" {
		t.message = message
	}
}

// Fail moves to ERROR from any phase that is not terminal. Progress is kept
// and the reason is appended to the message.
func (t *Tracker) Fail(reason string) error {
	if t.phase.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.phase, PhaseError)
	}
	t.failedPhase = t.phase
	t.reason = reason
	t.phase = PhaseError
	if t.message == "" {
		t.message = reason
	} else {
		t.message = fmt.Sprintf("%s: %s", t.message, reason)
	}
	return nil
}

// Cancel returns to IDLE keeping the last percentage.
func (t *Tracker) Cancel(message string) {
	t.phase = PhaseIdle
	t.message = message
}

func (t *Tracker) raise(p float64) {
	if p > t.progress {
		t.progress = math.Min(p, 100)
	}
}
