// Package pipeline drives the upload, extraction, analysis and ranking
// sequence against the remote worker system.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kelsos/quickrank/internal/async"
	"github.com/kelsos/quickrank/internal/logger"
	"github.com/kelsos/quickrank/internal/models"
	"github.com/kelsos/quickrank/internal/observability"
)

// Submitter submits remote work. services.RankingService implements it.
type Submitter interface {
	HasToken() bool
	UploadCV(ctx context.Context, path string) (models.TaskHandle, error)
	UploadJD(ctx context.Context, path string) (models.TaskHandle, error)
	StartRanking(ctx context.Context, jobPostingID string, candidateIDs []string) (models.TaskHandle, error)
}

// TaskPoller waits for a remote task. async.Poller implements it.
type TaskPoller interface {
	Poll(ctx context.Context, handle models.TaskHandle, onProgress async.ProgressFunc) (*models.TaskStatus, error)
}

// Inputs are the files of one run.
type Inputs struct {
	CVPath string `validate:"required"`
	JDPath string `validate:"required"`
}

// Snapshot is a copy of the run state, safe to keep after the run moves on.
// Seq increases with every state change of the orchestrator, across runs.
type Snapshot struct {
	Seq           uint64
	RunID         uuid.UUID
	Phase         Phase
	Progress      float64
	Message       string
	CandidateIDs  []string
	JobPostingID  string
	Result        *models.RankingResult
	FailureReason string
	FailedPhase   Phase
	Cancelled     bool
	StartedAt     time.Time
	FinishedAt    time.Time
}

type Option func(*Orchestrator)

// WithListener registers fn to receive a snapshot after every state change.
// Snapshots are delivered one at a time in Seq order from a separate
// goroutine; a run's Done channel closes once its snapshots are delivered.
func WithListener(fn func(Snapshot)) Option {
	return func(o *Orchestrator) {
		o.listener = fn
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRunTimeout bounds every run. Expiry fails the run rather than cancelling it.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.runTimeout = d
	}
}

type run struct {
	id           uuid.UUID
	token        *Token
	tracker      *Tracker
	candidateIDs []string
	jobPostingID string
	result       *models.RankingResult
	cancelled    bool
	startedAt    time.Time
	phaseStarted time.Time
	finishedAt   time.Time
	done         chan struct{}
}

// Orchestrator owns at most one run at a time. All methods are safe for
// concurrent use.
type Orchestrator struct {
	submitter  Submitter
	poller     TaskPoller
	metrics    *observability.Metrics
	listener   func(Snapshot)
	runTimeout time.Duration
	validate   *validator.Validate

	notifier *notifier

	mu  sync.Mutex
	seq uint64
	run *run
}

func NewOrchestrator(submitter Submitter, poller TaskPoller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		submitter: submitter,
		poller:    poller,
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.notifier = newNotifier(o.listener)
	return o
}

// Start begins a new run unless one is executing. A finished, failed or
// cancelled run is discarded.
func (o *Orchestrator) Start(inputs Inputs) error {
	o.mu.Lock()
	if o.run != nil && o.run.tracker.Phase().Active() {
		o.mu.Unlock()
		return ErrRunInProgress
	}

	now := time.Now()
	r := &run{
		id:           uuid.New(),
		token:        NewToken(context.Background()),
		tracker:      NewTracker(),
		startedAt:    now,
		phaseStarted: now,
		done:         make(chan struct{}),
	}
	_ = r.tracker.Enter(PhaseUploading, "Uploading files")
	o.run = r

	ctx := r.token.Context()
	cancelDeadline := context.CancelFunc(func() {})
	if o.runTimeout > 0 {
		ctx, cancelDeadline = context.WithTimeout(ctx, o.runTimeout)
	}
	o.publishLocked()
	o.mu.Unlock()

	logger.Info("Starting run %s", r.id)
	o.metrics.RecordRunStarted(ctx)

	go func() {
		defer o.finish(r)
		defer cancelDeadline()
		o.execute(ctx, r, inputs)
	}()
	return nil
}

// Cancel stops the executing run and returns it to IDLE with its progress
// frozen. It is a no-op when nothing is executing.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	r := o.run
	if r == nil || !r.tracker.Phase().Active() {
		o.mu.Unlock()
		return
	}
	o.recordPhaseLocked(r, observability.RunCancelled)
	r.token.Cancel()
	r.cancelled = true
	r.finishedAt = time.Now()
	phase := r.tracker.Phase()
	r.tracker.Cancel("Cancelled")
	o.publishLocked()
	o.mu.Unlock()

	logger.Info("Run %s cancelled during %s", r.id, phase)
}

// Reset discards the current run, cancelling it if it is still executing.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if r := o.run; r != nil && r.tracker.Phase().Active() {
		o.recordPhaseLocked(r, observability.RunCancelled)
		r.cancelled = true
		r.token.Cancel()
	}
	o.run = nil
	o.publishLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Done is closed when the goroutine of the current run exits. With no run it
// returns a closed channel.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return o.run.done
}

func (o *Orchestrator) execute(ctx context.Context, r *run, inputs Inputs) {
	if perr := o.checkPreconditions(inputs); perr != nil {
		o.fail(r, perr)
		return
	}

	// The CV upload submits the extraction batch, so the JD goes first and a
	// failed JD upload leaves nothing to clean up remotely.
	jdHandle, err := o.submitter.UploadJD(ctx, inputs.JDPath)
	if !o.live(r) {
		return
	}
	if err != nil {
		o.fail(r, classify(ctx, PhaseUploading, "upload-jd", "job description upload failed", err))
		return
	}
	o.update(r, func(r *run) { r.tracker.Advance(0.5, "Job description uploaded") })

	cvHandle, err := o.submitter.UploadCV(ctx, inputs.CVPath)
	if !o.live(r) {
		return
	}
	if err != nil {
		o.fail(r, classify(ctx, PhaseUploading, "upload-cv", "CV upload failed", err))
		return
	}

	if !o.enter(r, PhaseExtracting, "Extracting CVs") {
		return
	}
	cvStatus, err := o.poller.Poll(ctx, cvHandle, func(s *models.TaskStatus) {
		o.update(r, func(r *run) {
			r.tracker.Advance(s.Fraction(), fmt.Sprintf("Extracting CVs (%d/%d)", s.Completed, s.Total))
		})
	})
	if !o.live(r) {
		return
	}
	if err != nil {
		o.fail(r, batchFailure(ctx, PhaseExtracting, "extract", err, cvStatus,
			func(total int) string { return fmt.Sprintf("all %d CV files failed extraction", total) }))
		return
	}
	candidateIDs := collectCandidateIDs(cvStatus)
	o.update(r, func(r *run) {
		r.candidateIDs = candidateIDs
		r.tracker.Advance(1, fmt.Sprintf("Extracted %d of %d CVs", cvStatus.Succeeded(), cvStatus.Total))
	})

	if !o.enter(r, PhaseAnalyzing, "Analyzing job description") {
		return
	}
	jdStatus, err := o.poller.Poll(ctx, jdHandle, func(s *models.TaskStatus) {
		o.update(r, func(r *run) { r.tracker.Advance(s.Fraction(), "") })
	})
	if !o.live(r) {
		return
	}
	if err != nil {
		o.fail(r, batchFailure(ctx, PhaseAnalyzing, "analyze", err, jdStatus,
			func(int) string { return "job description analysis failed" }))
		return
	}
	jobPostingID := firstJobPostingID(jdStatus)
	if jobPostingID == "" {
		o.fail(r, &Error{Sentinel: ErrRemoteTask, Phase: PhaseAnalyzing, Op: "analyze", Message: "failed to produce job posting"})
		return
	}
	o.update(r, func(r *run) {
		r.jobPostingID = jobPostingID
		r.tracker.Advance(1, "Job description analyzed")
	})

	if !o.enter(r, PhaseRanking, "Ranking candidates") {
		return
	}
	rankHandle, err := o.submitter.StartRanking(ctx, jobPostingID, candidateIDs)
	if !o.live(r) {
		return
	}
	if err != nil {
		o.fail(r, classify(ctx, PhaseRanking, "start-ranking", "ranking submission failed", err))
		return
	}
	rankStatus, err := o.poller.Poll(ctx, rankHandle, func(s *models.TaskStatus) {
		o.update(r, func(r *run) { r.tracker.Advance(s.Fraction(), rankingMessage(s)) })
	})
	if !o.live(r) {
		return
	}
	if err != nil {
		o.fail(r, classify(ctx, PhaseRanking, "rank", "ranking status unavailable", err))
		return
	}

	result, err := models.ParseRankingResult(rankStatus.Result)
	if err != nil {
		o.fail(r, classify(ctx, PhaseRanking, "parse-ranking", "invalid ranking result", err))
		return
	}
	if result.JobPostingID == "" {
		result.JobPostingID = jobPostingID
	}
	o.complete(r, result)
}

func (o *Orchestrator) checkPreconditions(inputs Inputs) *Error {
	if !o.submitter.HasToken() {
		return precondition("missing API token")
	}
	if err := o.validate.Struct(inputs); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return precondition(fmt.Sprintf("missing required input %s", verrs[0].Field()))
		}
		return precondition(err.Error())
	}
	for _, path := range []string{inputs.JDPath, inputs.CVPath} {
		info, err := os.Stat(path)
		if err != nil {
			return precondition(fmt.Sprintf("input file %s not found", path))
		}
		if info.IsDir() {
			return precondition(fmt.Sprintf("input %s is a directory", path))
		}
	}
	return nil
}

// live reports whether r is still the current, uncancelled run. Results of a
// step that resolves after the run went stale are dropped.
func (o *Orchestrator) live(r *run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.liveLocked(r)
}

func (o *Orchestrator) liveLocked(r *run) bool {
	return o.run == r && !r.token.Cancelled() && r.tracker.Phase().Active()
}

// update applies fn to r if it is still live and notifies the listener.
func (o *Orchestrator) update(r *run, fn func(*run)) bool {
	o.mu.Lock()
	if !o.liveLocked(r) {
		o.mu.Unlock()
		return false
	}
	fn(r)
	o.publishLocked()
	o.mu.Unlock()
	return true
}

func (o *Orchestrator) enter(r *run, next Phase, message string) bool {
	return o.update(r, func(r *run) {
		o.recordPhaseLocked(r, observability.RunComplete)
		if err := r.tracker.Enter(next, message); err != nil {
			logger.Error("Run %s: %v", r.id, err)
		}
		r.phaseStarted = time.Now()
		logger.Info("Run %s entered %s", r.id, next)
	})
}

func (o *Orchestrator) fail(r *run, runErr *Error) {
	o.update(r, func(r *run) {
		o.recordPhaseLocked(r, observability.RunError)
		_ = r.tracker.Fail(runErr.Message)
		r.finishedAt = time.Now()
		logger.Error("Run %s failed during %s (%s): %s", r.id, runErr.Phase, runErr.Op, runErr.Message)
	})
}

func (o *Orchestrator) complete(r *run, result *models.RankingResult) {
	o.update(r, func(r *run) {
		o.recordPhaseLocked(r, observability.RunComplete)
		r.result = result
		if err := r.tracker.Enter(PhaseComplete, fmt.Sprintf("Ranked %d candidates", len(result.Candidates))); err != nil {
			logger.Error("Run %s: %v", r.id, err)
		}
		r.finishedAt = time.Now()
		logger.Info("Run %s complete with %d ranked candidates", r.id, len(result.Candidates))
	})
}

// finish releases the run's resources and records its outcome.
func (o *Orchestrator) finish(r *run) {
	o.mu.Lock()
	outcome := observability.RunError
	switch {
	case r.cancelled:
		outcome = observability.RunCancelled
	case r.tracker.Phase() == PhaseComplete:
		outcome = observability.RunComplete
	}
	o.mu.Unlock()

	r.token.release()
	o.metrics.RecordRunFinished(context.Background(), outcome)
	o.notifier.wait()
	close(r.done)
}

func (o *Orchestrator) recordPhaseLocked(r *run, outcome string) {
	phase := r.tracker.Phase()
	if !phase.Active() {
		return
	}
	o.metrics.RecordPhase(context.Background(), string(phase), outcome, time.Since(r.phaseStarted).Seconds())
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	r := o.run
	if r == nil {
		return Snapshot{Seq: o.seq, Phase: PhaseIdle, Message: "Ready"}
	}
	snap := Snapshot{
		Seq:           o.seq,
		RunID:         r.id,
		Phase:         r.tracker.Phase(),
		Progress:      r.tracker.Progress(),
		Message:       r.tracker.Message(),
		JobPostingID:  r.jobPostingID,
		Result:        r.result,
		FailureReason: r.tracker.FailureReason(),
		FailedPhase:   r.tracker.FailedPhase(),
		Cancelled:     r.cancelled,
		StartedAt:     r.startedAt,
		FinishedAt:    r.finishedAt,
	}
	if len(r.candidateIDs) > 0 {
		snap.CandidateIDs = append([]string(nil), r.candidateIDs...)
	}
	return snap
}

// publishLocked stamps the current state with the next sequence number and
// queues it for the listener. Queueing under o.mu keeps the listener stream in
// the same order as the state changes.
func (o *Orchestrator) publishLocked() {
	o.seq++
	o.notifier.push(o.snapshotLocked())
}

// batchFailure maps a failed batch poll. A total batch failure gets the
// phase-specific message; anything else goes through classify.
func batchFailure(ctx context.Context, phase Phase, op string, err error, status *models.TaskStatus, total func(int) string) *Error {
	var failed *async.TaskFailedError
	if errors.As(err, &failed) && status != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Sentinel: ErrRemoteTask, Phase: phase, Op: op, Message: total(status.Total), Cause: err}
	}
	return classify(ctx, phase, op, fmt.Sprintf("%s status unavailable", op), err)
}

func collectCandidateIDs(status *models.TaskStatus) []string {
	var ids []string
	for _, raw := range status.SuccessfulResults() {
		var item models.CVExtraction
		if err := json.Unmarshal(raw, &item); err != nil || item.CandidateID == "" {
			logger.Warn("Skipping extraction result without a candidate id")
			continue
		}
		ids = append(ids, item.CandidateID)
	}
	return ids
}

func firstJobPostingID(status *models.TaskStatus) string {
	for _, raw := range status.SuccessfulResults() {
		var item models.JDAnalysis
		if err := json.Unmarshal(raw, &item); err == nil && item.JobPostingID != "" {
			return item.JobPostingID
		}
	}
	return ""
}

func rankingMessage(s *models.TaskStatus) string {
	if s.Progress == nil {
		return ""
	}
	if s.Progress.Message != "" {
		return s.Progress.Message
	}
	if s.Progress.Stage != "" {
		return fmt.Sprintf("Ranking candidates: %s (%.0f%%)", s.Progress.Stage, s.Progress.Percent)
	}
	return fmt.Sprintf("Ranking candidates (%.0f%%)", s.Progress.Percent)
}
