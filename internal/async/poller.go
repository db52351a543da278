package async

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelsos/quickrank/internal/config"
	"github.com/kelsos/quickrank/internal/logger"
	"github.com/kelsos/quickrank/internal/models"
	"github.com/kelsos/quickrank/internal/observability"
	"github.com/kelsos/quickrank/pkg/backoff"
)

// ErrStatusUnreachable is returned once a task's status endpoint has failed
// MaxTransientErrors times in a row.
var ErrStatusUnreachable = errors.New("task status unreachable")

// TaskFailedError reports a task that the remote system finished with a failure.
type TaskFailedError struct {
	Handle models.TaskHandle
	Reason string
}

func (e *TaskFailedError) Error() string {
	return e.Reason
}

// Querier issues a single status query. StatusClient implements it.
type Querier interface {
	QueryStatus(ctx context.Context, handle models.TaskHandle) (*models.TaskStatus, error)
}

// ProgressFunc observes every non-ready status.
type ProgressFunc func(status *models.TaskStatus)

type PollerConfig struct {
	SingleInterval     time.Duration
	BatchInterval      time.Duration
	MaxBackoff         time.Duration
	MaxTransientErrors int
}

// PollerConfigFrom extracts the polling settings from cfg.
func PollerConfigFrom(cfg *config.Config) PollerConfig {
	return PollerConfig{
		SingleInterval:     cfg.SinglePollInterval,
		BatchInterval:      cfg.BatchPollInterval,
		MaxBackoff:         cfg.MaxBackoff,
		MaxTransientErrors: cfg.MaxTransientErrors,
	}
}

type Poller struct {
	querier Querier
	cfg     PollerConfig
	metrics *observability.Metrics
}

func NewPoller(querier Querier, cfg PollerConfig, metrics *observability.Metrics) *Poller {
	if cfg.MaxTransientErrors <= 0 {
		cfg.MaxTransientErrors = 1
	}
	return &Poller{
		querier: querier,
		cfg:     cfg,
		metrics: metrics,
	}
}

func (p *Poller) interval(kind models.TaskKind) time.Duration {
	if kind == models.KindBatch {
		return p.cfg.BatchInterval
	}
	return p.cfg.SingleInterval
}

// Poll queries handle until it is ready, fails, or ctx is done. The first
// query is immediate; later ones wait the kind's interval after the previous
// one resolved, so at most one query is in flight. onProgress may be nil.
//
// A ready task that failed returns its status together with a
// *TaskFailedError. A batch counts as failed only when no item succeeded.
// Once ctx is done Poll returns ctx.Err() and calls nothing.
func (p *Poller) Poll(ctx context.Context, handle models.TaskHandle, onProgress ProgressFunc) (*models.TaskStatus, error) {
	interval := p.interval(handle.Kind)
	kind := string(handle.Kind)
	transient := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		status, err := p.querier.QueryStatus(ctx, handle)
		elapsed := time.Since(start).Seconds()

		// Anything that resolves after cancellation is stale.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		wait := interval
		switch {
		case err != nil:
			transient++
			p.metrics.RecordPoll(ctx, kind, observability.OutcomeTransient, elapsed)
			if transient >= p.cfg.MaxTransientErrors {
				return nil, fmt.Errorf("%w: %s after %d consecutive failures: %v", ErrStatusUnreachable, handle, transient, err)
			}
			wait = backoff.Exponential(transient, &backoff.Config{Initial: interval, Max: p.cfg.MaxBackoff})
			logger.Debug("Status query for %s failed (%d/%d), retrying in %v: %v",
				handle, transient, p.cfg.MaxTransientErrors, wait, err)

		case status.Ready:
			return p.settle(ctx, status, elapsed)

		default:
			transient = 0
			p.metrics.RecordPoll(ctx, kind, observability.OutcomePending, elapsed)
			if onProgress != nil {
				onProgress(status)
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *Poller) settle(ctx context.Context, status *models.TaskStatus, elapsed float64) (*models.TaskStatus, error) {
	kind := string(status.Handle.Kind)

	var failure *TaskFailedError
	switch status.Handle.Kind {
	case models.KindBatch:
		if status.Succeeded() == 0 {
			failure = &TaskFailedError{
				Handle: status.Handle,
				Reason: fmt.Sprintf("all %d items failed", status.Total),
			}
		}
	default:
		if status.Error != "" {
			failure = &TaskFailedError{Handle: status.Handle, Reason: status.Error}
		}
	}

	if failure != nil {
		p.metrics.RecordPoll(ctx, kind, observability.OutcomeFailed, elapsed)
		logger.Debug("%s finished with failure: %s", status.Handle, failure.Reason)
		return status, failure
	}

	p.metrics.RecordPoll(ctx, kind, observability.OutcomeReady, elapsed)
	logger.Debug("%s is ready", status.Handle)
	return status, nil
}
