package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kelsos/quickrank/internal/archive"
	"github.com/kelsos/quickrank/internal/async"
	"github.com/kelsos/quickrank/internal/client"
	"github.com/kelsos/quickrank/internal/logger"
	"github.com/kelsos/quickrank/internal/pipeline"
	"github.com/kelsos/quickrank/internal/services"
	"github.com/kelsos/quickrank/internal/storage"
	"github.com/kelsos/quickrank/internal/tui"
)

var errCancelled = errors.New("run cancelled")

func newRankCmd(flags *globalFlags) *cobra.Command {
	var (
		inputs     pipeline.Inputs
		useTUI     bool
		save       bool
		resultsDir string
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Run the ranking pipeline for a CV archive and a job description",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if resultsDir != "" {
				cfg.ResultsDir = resultsDir
			}

			cvPath, cleanup, err := resolveCVArchive(inputs.CVPath)
			if err != nil {
				return err
			}
			defer cleanup()
			inputs.CVPath = cvPath

			metrics, stopMetrics, err := startMetrics(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to set up metrics: %w", err)
			}
			defer stopMetrics()

			apiClient := client.NewAPIClient(cfg)
			poller := async.NewPoller(async.NewStatusClient(apiClient), async.PollerConfigFrom(cfg), metrics)
			opts := []pipeline.Option{
				pipeline.WithMetrics(metrics),
				pipeline.WithRunTimeout(cfg.RunTimeout),
			}

			var snap pipeline.Snapshot
			if useTUI {
				snap, err = runWithMonitor(apiClient, poller, opts, inputs)
			} else {
				snap, err = runPlain(cmd.Context(), apiClient, poller, opts, inputs)
			}
			if err != nil {
				return err
			}

			return report(cmd, snap, save, cfg.ResultsDir)
		},
	}

	cmd.Flags().StringVar(&inputs.CVPath, "cv", "", "Path to the CV archive (zip) or a directory of CV files")
	cmd.Flags().StringVar(&inputs.JDPath, "jd", "", "Path to the job description file")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Show a full-screen progress monitor")
	cmd.Flags().BoolVar(&save, "save", false, "Save the ranking result as JSON")
	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Directory for saved results (default: ~/.quickrank/results)")
	_ = cmd.MarkFlagRequired("cv")
	_ = cmd.MarkFlagRequired("jd")

	return cmd
}

// resolveCVArchive packs a CV directory into a temporary zip. Any other path
// is returned unchanged so the run can report it.
func resolveCVArchive(path string) (string, func(), error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return path, func() {}, nil
	}

	archivePath, err := archive.PackCVDirectory(path, "")
	if err != nil {
		return "", nil, err
	}
	return archivePath, func() {
		if err := os.Remove(archivePath); err != nil {
			logger.Warn("Failed to remove %s: %v", archivePath, err)
		}
	}, nil
}

// runPlain logs progress lines and cancels the run on SIGINT or SIGTERM.
func runPlain(ctx context.Context, apiClient *client.APIClient, poller *async.Poller, opts []pipeline.Option, inputs pipeline.Inputs) (pipeline.Snapshot, error) {
	var (
		mu   sync.Mutex
		last pipeline.Snapshot
	)
	opts = append(opts, pipeline.WithListener(func(s pipeline.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Phase != last.Phase || s.Message != last.Message {
			logger.Info("[%5.1f%%] %s: %s", s.Progress, s.Phase, s.Message)
		}
		last = s
	}))
	orch := pipeline.NewOrchestrator(services.NewRankingService(apiClient), poller, opts...)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(inputs); err != nil {
		return pipeline.Snapshot{}, err
	}

	select {
	case <-orch.Done():
	case <-sigCtx.Done():
		logger.Warn("Interrupted, cancelling run")
		orch.Cancel()
		<-orch.Done()
	}
	return orch.Snapshot(), nil
}

func runWithMonitor(apiClient *client.APIClient, poller *async.Poller, opts []pipeline.Option, inputs pipeline.Inputs) (pipeline.Snapshot, error) {
	if err := logger.InitFileOnly(); err != nil {
		return pipeline.Snapshot{}, err
	}
	defer func() {
		logger.Close()
		logger.Init()
	}()

	monitor := tui.NewRunMonitor()
	opts = append(opts, pipeline.WithListener(monitor.Listener))
	orch := pipeline.NewOrchestrator(services.NewRankingService(apiClient), poller, opts...)

	if err := monitor.Run(orch, inputs); err != nil {
		return pipeline.Snapshot{}, err
	}
	<-orch.Done()
	return orch.Snapshot(), nil
}

func report(cmd *cobra.Command, snap pipeline.Snapshot, save bool, resultsDir string) error {
	switch {
	case snap.Phase == pipeline.PhaseComplete:
		if err := printResult(cmd.OutOrStdout(), snap.Result); err != nil {
			return err
		}
		if save {
			path, err := storage.SaveResult(resultsDir, snap.RunID.String(), snap.Result)
			if err != nil {
				return err
			}
			logger.Info("Result saved to %s", path)
		}
		return nil
	case snap.Phase == pipeline.PhaseError:
		return fmt.Errorf("run failed during %s: %s", snap.FailedPhase, snap.FailureReason)
	case snap.Cancelled:
		return errCancelled
	default:
		return fmt.Errorf("run ended in %s", snap.Phase)
	}
}
