package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kelsos/quickrank/internal/async"
	"github.com/kelsos/quickrank/internal/client"
	"github.com/kelsos/quickrank/internal/models"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var (
		batch bool
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a remote task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			handle := models.TaskHandle{ID: args[0], Kind: models.KindSingle}
			if batch {
				handle.Kind = models.KindBatch
			}

			metrics, stopMetrics, err := startMetrics(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer stopMetrics()

			statusClient := async.NewStatusClient(client.NewAPIClient(cfg))
			out := cmd.OutOrStdout()

			ctx := cmd.Context()

			if !watch {
				status, err := statusClient.QueryStatus(ctx, handle)
				if err != nil {
					return err
				}
				printStatus(out, status)
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			poller := async.NewPoller(statusClient, async.PollerConfigFrom(cfg), metrics)
			status, err := poller.Poll(ctx, handle, func(s *models.TaskStatus) {
				printStatus(out, s)
			})
			if status != nil {
				printStatus(out, status)
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&batch, "batch", "b", false, "Treat the id as a batch task")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the task is ready")

	return cmd
}
