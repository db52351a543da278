package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelsos/quickrank/internal/config"
	"github.com/kelsos/quickrank/internal/logger"
	"github.com/kelsos/quickrank/internal/observability"
	"github.com/kelsos/quickrank/internal/utils"
)

type globalFlags struct {
	configFile string
	baseURL    string
	token      string
	metrics    string
}

func main() {
	utils.LoadEnvironment()
	logger.Init()

	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "quickrank",
		Short:         "Rank candidate CVs against a job description",
		Long:          `quickrank uploads a CV archive and a job description, follows the remote extraction, analysis and ranking tasks and prints the ranked candidates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVarP(&flags.baseURL, "base-url", "u", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&flags.token, "token", "t", "", "API bearer token (overrides QUICKRANK_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&flags.metrics, "metrics-addr", "m", "", "Serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(newRankCmd(&flags))
	rootCmd.AddCommand(newStatusCmd(&flags))

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}

// loadConfig builds the configuration from defaults, the environment, the
// optional config file and finally the command line.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.LoadFromEnvironment()

	if flags.configFile != "" {
		if err := cfg.LoadFile(flags.configFile); err != nil {
			return nil, err
		}
	}

	if flags.baseURL != "" {
		cfg.BaseURL = flags.baseURL
	}
	if flags.token != "" {
		cfg.APIToken = flags.token
	}
	if flags.metrics != "" {
		cfg.MetricsAddr = flags.metrics
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startMetrics serves metrics on cfg.MetricsAddr when set. The returned stop
// function is always safe to call.
func startMetrics(ctx context.Context, cfg *config.Config) (*observability.Metrics, func(), error) {
	if cfg.MetricsAddr == "" {
		return nil, func() {}, nil
	}

	metrics, handler, err := observability.NewMetrics(ctx)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics on %s/metrics", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
	}
	return metrics, stop, nil
}
