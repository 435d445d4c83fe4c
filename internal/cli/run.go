package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/merchload/internal/config"
	"github.com/wesleyorama2/merchload/internal/engine"
	"github.com/wesleyorama2/merchload/internal/logging"
	"github.com/wesleyorama2/merchload/internal/metrics"
	"github.com/wesleyorama2/merchload/internal/output"
	"github.com/wesleyorama2/merchload/internal/telemetry"
	"github.com/wesleyorama2/merchload/perf"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the shop load scenario",
	Long: `Run the shop scenario against a merch shop API.

Config file mode:
  merchload run --config load.yaml

Flag mode (defaults for everything else):
  merchload run --base-url http://localhost:8080 --rate 500 --duration 1m

MERCHLOAD_BASE_URL, MERCHLOAD_RATE and MERCHLOAD_DURATION override the
config file; flags override both.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptionsFromFlags(cmd)
		cfg, err := loadRunConfig(opts, os.LookupEnv)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err = runLoad(ctx, cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return err
	},
}

// runOptions are the command-line overrides of a run.
type runOptions struct {
	configFile string
	baseURL    string
	rate       float64
	duration   string
	maxVUs     int
	out        string
	logLevel   string
	logFormat  string
	logFile    string
	quiet      bool
	noColor    bool
	noProbe    bool
}

func runOptionsFromFlags(cmd *cobra.Command) runOptions {
	var o runOptions
	o.configFile, _ = cmd.Flags().GetString("config")
	o.baseURL, _ = cmd.Flags().GetString("base-url")
	o.rate, _ = cmd.Flags().GetFloat64("rate")
	o.duration, _ = cmd.Flags().GetString("duration")
	o.maxVUs, _ = cmd.Flags().GetInt("max-vus")
	o.out, _ = cmd.Flags().GetString("out")
	o.logLevel, _ = cmd.Flags().GetString("log-level")
	o.logFormat, _ = cmd.Flags().GetString("log-format")
	o.logFile, _ = cmd.Flags().GetString("log-file")
	o.quiet, _ = cmd.Flags().GetBool("quiet")
	o.noColor, _ = cmd.Flags().GetBool("no-color")
	o.noProbe, _ = cmd.Flags().GetBool("no-probe")
	return o
}

// loadRunConfig layers the config file, the environment and the flags,
// then fills defaults and validates the result.
func loadRunConfig(opts runOptions, lookup func(string) (string, bool)) (*config.TestConfig, error) {
	cfg := &config.TestConfig{}
	if opts.configFile != "" {
		loaded, err := config.LoadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := config.ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	if opts.rate > 0 {
		cfg.Scenario.Rate = opts.rate
	}
	if opts.duration != "" {
		d, err := config.ParseDurationString(opts.duration)
		if err != nil {
			return nil, fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.Scenario.Duration = config.Duration(d)
	}
	if opts.maxVUs > 0 {
		cfg.Scenario.MaxVUs = opts.maxVUs
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if opts.logFile != "" {
		cfg.Logging.File = opts.logFile
	}
	if opts.noProbe {
		cfg.Options.DisableProbe = true
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runLoad executes one run and renders its summary. The returned error is
// engine.ErrThresholdsFailed when the run completed but breached a
// threshold.
func runLoad(ctx context.Context, cfg *config.TestConfig, opts runOptions, stdout, stderr io.Writer) (*engine.Summary, error) {
	logger, err := logging.New(cfg.LoggingOptions(stderr, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	var sink metrics.Sink
	if telemetry.ExporterType(cfg.Telemetry.Exporter) != telemetry.ExporterNone {
		exporter, err := telemetry.New(ctx, cfg.TelemetryConfig(logger.RunID, version), logger.Logger)
		if err != nil {
			return nil, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := exporter.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()
		sink = exporter
	}

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  stdout,
		Quiet:   opts.quiet,
		NoColor: opts.noColor,
	})

	runner, err := perf.NewRunner(cfg,
		perf.WithLogger(logger.Logger),
		perf.WithRunID(logger.RunID),
		perf.WithSink(sink),
		perf.WithProgress(console.Update, time.Second),
	)
	if err != nil {
		return nil, err
	}

	console.PrintHeader(cfg.Name, logger.RunID, cfg.ExecutorConfig())

	summary, runErr := runner.Run(ctx)
	if summary == nil {
		return nil, runErr
	}
	console.PrintSummary(summary)

	if opts.out != "" {
		if err := output.WriteReportFile(opts.out, summary); err != nil {
			logger.Error("failed to write report", zap.String("path", opts.out), zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		} else {
			logger.Info("report written", zap.String("path", opts.out))
		}
	}

	if runErr != nil {
		return summary, runErr
	}
	return summary, summary.Err()
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Configuration file (YAML or JSON)")
	runCmd.Flags().String("base-url", "", "Shop API base URL")
	runCmd.Flags().Float64("rate", 0, "Iterations started per time unit")
	runCmd.Flags().String("duration", "", "Scheduling window (e.g. 5m, 30s, 90)")
	runCmd.Flags().Int("max-vus", 0, "Maximum virtual users")
	runCmd.Flags().StringP("out", "o", "", "Write the summary to a file (.json, .yaml or .xml for JUnit)")
	runCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	runCmd.Flags().String("log-format", "", "Log format: console or json")
	runCmd.Flags().String("log-file", "", "Write logs to a rotating file")
	runCmd.Flags().BoolP("quiet", "q", false, "Disable live progress output, print only the verdict")
	runCmd.Flags().Bool("no-color", false, "Disable colored output")
	runCmd.Flags().Bool("no-probe", false, "Disable load generator CPU and memory sampling")
}
