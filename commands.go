package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/config"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/i18n"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/metrics"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/runner"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/trigger"
)

// ---------------------------------------------------------------------------
// run (one synchronization)
// ---------------------------------------------------------------------------

func newRunCmd() *cobra.Command {
	var reportPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Synchronize the source feed into the destination once",
		Long: `Fetch the source feed, reuse translations from the feed already published
at the destination, translate what is missing, and publish the result when
it has new translations or a new header timestamp.

Examples:
  alerts-translate run --source s3://feeds/Alerts.pb --destination s3://public/Alerts.pb
  alerts-translate run --langs es,pt-BR,zh-CN --provider smartling-jobs
  alerts-translate run --provider mock --source ./Alerts.json --destination ./out/Alerts.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(config.NeedSource | config.NeedDestination); err != nil {
				return err
			}
			factory, err := newTranslatorFactory(cfg, logInfo)
			if err != nil {
				return err
			}
			r, err := newRunner(cfg, factory, nil)
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), r, cfg.SourceURL, cfg.DestinationURL, reportPath)
		},
	}

	addSyncFlags(cmd)
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML run report to this path")

	return cmd
}

// runOnce executes one run, logs it and optionally saves the report.
func runOnce(ctx context.Context, r *runner.Runner, source, destination, reportPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rep, err := r.Run(ctx, source, destination)
	logReport(rep)
	if reportPath != "" {
		if serr := rep.Save(reportPath); serr != nil {
			logWarning("%s: %v", i18n.T("Could not write report"), serr)
		}
	}
	return err
}

// ---------------------------------------------------------------------------
// local (translate without publishing)
// ---------------------------------------------------------------------------

func newLocalCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "local [SOURCE]",
		Short: "Translate a feed and print it as JSON",
		Long: `Translate a local path or URL without reading or writing a published feed.
The translated feed is written as JSON to stdout (or --output) and the run
metrics to stderr.

Examples:
  alerts-translate local ./Alerts_enhanced.json --provider mock
  alerts-translate local https://cdn.example.com/Alerts.pb --langs es,fr -o out.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.SourceURL = args[0]
			}
			// Nothing is published.
			cfg.DestinationURL = ""
			if err := cfg.Validate(config.NeedSource); err != nil {
				return err
			}
			factory, err := newTranslatorFactory(cfg, logInfo)
			if err != nil {
				return err
			}
			r, err := newRunner(cfg, factory, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out, m, err := r.Local(ctx, cfg.SourceURL)
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, out, 0644); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}
				logSuccess(i18n.T("Wrote %s"), output)
			} else {
				os.Stdout.Write(out)
				fmt.Println()
			}
			logInfo(i18n.N("Translated %d string", "Translated %d strings", m.StringsTranslated), m.StringsTranslated)
			logInfo("%s", m)
			return nil
		},
	}

	addSyncFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the translated feed to this file instead of stdout")

	return cmd
}

// ---------------------------------------------------------------------------
// handle-event (one S3 notification)
// ---------------------------------------------------------------------------

func newHandleEventCmd() *cobra.Command {
	var reportPath string

	cmd := &cobra.Command{
		Use:   "handle-event [FILE|-]",
		Short: "Run once for an S3 storage notification",
		Long: `Read an S3 event notification (JSON) from FILE or stdin and synchronize the
object it names into the destination. Without a record, the configured
source is used.

Examples:
  alerts-translate handle-event event.json
  aws s3api ... | alerts-translate handle-event -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args)
			if err != nil {
				return err
			}
			ev, err := trigger.ParseEvent(data)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			source, err := trigger.ResolveSource(ev, cfg.SourceURL)
			if err != nil {
				return &config.ConfigError{Key: "source_url", Reason: err.Error()}
			}
			cfg.SourceURL = source
			if err := cfg.Validate(config.NeedDestination); err != nil {
				return err
			}
			factory, err := newTranslatorFactory(cfg, logInfo)
			if err != nil {
				return err
			}
			r, err := newRunner(cfg, factory, nil)
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), r, source, cfg.DestinationURL, reportPath)
		},
	}

	addSyncFlags(cmd)
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a YAML run report to this path")

	return cmd
}

// readInput reads the named file, or stdin for "-" or no argument.
func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading event: %w", err)
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// consume (Kafka notifications)
// ---------------------------------------------------------------------------

func newConsumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Run for every storage notification read from Kafka",
		Long: `Read S3 event notifications from a Kafka topic and run one synchronization
per notification. A notification is committed after its run succeeded or
failed in a way a retry would repeat (bad configuration, unparsable feed).
Any other failure stops the consumer so the notification is redelivered.

Settings: KAFKA_BROKERS, KAFKA_TOPIC, KAFKA_GROUP_ID.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(config.NeedDestination | config.NeedKafka); err != nil {
				return err
			}
			factory, err := newTranslatorFactory(cfg, logInfo)
			if err != nil {
				return err
			}
			r, err := newRunner(cfg, factory, nil)
			if err != nil {
				return err
			}

			consumer, err := trigger.NewConsumer(trigger.ConsumerConfig{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.Topic,
				GroupID:   cfg.Kafka.GroupID,
				OnLog:     logInfo,
				Permanent: runner.IsPermanent,
			})
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			logInfo(i18n.T("Consuming %s from %v"), cfg.Kafka.Topic, cfg.Kafka.Brokers)
			return consumer.Run(ctx, func(ctx context.Context, ev trigger.Event) error {
				source, err := trigger.ResolveSource(ev, cfg.SourceURL)
				if err != nil {
					return &config.ConfigError{Key: "source_url", Reason: err.Error()}
				}
				return runOnce(ctx, r, source, cfg.DestinationURL, "")
			})
		},
	}

	addSyncFlags(cmd)

	return cmd
}

// ---------------------------------------------------------------------------
// serve (periodic runs + /metrics)
// ---------------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run periodically and expose Prometheus metrics",
		Long: `Synchronize the source into the destination every --interval and serve
/metrics and /healthz on --metrics. The provider sits behind a circuit
breaker: after repeated failures, runs fail fast until a cool-down passes.

Examples:
  alerts-translate serve --interval 30s --metrics :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(config.NeedSource | config.NeedDestination); err != nil {
				return err
			}
			if cfg.ServeInterval <= 0 {
				return &config.ConfigError{Key: "serve_interval", Reason: "must be positive"}
			}
			factory, err := newTranslatorFactory(cfg, logInfo)
			if err != nil {
				return err
			}
			factory, err = withBreaker(factory, cfg.SourceURL, logWarning)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			r, err := newRunner(cfg, factory, metrics.NewRecorder(reg))
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			srv := metrics.NewServer(cfg.MetricsAddr, reg)
			go func() {
				logInfo(i18n.T("Serving metrics on %s"), cfg.MetricsAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logError("%s: %v", i18n.T("Metrics server"), err)
					stop()
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			serveLoop(ctx, cfg.ServeInterval, func(ctx context.Context) {
				// Failures are logged and counted; the next tick retries.
				_ = runOnce(ctx, r, cfg.SourceURL, cfg.DestinationURL, "")
			})
			logInfo("%s", i18n.T("Shutting down"))
			return nil
		},
	}

	addSyncFlags(cmd)
	cmd.Flags().Duration("interval", 0, "Time between runs (default: 1m)")
	cmd.Flags().String("metrics", "", "Metrics listen address (default: :9090)")

	return cmd
}

// serveLoop calls run immediately and then every interval until ctx is done.
func serveLoop(ctx context.Context, interval time.Duration, run func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
