// alerts-translate keeps the translations of a GTFS-Realtime alerts feed in
// sync with its English text.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/config"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/i18n"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/metrics"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/openaimt"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/runner"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/smartling"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/storage"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	cfgFile string
	envFile string
	uiLang  string
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "alerts-translate",
		Short: "Translate GTFS-Realtime service alerts",
		Long: `alerts-translate keeps the translations of a GTFS-Realtime alerts feed in
sync with its English text.

Each run reads the source feed, reuses translations from the previously
published feed, sends only missing strings to the provider, and publishes
the result when it changed.

Commands:
  run           Synchronize the configured source into the destination once
  local         Translate a feed without publishing it
  handle-event  Run once for an S3 storage notification
  consume       Run for every storage notification read from Kafka
  serve         Run periodically and expose Prometheus metrics
  auth          Manage provider credentials
  config        Show the effective configuration

Providers:
  smartling-mt     Smartling MT router, one request per language (default)
  smartling-jobs   Smartling job/batch workflow
  smartling-file   Smartling file machine translation
  openai           OpenAI chat completions
  mock             Prefixes texts with the language tag, no network`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			i18n.Init(uiLang)
		},
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./"+config.FileName+")")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the environment is read")
	root.PersistentFlags().StringVar(&uiLang, "lang", "", "Language of console messages (default: from the environment)")

	root.AddCommand(
		newRunCmd(),
		newLocalCmd(),
		newHandleEventCmd(),
		newConsumeCmd(),
		newServeCmd(),
		newAuthCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("alerts-translate version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// config show
// ---------------------------------------------------------------------------

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			if cfg.File != "" {
				logInfo(i18n.T("Config file: %s"), cfg.File)
			}
			fmt.Print(string(out))
			return nil
		},
	}
	addSyncFlags(show)
	cmd.AddCommand(show)

	return cmd
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// addSyncFlags registers the flags that config.Load binds by name.
func addSyncFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("source", "", "Source feed location (s3://bucket/key, URL or path)")
	f.String("destination", "", "Destination feed location (s3://bucket/key or path)")
	f.String("langs", "", "Target languages, comma-separated (default: es)")
	f.Int("concurrency", 0, "Maximum provider requests in flight (default: 20)")
	f.String("provider", "", "Translation provider: "+strings.Join(config.Providers, ", "))
	f.String("policy", "", "Request set when anything is missing: missing or all")
	f.String("user-id", "", "Smartling API user id")
	f.String("user-secret", "", "Smartling API user secret")
	f.String("account-uid", "", "Smartling account UID")
	f.String("project-id", "", "Smartling project id")
	f.String("api-key", "", "OpenAI API key")
	f.String("model", "", "OpenAI model")
	f.String("base-url", "", "OpenAI-compatible API base URL")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return config.Providers, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("policy", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{string(translate.PolicyMissing), string(translate.PolicyAll)}, cobra.ShellCompDirectiveNoFileComp
	})
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{
		ConfigFile: cfgFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
}

// newTranslatorFactory builds the provider selected by cfg.Provider. The
// Smartling client is shared across runs so its token is reused.
func newTranslatorFactory(cfg *config.Config, onLog func(format string, args ...any)) (runner.TranslatorFactory, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		return func(string) (translate.Translator, error) { return translate.Mock{}, nil }, nil

	case openaimt.Name:
		tr, err := openaimt.New(openaimt.Config{
			APIKey:      cfg.OpenAI.APIKey,
			Model:       cfg.OpenAI.Model,
			BaseURL:     cfg.OpenAI.BaseURL,
			Concurrency: cfg.Concurrency,
			Timeout:     cfg.HTTPTimeout,
			OnLog:       onLog,
		})
		if err != nil {
			return nil, err
		}
		return func(string) (translate.Translator, error) { return tr, nil }, nil

	case smartling.StrategyInline, smartling.StrategyJobs, smartling.StrategyFile:
		client := smartling.NewClient(smartling.Config{
			UserID:       cfg.Smartling.UserID,
			UserSecret:   cfg.Smartling.UserSecret,
			AccountUID:   cfg.Smartling.AccountUID,
			ProjectID:    cfg.Smartling.ProjectID,
			JobName:      cfg.Smartling.JobNameTemplate,
			Concurrency:  cfg.Concurrency,
			PollInterval: cfg.PollInterval,
			Timeout:      cfg.HTTPTimeout,
			OnLog:        onLog,
		})
		provider := cfg.Provider
		// The source location doubles as the job file URI.
		return func(source string) (translate.Translator, error) {
			return client.Strategy(provider, source)
		}, nil
	}
	return nil, fmt.Errorf("unknown provider %q (supported: %s)", cfg.Provider, strings.Join(config.Providers, ", "))
}

// withBreaker wraps the provider of factory in one circuit breaker shared
// by every run.
func withBreaker(factory runner.TranslatorFactory, source string, onLog func(format string, args ...any)) (runner.TranslatorFactory, error) {
	tr, err := factory(source)
	if err != nil {
		return nil, err
	}
	b := translate.NewBreaker("provider", tr, translate.BreakerOptions{OnLog: onLog})
	return func(string) (translate.Translator, error) { return b, nil }, nil
}

// newRunner wires storage and the provider for cfg. recorder may be nil.
func newRunner(cfg *config.Config, factory runner.TranslatorFactory, recorder *metrics.Recorder) (*runner.Runner, error) {
	objects, err := storage.NewMinIO(storage.MinIOOptions{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseTLS:    cfg.S3.UseTLS,
	})
	if err != nil {
		return nil, err
	}
	policy, err := translate.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, &config.ConfigError{Key: "translate_policy", Reason: err.Error()}
	}
	return &runner.Runner{
		Store:         storage.New(objects, cfg.HTTPTimeout),
		NewTranslator: factory,
		Languages:     cfg.TargetLanguages,
		Policy:        policy,
		Recorder:      recorder,
		OnLog:         logInfo,
	}, nil
}

// logReport prints the outcome of one run.
func logReport(rep *metrics.Report) {
	id := rep.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	if rep.Error != "" {
		logError("[%s] %s: %s", id, i18n.T("Run failed"), rep.Error)
		return
	}
	logInfo("[%s] %s", id, rep.Metrics)
	if rep.Uploaded {
		logSuccess("[%s] %s %s (%s)", id, i18n.T("Published"), rep.Destination, rep.Duration.Round(time.Millisecond))
	} else {
		logInfo("[%s] %s", id, i18n.T("Nothing to publish"))
	}
}
