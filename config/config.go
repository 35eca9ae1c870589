// Package config loads alerts-translate settings.
//
// Precedence, highest first: command-line flags, environment variables,
// a .env file in the working directory, and the YAML config file
// (.alerts-translate.yaml or --config). Keys are the environment variable
// names in lower case, e.g. smartling_user_id or target_languages.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mbta/gtfs-rt-alerts-translation-lambda/langmeta"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/openaimt"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/settings"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/smartling"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/storage"
	"github.com/mbta/gtfs-rt-alerts-translation-lambda/translate"
)

// FileName is the default config file name.
const FileName = ".alerts-translate.yaml"

// ProviderMock prefixes texts with their language and never calls out.
const ProviderMock = "mock"

// Providers lists the accepted provider names.
var Providers = []string{
	smartling.StrategyInline,
	smartling.StrategyJobs,
	smartling.StrategyFile,
	openaimt.Name,
	ProviderMock,
}

// ConfigError is a missing or invalid setting. It is reported before any
// I/O happens.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Smartling holds the Smartling API user and project.
type Smartling struct {
	UserID          string `yaml:"user_id"`
	UserSecret      string `yaml:"user_secret"`
	AccountUID      string `yaml:"account_uid"`
	ProjectID       string `yaml:"project_id"`
	JobNameTemplate string `yaml:"job_name_template"`
}

// OpenAI holds the chat completions settings.
type OpenAI struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// S3 holds the object store connection.
type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	UseTLS    bool   `yaml:"use_tls"`
}

// Kafka holds the notification consumer settings.
type Kafka struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
	GroupID string   `yaml:"group_id,omitempty"`
}

// Config is the effective configuration.
type Config struct {
	SourceURL       string        `yaml:"source_url"`
	DestinationURL  string        `yaml:"destination_bucket_url"`
	TargetLanguages []string      `yaml:"target_languages"`
	Concurrency     int           `yaml:"concurrency_limit"`
	Provider        string        `yaml:"provider"`
	Policy          string        `yaml:"translate_policy"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	ServeInterval   time.Duration `yaml:"serve_interval"`
	MetricsAddr     string        `yaml:"metrics_addr"`

	Smartling Smartling `yaml:"smartling"`
	OpenAI    OpenAI    `yaml:"openai"`
	S3        S3        `yaml:"s3"`
	Kafka     Kafka     `yaml:"kafka"`

	// File is the config file that was read, if any.
	File string `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Options controls Load.
type Options struct {
	// ConfigFile is an explicit YAML file; it must exist.
	ConfigFile string
	// EnvFile is the dotenv file to load. Default: ".env" (optional).
	EnvFile string
	// Dir is searched for FileName when ConfigFile is empty. Default: ".".
	Dir string
	// Flags are bound by name; see flagKeys.
	Flags *pflag.FlagSet
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"source":      "source_url",
	"destination": "destination_bucket_url",
	"langs":       "target_languages",
	"concurrency": "concurrency_limit",
	"provider":    "provider",
	"policy":      "translate_policy",
	"interval":    "serve_interval",
	"metrics":     "metrics_addr",
	"user-id":     "smartling_user_id",
	"user-secret": "smartling_user_secret",
	"account-uid": "smartling_account_uid",
	"project-id":  "smartling_project_id",
	"api-key":     "openai_api_key",
	"model":       "openai_model",
	"base-url":    "openai_base_url",
}

// keys lists every config key. Each one can be set by the upper-case
// environment variable of the same name.
var keys = []string{
	"source_url", "destination_bucket_url", "target_languages", "concurrency_limit",
	"provider", "translate_policy", "poll_interval", "http_timeout", "serve_interval", "metrics_addr",
	"smartling_user_id", "smartling_user_secret", "smartling_user_secret_file",
	"smartling_account_uid", "smartling_project_id", "smartling_job_name_template",
	"openai_api_key", "openai_model", "openai_base_url",
	"s3_endpoint", "s3_region", "s3_access_key", "s3_secret_key", "s3_use_tls",
	"kafka_brokers", "kafka_topic", "kafka_group_id",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target_languages", "es")
	v.SetDefault("concurrency_limit", 20)
	v.SetDefault("provider", smartling.StrategyInline)
	v.SetDefault("translate_policy", string(translate.PolicyMissing))
	v.SetDefault("poll_interval", "1s")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("serve_interval", "1m")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("smartling_job_name_template", "GTFS Alerts Translation")
	v.SetDefault("openai_model", openaimt.DefaultModel)
	v.SetDefault("s3_endpoint", "s3.amazonaws.com")
	v.SetDefault("s3_use_tls", true)
	v.SetDefault("kafka_group_id", "alerts-translate")
}

// Load builds the effective configuration. It does not validate; call
// Validate for the command being run.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, err
		}
	}

	v.SetConfigType("yaml")
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", opts.ConfigFile, err)
		}
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading %s: %w", FileName, err)
			}
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{
		SourceURL:       strings.TrimSpace(v.GetString("source_url")),
		DestinationURL:  strings.TrimSpace(v.GetString("destination_bucket_url")),
		TargetLanguages: langmeta.ParseList(joinList(v.Get("target_languages"))),
		Concurrency:     v.GetInt("concurrency_limit"),
		Provider:        strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		Policy:          v.GetString("translate_policy"),
		PollInterval:    v.GetDuration("poll_interval"),
		HTTPTimeout:     v.GetDuration("http_timeout"),
		ServeInterval:   v.GetDuration("serve_interval"),
		MetricsAddr:     v.GetString("metrics_addr"),
		Smartling: Smartling{
			UserID:          v.GetString("smartling_user_id"),
			UserSecret:      v.GetString("smartling_user_secret"),
			AccountUID:      v.GetString("smartling_account_uid"),
			ProjectID:       v.GetString("smartling_project_id"),
			JobNameTemplate: v.GetString("smartling_job_name_template"),
		},
		OpenAI: OpenAI{
			APIKey:  v.GetString("openai_api_key"),
			Model:   v.GetString("openai_model"),
			BaseURL: v.GetString("openai_base_url"),
		},
		S3: S3{
			Endpoint:  v.GetString("s3_endpoint"),
			Region:    v.GetString("s3_region"),
			AccessKey: v.GetString("s3_access_key"),
			SecretKey: v.GetString("s3_secret_key"),
			UseTLS:    v.GetBool("s3_use_tls"),
		},
		Kafka: Kafka{
			Brokers: splitList(joinList(v.Get("kafka_brokers"))),
			Topic:   v.GetString("kafka_topic"),
			GroupID: v.GetString("kafka_group_id"),
		},
		File: v.ConfigFileUsed(),
	}

	if err := cfg.resolveSecrets(v.GetString("smartling_user_secret_file")); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveSecrets fills missing credentials from the secret file and then
// the credential store.
func (c *Config) resolveSecrets(secretFile string) error {
	if c.Smartling.UserSecret == "" && secretFile != "" {
		s, err := settings.ReadSecretFile(secretFile)
		if err != nil {
			return &ConfigError{Key: "smartling_user_secret_file", Reason: err.Error()}
		}
		c.Smartling.UserSecret = s
	}
	if u := settings.GetUser(settings.ProviderSmartling); u != nil {
		if c.Smartling.UserID == "" {
			c.Smartling.UserID = u.UserID
		}
		if c.Smartling.UserSecret == "" && c.Smartling.UserID == u.UserID {
			c.Smartling.UserSecret = u.Secret
		}
		if c.Smartling.AccountUID == "" {
			c.Smartling.AccountUID = u.AccountUID
		}
		if c.Smartling.ProjectID == "" {
			c.Smartling.ProjectID = u.ProjectID
		}
	}
	if c.OpenAI.APIKey == "" {
		if info := settings.Get(settings.ProviderOpenAI); info != nil && info.IsAPI() {
			c.OpenAI.APIKey = info.Key
			if c.OpenAI.BaseURL == "" {
				c.OpenAI.BaseURL = info.BaseURL
			}
		}
	}
	return nil
}

// joinList accepts a comma-separated string (env, flag) or a YAML list.
func joinList(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(t, ",")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func splitList(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Requirement selects the checks made by Validate.
type Requirement int

const (
	// NeedDestination is required by every mode that publishes a feed.
	NeedDestination Requirement = 1 << iota
	// NeedSource requires a configured source location.
	NeedSource
	// NeedKafka requires the consumer settings.
	NeedKafka
)

// Validate checks the configuration for a command.
func (c *Config) Validate(req Requirement) error {
	if req&NeedDestination != 0 && c.DestinationURL == "" {
		return &ConfigError{Key: "destination_bucket_url", Reason: "DESTINATION_BUCKET_URL must be configured"}
	}
	if c.DestinationURL != "" {
		if err := CheckDestination(c.DestinationURL); err != nil {
			return err
		}
	}
	if req&NeedSource != 0 && c.SourceURL == "" {
		return &ConfigError{Key: "source_url", Reason: "no source URL provided"}
	}
	if c.SourceURL != "" && c.SourceURL == c.DestinationURL {
		return &ConfigError{Key: "destination_bucket_url", Reason: "source and destination URL are the same: " + c.SourceURL}
	}
	if req&NeedKafka != 0 && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return &ConfigError{Key: "kafka_brokers", Reason: "KAFKA_BROKERS and KAFKA_TOPIC must be configured"}
	}
	if len(c.TargetLanguages) == 0 {
		return &ConfigError{Key: "target_languages", Reason: "at least one target language is required"}
	}
	for _, lang := range c.TargetLanguages {
		if langmeta.IsEnglish(lang) {
			return &ConfigError{Key: "target_languages", Reason: "English is the source language"}
		}
	}
	if c.Concurrency < 1 {
		return &ConfigError{Key: "concurrency_limit", Reason: "must be at least 1"}
	}
	if _, err := translate.ParsePolicy(c.Policy); err != nil {
		return &ConfigError{Key: "translate_policy", Reason: err.Error()}
	}
	return c.validateProvider()
}

// CheckDestination rejects destinations that cannot be published to. An
// s3:// URI is the deployed form; local paths are accepted for development.
func CheckDestination(raw string) error {
	loc, err := storage.ParseLocation(raw)
	if err != nil {
		return &ConfigError{Key: "destination_bucket_url", Reason: err.Error()}
	}
	if loc.Kind == storage.KindHTTP {
		return &ConfigError{Key: "destination_bucket_url", Reason: "destination must be an s3:// URI or a local path, not HTTP: " + raw}
	}
	return nil
}

func (c *Config) validateProvider() error {
	if !slices.Contains(Providers, c.Provider) {
		return &ConfigError{Key: "provider", Reason: fmt.Sprintf("unknown provider %q (supported: %s)", c.Provider, strings.Join(Providers, ", "))}
	}
	switch c.Provider {
	case openaimt.Name:
		if c.OpenAI.APIKey == "" {
			return &ConfigError{Key: "openai_api_key", Reason: "required for provider openai"}
		}
	case smartling.StrategyInline, smartling.StrategyJobs, smartling.StrategyFile:
		if c.Smartling.UserID == "" || c.Smartling.UserSecret == "" {
			return &ConfigError{Key: "smartling_user_id", Reason: "Smartling user id and secret are required"}
		}
		if c.Provider == smartling.StrategyJobs {
			if c.Smartling.ProjectID == "" {
				return &ConfigError{Key: "smartling_project_id", Reason: "required for provider " + c.Provider}
			}
		} else if c.Smartling.AccountUID == "" {
			return &ConfigError{Key: "smartling_account_uid", Reason: "required for provider " + c.Provider}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Display
// ---------------------------------------------------------------------------

// Masked returns a copy with secrets masked.
func (c *Config) Masked() *Config {
	m := *c
	m.TargetLanguages = slices.Clone(c.TargetLanguages)
	m.Kafka.Brokers = slices.Clone(c.Kafka.Brokers)
	m.Smartling.UserSecret = settings.MaskKey(c.Smartling.UserSecret)
	m.OpenAI.APIKey = settings.MaskKey(c.OpenAI.APIKey)
	m.S3.SecretKey = settings.MaskKey(c.S3.SecretKey)
	return &m
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Masked())
}
