package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Portal  PortalConfig
	Retry   RetryConfig
	Output  OutputConfig
	Batch   BatchConfig
	Publish PublishConfig
	Storage StorageConfig
	Log     LogConfig
}

type PortalConfig struct {
	BaseURL  string
	Headless bool
}

// RetryConfig holds retry tuning as integer milliseconds, the unit the
// config keys and env overrides use.
type RetryConfig struct {
	MaxAttempts int
	TimeoutMS   int
	BaseDelayMS int
	MaxDelayMS  int
}

func (r RetryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

type OutputConfig struct {
	Root string
}

type BatchConfig struct {
	Concurrency int
}

type PublishConfig struct {
	IngestURL string
	APIKey    string
}

// Enabled reports whether an ingest endpoint is configured. When it is not,
// the pipeline skips publishing entirely.
func (p PublishConfig) Enabled() bool {
	return p.IngestURL != ""
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Portal: PortalConfig{
			BaseURL:  "https://www.rad.cvm.gov.br",
			Headless: true,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			TimeoutMS:   60000,
			BaseDelayMS: 500,
			MaxDelayMS:  8000,
		},
		Output: OutputConfig{
			Root: "./output",
		},
		Batch: BatchConfig{
			Concurrency: 1,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.dfpfetch.app) and the
// ingest API key falls back to macOS Keychain. On Linux the backend is a
// JSON file at $XDG_CONFIG_HOME/dfpfetch/config.json and the key falls back
// to a secrets file under $XDG_DATA_HOME/dfpfetch.
//
// Environment variables (DFPFETCH_*) override backend values on all
// platforms.
func Load() (Config, error) {
	cfg, err := loadWith(newPlatformBackend(), keychainReader{})
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadForDisplay reads configuration like Load but skips cross-field
// validation, so the config subcommands can inspect a machine that is not
// fully configured yet.
func LoadForDisplay() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for the ingest key if still empty.
	if cfg.Publish.APIKey == "" {
		if key, err := kc.Get("dfpfetch", "ingest_api_key"); err == nil && key != "" {
			cfg.Publish.APIKey = key
		}
	}

	return cfg, nil
}

// Validate rejects configurations that would only fail mid-batch.
// Publishing is optional, but an endpoint without a key is a
// misconfiguration better caught before any ticker runs.
func (c Config) Validate() error {
	if c.Publish.IngestURL != "" && c.Publish.APIKey == "" {
		msg := "missing required config: ingest API key. " +
			"Set it via environment variable DFPFETCH_INGEST_API_KEY" +
			apiKeyHint()
		return fmt.Errorf("%s", msg)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
