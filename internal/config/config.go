package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultCDSURL = "https://cds.climate.copernicus.eu/api"

// Config holds all downloader settings, populated from environment variables.
type Config struct {
	CDSURL          string
	CDSKey          string
	CDSTimeout      time.Duration
	CDSPollInterval time.Duration
	CDSPollMax      time.Duration

	LogLevel        string
	LogFormat       string
	MetricsTextfile string

	// Download notifications.
	KafkaBrokers  []string
	KafkaTopic    string
	NotifyEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
// An optional .env file in the working directory is loaded first; variables
// already set in the environment win. CDS credentials not set in the
// environment are taken from the cdsapirc file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	timeout, err := parsePositiveDuration("CDS_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("CDS_POLL_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}
	pollMax, err := parsePositiveDuration("CDS_POLL_MAX", "120s")
	if err != nil {
		return nil, err
	}
	if pollMax < pollInterval {
		return nil, errors.New("CDS_POLL_MAX must not be less than CDS_POLL_INTERVAL")
	}

	rc, err := loadRC(rcPath())
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}
	notify := len(brokers) > 0
	if v := os.Getenv("NOTIFY_ENABLED"); v != "" {
		notify = v == "true"
	}

	cfg := &Config{
		CDSURL:          strings.TrimRight(firstNonEmpty(os.Getenv("CDSAPI_URL"), rc.URL, defaultCDSURL), "/"),
		CDSKey:          firstNonEmpty(os.Getenv("CDSAPI_KEY"), rc.Key),
		CDSTimeout:      timeout,
		CDSPollInterval: pollInterval,
		CDSPollMax:      pollMax,
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),
		KafkaBrokers:    brokers,
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "forcing-downloads"),
		NotifyEnabled:   notify,
	}

	if cfg.NotifyEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("NOTIFY_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.NotifyEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when notifications are enabled")
	}

	return cfg, nil
}

// RequireCredentials reports whether the archive can be contacted. Dry runs
// skip this check.
func (c *Config) RequireCredentials() error {
	if c.CDSKey == "" {
		return errors.New("CDSAPI_KEY is not set and no key was found in the cdsapirc file")
	}
	return nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// rcFile is the cdsapirc credentials file, a flat "url: ...", "key: ..." document.
type rcFile struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

func rcPath() string {
	if p := os.Getenv("CDSAPI_RC"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cdsapirc")
}

// loadRC reads the credentials file. A missing file is not an error.
func loadRC(path string) (rcFile, error) {
	var rc rcFile
	if path == "" {
		return rc, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return rc, nil
	}
	if err != nil {
		return rc, fmt.Errorf("read CDSAPI_RC %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return rc, fmt.Errorf("parse CDSAPI_RC %s: %w", path, err)
	}
	return rc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
