package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Uscout07/casaway-speedtest/internal/estimate"
	"github.com/Uscout07/casaway-speedtest/internal/targets"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	SpeedTest SpeedTestConfig `yaml:"speedtest" json:"speedtest"`
	Targets   TargetsConfig   `yaml:"targets" json:"targets"`
	History   HistoryConfig   `yaml:"history" json:"history"`
	Schedule  ScheduleConfig  `yaml:"schedule" json:"schedule"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Events    EventsConfig    `yaml:"events" json:"events"`
}

// ServerConfig represents HTTP server settings
type ServerConfig struct {
	Addr              string `yaml:"addr" json:"addr"`
	AuthToken         string `yaml:"auth_token" json:"auth_token,omitempty"`
	RateLimit         int    `yaml:"rate_limit" json:"rate_limit"`
	RateWindowSeconds int    `yaml:"rate_window_seconds" json:"rate_window_seconds"`
}

// SpeedTestConfig represents measurement settings. Durations are plain
// integers so the file round-trips cleanly through YAML.
type SpeedTestConfig struct {
	TimeoutSeconds         int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	FallbackTimeoutSeconds int     `yaml:"fallback_timeout_seconds" json:"fallback_timeout_seconds"`
	PingCount              int     `yaml:"ping_count" json:"ping_count"`
	ProbeDelayMs           int     `yaml:"probe_delay_ms" json:"probe_delay_ms"`
	UploadSizes            []int64 `yaml:"upload_sizes" json:"upload_sizes"`
	Workers                int     `yaml:"workers" json:"workers"`
	DownloadFactor         float64 `yaml:"download_factor" json:"download_factor"`
	UploadFactor           float64 `yaml:"upload_factor" json:"upload_factor"`
	UploadRatio            float64 `yaml:"upload_ratio" json:"upload_ratio"`
	FloorMbps              float64 `yaml:"floor_mbps" json:"floor_mbps"`
	PrecisionDecimals      int     `yaml:"precision_decimals" json:"precision_decimals"`
	CoarseStep             float64 `yaml:"coarse_step" json:"coarse_step"`
}

// TargetsConfig represents probe target settings
type TargetsConfig struct {
	ManifestURL string           `yaml:"manifest_url" json:"manifest_url,omitempty"`
	Servers     []targets.Server `yaml:"servers" json:"servers,omitempty"`
}

// HistoryConfig represents result history settings
type HistoryConfig struct {
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// ScheduleConfig represents periodic self-measurement settings
type ScheduleConfig struct {
	Enabled         bool `yaml:"enabled" json:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes" json:"interval_minutes"`
}

// RedisConfig represents the rate limiter backend. An empty address
// disables rate limiting.
type RedisConfig struct {
	Addr string `yaml:"addr" json:"addr,omitempty"`
	DB   int    `yaml:"db" json:"db"`
}

// StorageConfig represents the export archive backend. An empty
// endpoint disables archiving and share links.
type StorageConfig struct {
	Endpoint           string `yaml:"endpoint" json:"endpoint,omitempty"`
	AccessKey          string `yaml:"access_key" json:"access_key,omitempty"`
	SecretKey          string `yaml:"secret_key" json:"-"`
	Bucket             string `yaml:"bucket" json:"bucket"`
	UseSSL             bool   `yaml:"use_ssl" json:"use_ssl"`
	ShareExpiryMinutes int    `yaml:"share_expiry_minutes" json:"share_expiry_minutes"`
}

// EventsConfig represents the AMQP event sink. An empty URL disables
// event publishing.
type EventsConfig struct {
	URL      string `yaml:"url" json:"url,omitempty"`
	Exchange string `yaml:"exchange" json:"exchange"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	profile := estimate.DefaultProfile()
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			RateLimit:         60,
			RateWindowSeconds: 60,
		},
		SpeedTest: SpeedTestConfig{
			TimeoutSeconds:         15,
			FallbackTimeoutSeconds: 30,
			PingCount:              5,
			ProbeDelayMs:           150,
			UploadSizes:            []int64{1_000_000, 2_000_000},
			Workers:                4,
			DownloadFactor:         profile.DownloadFactor,
			UploadFactor:           profile.UploadFactor,
			UploadRatio:            profile.UploadRatio,
			FloorMbps:              profile.FloorMbps,
			PrecisionDecimals:      profile.PrecisionDecimals,
			CoarseStep:             profile.CoarseStep,
		},
		History: HistoryConfig{
			MaxResults: 100,
		},
		Schedule: ScheduleConfig{
			Enabled:         false,
			IntervalMinutes: 30,
		},
		Storage: StorageConfig{
			Bucket:             "speedtest-exports",
			ShareExpiryMinutes: 60,
		},
		Events: EventsConfig{
			Exchange: "speedtest.events",
		},
	}
}

// Load loads configuration from file, creates default if not exists.
// Environment variables (optionally from a .env file) override
// deployment settings after the file is read.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadOrCreate(configPath)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadOrCreate(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		return loadFromFile(configPath)
	} else if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := Save(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	} else {
		return nil, fmt.Errorf("failed to check config file: %w", err)
	}
}

// loadFromFile loads configuration from YAML file
func loadFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeWithDefaults(cfg)

	return cfg, nil
}

// mergeWithDefaults fills in missing values with defaults
func mergeWithDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = defaults.Server.RateLimit
	}
	if cfg.Server.RateWindowSeconds == 0 {
		cfg.Server.RateWindowSeconds = defaults.Server.RateWindowSeconds
	}

	if cfg.SpeedTest.TimeoutSeconds == 0 {
		cfg.SpeedTest.TimeoutSeconds = defaults.SpeedTest.TimeoutSeconds
	}
	if cfg.SpeedTest.FallbackTimeoutSeconds == 0 {
		cfg.SpeedTest.FallbackTimeoutSeconds = defaults.SpeedTest.FallbackTimeoutSeconds
	}
	if cfg.SpeedTest.PingCount == 0 {
		cfg.SpeedTest.PingCount = defaults.SpeedTest.PingCount
	}
	if cfg.SpeedTest.ProbeDelayMs == 0 {
		cfg.SpeedTest.ProbeDelayMs = defaults.SpeedTest.ProbeDelayMs
	}
	if cfg.SpeedTest.UploadSizes == nil {
		cfg.SpeedTest.UploadSizes = defaults.SpeedTest.UploadSizes
	}
	if cfg.SpeedTest.Workers == 0 {
		cfg.SpeedTest.Workers = defaults.SpeedTest.Workers
	}
	if cfg.SpeedTest.DownloadFactor == 0 {
		cfg.SpeedTest.DownloadFactor = defaults.SpeedTest.DownloadFactor
	}
	if cfg.SpeedTest.UploadFactor == 0 {
		cfg.SpeedTest.UploadFactor = defaults.SpeedTest.UploadFactor
	}
	if cfg.SpeedTest.UploadRatio == 0 {
		cfg.SpeedTest.UploadRatio = defaults.SpeedTest.UploadRatio
	}
	if cfg.SpeedTest.FloorMbps == 0 {
		cfg.SpeedTest.FloorMbps = defaults.SpeedTest.FloorMbps
	}
	if cfg.SpeedTest.PrecisionDecimals == 0 {
		cfg.SpeedTest.PrecisionDecimals = defaults.SpeedTest.PrecisionDecimals
	}

	if cfg.History.MaxResults == 0 {
		cfg.History.MaxResults = defaults.History.MaxResults
	}
	if cfg.Schedule.IntervalMinutes == 0 {
		cfg.Schedule.IntervalMinutes = defaults.Schedule.IntervalMinutes
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = defaults.Storage.Bucket
	}
	if cfg.Storage.ShareExpiryMinutes == 0 {
		cfg.Storage.ShareExpiryMinutes = defaults.Storage.ShareExpiryMinutes
	}
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = defaults.Events.Exchange
	}
}

// ApplyDefaults fills zero values with defaults. Used when a config
// arrives over the API instead of from file.
func (cfg *Config) ApplyDefaults() {
	mergeWithDefaults(cfg)
}

// applyEnvOverrides lets the deployment environment override
// addresses and secrets without touching the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CASAWAY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CASAWAY_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("CASAWAY_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CASAWAY_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("CASAWAY_S3_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("CASAWAY_S3_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("CASAWAY_S3_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("CASAWAY_S3_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("CASAWAY_AMQP_URL"); v != "" {
		cfg.Events.URL = v
	}
	if v := os.Getenv("CASAWAY_AMQP_EXCHANGE"); v != "" {
		cfg.Events.Exchange = v
	}
}

// Validate checks the configuration for values the service cannot run
// with.
func (cfg *Config) Validate() error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateWindowSeconds < 1 {
		return fmt.Errorf("rate window must be at least 1 second")
	}
	if cfg.SpeedTest.TimeoutSeconds < 1 {
		return fmt.Errorf("speedtest timeout must be at least 1 second")
	}
	if cfg.SpeedTest.FallbackTimeoutSeconds < 1 {
		return fmt.Errorf("fallback timeout must be at least 1 second")
	}
	if cfg.SpeedTest.PingCount < 0 {
		return fmt.Errorf("ping count must not be negative")
	}
	if cfg.SpeedTest.ProbeDelayMs < 0 {
		return fmt.Errorf("probe delay must not be negative")
	}
	if cfg.SpeedTest.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	for i, size := range cfg.SpeedTest.UploadSizes {
		if size <= 0 {
			return fmt.Errorf("upload size %d must be positive, got %d", i, size)
		}
	}
	if err := cfg.Profile().Validate(); err != nil {
		return err
	}
	if cfg.History.MaxResults < 1 {
		return fmt.Errorf("history max results must be at least 1")
	}
	if cfg.Schedule.Enabled && cfg.Schedule.IntervalMinutes < 1 {
		return fmt.Errorf("schedule interval must be at least 1 minute")
	}
	for _, srv := range cfg.Targets.Servers {
		if err := srv.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Save saves configuration to YAML file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Profile returns the calibration profile for the estimator.
func (cfg *Config) Profile() estimate.Profile {
	return estimate.Profile{
		DownloadFactor:    cfg.SpeedTest.DownloadFactor,
		UploadFactor:      cfg.SpeedTest.UploadFactor,
		UploadRatio:       cfg.SpeedTest.UploadRatio,
		FloorMbps:         cfg.SpeedTest.FloorMbps,
		PrecisionDecimals: cfg.SpeedTest.PrecisionDecimals,
		CoarseStep:        cfg.SpeedTest.CoarseStep,
	}
}

// TargetServers returns the configured probe servers, falling back to
// the built-in defaults when none are configured.
func (cfg *Config) TargetServers() []targets.Server {
	if len(cfg.Targets.Servers) > 0 {
		servers := make([]targets.Server, len(cfg.Targets.Servers))
		copy(servers, cfg.Targets.Servers)
		return servers
	}
	return targets.DefaultServers()
}

// ProbeTimeout returns the per-probe timeout for the standard method.
func (cfg *Config) ProbeTimeout() time.Duration {
	return time.Duration(cfg.SpeedTest.TimeoutSeconds) * time.Second
}

// FallbackTimeout returns the per-probe timeout for the fallback
// method.
func (cfg *Config) FallbackTimeout() time.Duration {
	return time.Duration(cfg.SpeedTest.FallbackTimeoutSeconds) * time.Second
}

// ProbeDelay returns the pause between sequential bandwidth probes.
func (cfg *Config) ProbeDelay() time.Duration {
	return time.Duration(cfg.SpeedTest.ProbeDelayMs) * time.Millisecond
}

// RateWindow returns the rate limiter window.
func (cfg *Config) RateWindow() time.Duration {
	return time.Duration(cfg.Server.RateWindowSeconds) * time.Second
}

// ShareExpiry returns how long presigned share links stay valid.
func (cfg *Config) ShareExpiry() time.Duration {
	return time.Duration(cfg.Storage.ShareExpiryMinutes) * time.Minute
}

// ScheduleInterval returns the periodic measurement interval.
func (cfg *Config) ScheduleInterval() time.Duration {
	return time.Duration(cfg.Schedule.IntervalMinutes) * time.Minute
}
