package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Store     StoreConfig
	Gateway   GatewayConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Campaign  CampaignConfig
}

type ServerConfig struct {
	Address string
}

type LogConfig struct {
	Level       string
	Environment string
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StoreConfig struct {
	Driver      string
	PostgresURL string
	// AutoMigrate applies the embedded schema on start (postgres only).
	AutoMigrate bool
}

type GatewayConfig struct {
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioBaseURL    string

	WebhookURL string
}

// TwilioEnabled reports whether all three Twilio credentials are present.
func (g GatewayConfig) TwilioEnabled() bool {
	return g.TwilioAccountSID != "" && g.TwilioAuthToken != "" && g.TwilioFrom != ""
}

func (g GatewayConfig) Enabled() bool {
	return g.TwilioEnabled() || g.WebhookURL != ""
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	LockTTL  time.Duration
}

type SchedulerConfig struct {
	Interval time.Duration
	// BatchSize 0 means every due message is processed in one cycle.
	BatchSize      int
	ImmediateBatch int
	MaxAttempts    int
	RetryBackoff   time.Duration
}

type CampaignConfig struct {
	BirthdayCron   string
	BulkMaxLength  int
	ReviewFallback string
	JobTimeout     time.Duration
}

const DefaultReviewFallback = "Thank you for visiting! Please leave us a review."

func LoadAll() (*Config, error) {
	var errs []error
	intEnv := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":4000"),
		},
		Log: LogConfig{
			Level:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Environment: strings.ToLower(getEnv("ENVIRONMENT", "development")),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
			AutoMigrate: getEnvBool("STORE_AUTO_MIGRATE", true),
		},
		Gateway: GatewayConfig{
			TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			TwilioFrom:       os.Getenv("TWILIO_PHONE_NUMBER"),
			TwilioBaseURL:    os.Getenv("TWILIO_BASE_URL"),
			WebhookURL:       os.Getenv("WEBHOOK_URL"),
		},
		Scheduler: SchedulerConfig{
			Interval:       time.Duration(intEnv("SCHED_INTERVAL_SECONDS", 60)) * time.Second,
			BatchSize:      intEnv("SCHED_BATCH_SIZE", 0),
			ImmediateBatch: intEnv("SCHED_IMMEDIATE_BATCH", 10),
			MaxAttempts:    intEnv("SCHED_MAX_ATTEMPTS", 1),
			RetryBackoff:   time.Duration(intEnv("SCHED_RETRY_BACKOFF_SECONDS", 300)) * time.Second,
		},
		Campaign: CampaignConfig{
			BirthdayCron:   getEnv("BIRTHDAY_CRON", "0 10 1 * *"),
			BulkMaxLength:  intEnv("BULK_SMS_MAX_LENGTH", 160),
			ReviewFallback: getEnv("REVIEW_SMS_FALLBACK", DefaultReviewFallback),
			JobTimeout:     time.Duration(intEnv("CAMPAIGN_JOB_TIMEOUT_SECONDS", 300)) * time.Second,
		},
		Redis: loadRedisConfig(intEnv),
	}

	if cfg.Store.Driver == DriverPostgres {
		url, err := requireEnv("POSTGRES_URL")
		if err != nil {
			errs = append(errs, err)
		}
		cfg.Store.PostgresURL = url
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig(intEnv func(string, int) int) RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       intEnv("REDIS_DB", 0),
		TTL:      time.Duration(intEnv("REDIS_TTL_SECONDS", 86400)) * time.Second,
		LockTTL:  time.Duration(intEnv("REDIS_LOCK_TTL_SECONDS", 55)) * time.Second,
	}
}

func validate(cfg *Config) error {
	if cfg.Store.Driver != DriverPostgres && cfg.Store.Driver != DriverMemory {
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.Store.Driver)
	}

	if cfg.Scheduler.Interval <= 0 {
		return errors.New("SCHED_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Scheduler.BatchSize < 0 {
		return errors.New("SCHED_BATCH_SIZE must be >= 0")
	}
	if cfg.Scheduler.ImmediateBatch <= 0 {
		return errors.New("SCHED_IMMEDIATE_BATCH must be > 0")
	}
	if cfg.Scheduler.MaxAttempts <= 0 {
		return errors.New("SCHED_MAX_ATTEMPTS must be > 0")
	}
	if cfg.Scheduler.RetryBackoff < 0 {
		return errors.New("SCHED_RETRY_BACKOFF_SECONDS must be >= 0")
	}
	if cfg.Campaign.BulkMaxLength <= 0 {
		return errors.New("BULK_SMS_MAX_LENGTH must be > 0")
	}
	if _, err := cron.ParseStandard(cfg.Campaign.BirthdayCron); err != nil {
		return fmt.Errorf("BIRTHDAY_CRON %q: %w", cfg.Campaign.BirthdayCron, err)
	}
	if cfg.Campaign.JobTimeout <= 0 {
		return errors.New("CAMPAIGN_JOB_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.Redis.Enabled && cfg.Redis.LockTTL <= 0 {
		return errors.New("REDIS_LOCK_TTL_SECONDS must be > 0")
	}
	return nil
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

// getEnvBool treats "false", "0", "no" and "off" as false; anything else set is true.
func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return def
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
