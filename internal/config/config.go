package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline and its adapters.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Parser    ParserConfig    `yaml:"parser"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Guardrail GuardrailConfig `yaml:"guardrail"`
	Grid      GridConfig      `yaml:"grid"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Store     StoreConfig     `yaml:"store"`
	Lock      LockConfig      `yaml:"lock"`
	Notify    NotifyConfig    `yaml:"notify"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	NewRelic  NewRelicConfig  `yaml:"new_relic"`
}

// ParserConfig holds offer card extraction limits.
type ParserConfig struct {
	MinFare        float64 `yaml:"min_fare"`
	MaxFare        float64 `yaml:"max_fare"`
	MaxTripMinutes int     `yaml:"max_trip_minutes"`
	MaxTripMiles   float64 `yaml:"max_trip_miles"`
}

// MetricsConfig holds the economics constants and verdict thresholds.
type MetricsConfig struct {
	GoodHourly      float64 `yaml:"good_hourly"`
	BadHourly       float64 `yaml:"bad_hourly"`
	OverheadMinutes int     `yaml:"overhead_minutes"`
	CostPerMile     float64 `yaml:"cost_per_mile"`
}

// GuardrailConfig holds the bad-dropoff detection rules.
type GuardrailConfig struct {
	MinSamples         int     `yaml:"min_samples"`
	PerMileThreshold   float64 `yaml:"per_mile_threshold"`
	PerMinuteThreshold float64 `yaml:"per_minute_threshold"`
	DelayThreshold     float64 `yaml:"delay_threshold_minutes"`
	SevereDelayMinutes float64 `yaml:"severe_delay_minutes"`
	SevereTrafficLevel int     `yaml:"severe_traffic_level"`
}

// GridConfig holds the dead-time linking rules. A gap longer than MaxLinkGap
// between a dropoff and the next acceptance is a break; shorter gaps are
// charged to the dropoff zone, capped at DeadTimeCap.
type GridConfig struct {
	MaxLinkGap  time.Duration `yaml:"max_link_gap"`
	DeadTimeCap time.Duration `yaml:"dead_time_cap"`
}

// Offer policies for an OFFER arriving while a trip is open.
const (
	OfferPolicyReject    = "reject"
	OfferPolicySupersede = "supersede"
)

// PipelineConfig holds orchestration policy.
type PipelineConfig struct {
	OfferPolicy   string        `yaml:"offer_policy"`
	DriveLimit    time.Duration `yaml:"drive_limit"`
	LowStarRating float64       `yaml:"low_star_rating"`
	Location      string        `yaml:"location"`
}

// Store backends for grid, guardrail and process state.
const (
	StoreBackendFile     = "file"
	StoreBackendSQLite   = "sqlite"
	StoreBackendPostgres = "postgres"
)

// StoreConfig selects where zone aggregates live.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Lock backends.
const (
	LockBackendFile  = "file"
	LockBackendRedis = "redis"
)

// LockConfig holds pipeline lock settings.
type LockConfig struct {
	Backend string        `yaml:"backend"`
	Wait    time.Duration `yaml:"wait"`
	TTL     time.Duration `yaml:"ttl"`
}

// Notification senders.
const (
	SenderLog    = "log"
	SenderOutbox = "outbox"
)

// NotifyConfig selects the notification sender.
type NotifyConfig struct {
	Sender string `yaml:"sender"`
}

// WatcherConfig holds inbox watcher settings.
type WatcherConfig struct {
	InboxDir string        `yaml:"inbox_dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// ServerConfig holds HTTP trigger configuration.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds Redis configuration. An empty address disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `yaml:"app_name"`
	LicenseKey string `yaml:"license_key"`
	Enabled    bool   `yaml:"enabled"`
}

// DefaultCostPerMile is the EV running cost: £17.83 per 44.57 kWh at 4 mi/kWh.
const DefaultCostPerMile = (17.83 / 44.57) / 4.0

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Parser: ParserConfig{
			MinFare:        2.00,
			MaxFare:        1000,
			MaxTripMinutes: 240,
			MaxTripMiles:   150,
		},
		Metrics: MetricsConfig{
			GoodHourly:      28,
			BadHourly:       22,
			OverheadMinutes: 2,
			CostPerMile:     DefaultCostPerMile,
		},
		Guardrail: GuardrailConfig{
			MinSamples:         3,
			PerMileThreshold:   1.50,
			PerMinuteThreshold: 0.40,
			DelayThreshold:     5,
			SevereDelayMinutes: 5,
			SevereTrafficLevel: 10,
		},
		Grid: GridConfig{
			MaxLinkGap:  50 * time.Minute,
			DeadTimeCap: 60 * time.Minute,
		},
		Pipeline: PipelineConfig{
			OfferPolicy:   OfferPolicyReject,
			DriveLimit:    10 * time.Hour,
			LowStarRating: 4.50,
			Location:      "Europe/London",
		},
		Store: StoreConfig{
			Backend: StoreBackendFile,
		},
		Lock: LockConfig{
			Backend: LockBackendFile,
			Wait:    5 * time.Second,
			TTL:     2 * time.Minute,
		},
		Notify: NotifyConfig{
			Sender: SenderOutbox,
		},
		Watcher: WatcherConfig{
			Debounce: 250 * time.Millisecond,
		},
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "onisai",
			SSLMode: "disable",
		},
		NewRelic: NewRelicConfig{
			AppName: "onisai",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, in that order. An empty path falls back to
// ONISAI_CONFIG; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ONISAI_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	cfg.DataDir = expandHome(cfg.DataDir)
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = filepath.Join(cfg.DataDir, "GridZoneDB", "onisai.db")
	}
	if cfg.Watcher.InboxDir == "" {
		cfg.Watcher.InboxDir = filepath.Join(cfg.DataDir, "Inbox")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	if c.Parser.MaxFare <= c.Parser.MinFare {
		errs = append(errs, fmt.Errorf("parser.max_fare (%.2f) must exceed parser.min_fare (%.2f)",
			c.Parser.MaxFare, c.Parser.MinFare))
	}
	if c.Metrics.BadHourly > c.Metrics.GoodHourly {
		errs = append(errs, fmt.Errorf("metrics.bad_hourly (%.2f) exceeds metrics.good_hourly (%.2f)",
			c.Metrics.BadHourly, c.Metrics.GoodHourly))
	}
	if c.Metrics.CostPerMile < 0 {
		errs = append(errs, errors.New("metrics.cost_per_mile must not be negative"))
	}
	if c.Metrics.OverheadMinutes < 0 {
		errs = append(errs, errors.New("metrics.overhead_minutes must not be negative"))
	}
	if c.Guardrail.MinSamples < 1 {
		errs = append(errs, errors.New("guardrail.min_samples must be at least 1"))
	}
	if c.Guardrail.SevereTrafficLevel < 1 || c.Guardrail.SevereTrafficLevel > 10 {
		errs = append(errs, fmt.Errorf("guardrail.severe_traffic_level %d outside 1..10", c.Guardrail.SevereTrafficLevel))
	}
	if c.Grid.MaxLinkGap <= 0 || c.Grid.DeadTimeCap <= 0 {
		errs = append(errs, errors.New("grid.max_link_gap and grid.dead_time_cap must be positive"))
	}
	switch c.Pipeline.OfferPolicy {
	case OfferPolicyReject, OfferPolicySupersede:
	default:
		errs = append(errs, fmt.Errorf("unknown pipeline.offer_policy %q", c.Pipeline.OfferPolicy))
	}
	if _, err := time.LoadLocation(c.Pipeline.Location); err != nil {
		errs = append(errs, fmt.Errorf("invalid pipeline.location: %w", err))
	}
	switch c.Store.Backend {
	case StoreBackendFile, StoreBackendSQLite, StoreBackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	switch c.Lock.Backend {
	case LockBackendFile:
	case LockBackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("lock.backend redis requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock.backend %q", c.Lock.Backend))
	}
	switch c.Notify.Sender {
	case SenderLog, SenderOutbox:
	default:
		errs = append(errs, fmt.Errorf("unknown notify.sender %q", c.Notify.Sender))
	}

	return errors.Join(errs...)
}

// TimeLocation returns the zone used for trip IDs and day partitions.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Pipeline.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

func applyEnvOverrides(cfg *Config) {
	cfg.DataDir = getEnv("ONISAI_DATA_DIR", cfg.DataDir)

	cfg.Parser.MinFare = getFloatEnv("ONISAI_MIN_FARE", cfg.Parser.MinFare)
	cfg.Parser.MaxFare = getFloatEnv("ONISAI_MAX_FARE", cfg.Parser.MaxFare)
	cfg.Parser.MaxTripMinutes = getIntEnv("ONISAI_MAX_TRIP_MINUTES", cfg.Parser.MaxTripMinutes)
	cfg.Parser.MaxTripMiles = getFloatEnv("ONISAI_MAX_TRIP_MILES", cfg.Parser.MaxTripMiles)

	cfg.Metrics.GoodHourly = getFloatEnv("ONISAI_GOOD_HOURLY", cfg.Metrics.GoodHourly)
	cfg.Metrics.BadHourly = getFloatEnv("ONISAI_BAD_HOURLY", cfg.Metrics.BadHourly)
	cfg.Metrics.OverheadMinutes = getIntEnv("ONISAI_OVERHEAD_MINUTES", cfg.Metrics.OverheadMinutes)
	cfg.Metrics.CostPerMile = getFloatEnv("ONISAI_COST_PER_MILE", cfg.Metrics.CostPerMile)

	cfg.Guardrail.MinSamples = getIntEnv("ONISAI_GUARDRAIL_MIN_SAMPLES", cfg.Guardrail.MinSamples)
	cfg.Guardrail.PerMileThreshold = getFloatEnv("ONISAI_GUARDRAIL_PER_MILE", cfg.Guardrail.PerMileThreshold)
	cfg.Guardrail.PerMinuteThreshold = getFloatEnv("ONISAI_GUARDRAIL_PER_MINUTE", cfg.Guardrail.PerMinuteThreshold)
	cfg.Guardrail.DelayThreshold = getFloatEnv("ONISAI_GUARDRAIL_DELAY_MINUTES", cfg.Guardrail.DelayThreshold)
	cfg.Guardrail.SevereDelayMinutes = getFloatEnv("ONISAI_GUARDRAIL_SEVERE_DELAY_MINUTES", cfg.Guardrail.SevereDelayMinutes)
	cfg.Guardrail.SevereTrafficLevel = getIntEnv("ONISAI_GUARDRAIL_SEVERE_TRAFFIC", cfg.Guardrail.SevereTrafficLevel)

	cfg.Grid.MaxLinkGap = getDurationEnv("ONISAI_GRID_MAX_LINK_GAP", cfg.Grid.MaxLinkGap)
	cfg.Grid.DeadTimeCap = getDurationEnv("ONISAI_GRID_DEAD_TIME_CAP", cfg.Grid.DeadTimeCap)

	cfg.Pipeline.OfferPolicy = getEnv("ONISAI_OFFER_POLICY", cfg.Pipeline.OfferPolicy)
	cfg.Pipeline.DriveLimit = getDurationEnv("ONISAI_DRIVE_LIMIT", cfg.Pipeline.DriveLimit)
	cfg.Pipeline.LowStarRating = getFloatEnv("ONISAI_LOW_STAR_RATING", cfg.Pipeline.LowStarRating)
	cfg.Pipeline.Location = getEnv("ONISAI_LOCATION", cfg.Pipeline.Location)

	cfg.Store.Backend = getEnv("ONISAI_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.SQLitePath = getEnv("ONISAI_SQLITE_PATH", cfg.Store.SQLitePath)

	cfg.Lock.Backend = getEnv("ONISAI_LOCK_BACKEND", cfg.Lock.Backend)
	cfg.Lock.Wait = getDurationEnv("ONISAI_LOCK_WAIT", cfg.Lock.Wait)
	cfg.Lock.TTL = getDurationEnv("ONISAI_LOCK_TTL", cfg.Lock.TTL)

	cfg.Notify.Sender = getEnv("ONISAI_NOTIFY_SENDER", cfg.Notify.Sender)

	cfg.Watcher.InboxDir = getEnv("ONISAI_INBOX_DIR", cfg.Watcher.InboxDir)
	cfg.Watcher.Debounce = getDurationEnv("ONISAI_WATCH_DEBOUNCE", cfg.Watcher.Debounce)

	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getIntEnv("REDIS_DB", cfg.Redis.DB)

	cfg.NewRelic.AppName = getEnv("NEW_RELIC_APP_NAME", cfg.NewRelic.AppName)
	cfg.NewRelic.LicenseKey = getEnv("NEW_RELIC_LICENSE_KEY", cfg.NewRelic.LicenseKey)
	cfg.NewRelic.Enabled = getBoolEnv("NEW_RELIC_ENABLED", cfg.NewRelic.Enabled)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "OnisAI")
	}
	return filepath.Join(home, "Documents", "OnisAI")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
