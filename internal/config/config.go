package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// ANPR Compliance Core - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	Poller     PollerConfig     `yaml:"poller"`
	Session    SessionConfig    `yaml:"session"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	PubSub     PubSubConfig     `yaml:"pubsub"`
	CloudTasks CloudTasksConfig `yaml:"cloud_tasks"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig configures the admin gRPC listener (C16). There is no HTTP
// surface in this process; ingestion is driven by external callers through
// the package API, not a listener owned here.
type ServerConfig struct {
	Env             string `yaml:"env"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig is the Postgres connection used by the Store (C9).
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_minutes"`
}

// RedisConfig backs the Job Lock (C12).
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SupabaseConfig is the read-only Site Config Reader client (C13).
type SupabaseConfig struct {
	URL           string `yaml:"url"`
	ServiceKey    string `yaml:"service_key"`
	CacheTTLMins  int    `yaml:"cache_ttl_minutes"`
}

// PollerConfig is the ANPR Poller Client (C14).
type PollerConfig struct {
	URL             string `yaml:"url"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	TimeoutSec      int    `yaml:"timeout_sec"`
}

// SessionConfig holds the Session Reconstructor's stale-session sweep
// settings (spec §4.3). cmd/anprsvc applies StaleThresholdHours.
// ExpirySweepLimit and ExpiryCron are loaded but not read anywhere: the
// sweep runs hourly (scheduler.ExpiryInterval) and is capped at
// session.MaxExpirySweep sessions per pass.
type SessionConfig struct {
	StaleThresholdHours int `yaml:"stale_threshold_hours"`
	ExpirySweepLimit    int `yaml:"expiry_sweep_limit"`
	ExpiryCron          string `yaml:"expiry_cron"`
}

// ReconcileConfig holds the Scheduled Re-evaluator's settings (spec §4.6).
// Both fields are loaded but not read anywhere: the scheduler uses its
// fixed scheduler.ReevaluationBatchSize and scheduler.ReevaluationInterval.
type ReconcileConfig struct {
	BatchSize int    `yaml:"batch_size"`
	Cron      string `yaml:"cron"`
}

// PubSubConfig is the Audit Publisher (C10).
type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
	Enabled   bool   `yaml:"enabled"`
}

// CloudTasksConfig is the Reconciliation Task Queue (C11).
type CloudTasksConfig struct {
	ProjectID      string `yaml:"project_id"`
	LocationID     string `yaml:"location_id"`
	QueueID        string `yaml:"queue_id"`
	Enabled        bool   `yaml:"enabled"`
	HighWaterMark  int    `yaml:"high_water_mark"`
	WorkerCount    int    `yaml:"worker_count"`
}

// AdminConfig is the gRPC Admin Surface (C16).
type AdminConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides, per spec §6.
func (c *Config) applyEnvOverrides() {
	c.Server.Env = getEnv("ANPR_ENV", c.Server.Env)
	if v := getEnvInt("ANPR_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}

	c.Database.DSN = getEnv("ANPR_DATABASE_DSN", c.Database.DSN)
	if v := getEnvInt("ANPR_DB_MAX_OPEN_CONNS", 0); v > 0 {
		c.Database.MaxOpenConns = v
	}
	if v := getEnvInt("ANPR_DB_MAX_IDLE_CONNS", 0); v > 0 {
		c.Database.MaxIdleConns = v
	}

	c.Redis.Addr = getEnv("ANPR_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("ANPR_REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("ANPR_REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}

	c.Supabase.URL = getEnv("SUPABASE_URL", c.Supabase.URL)
	c.Supabase.ServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.Supabase.ServiceKey)
	if v := getEnvInt("ANPR_SITE_CACHE_TTL_MINUTES", 0); v > 0 {
		c.Supabase.CacheTTLMins = v
	}

	c.Poller.URL = getEnv("ANPR_POLLER_URL", c.Poller.URL)
	if v := getEnvInt("ANPR_POLLER_INTERVAL_SEC", 0); v > 0 {
		c.Poller.PollIntervalSec = v
	}
	if v := getEnvInt("ANPR_POLLER_TIMEOUT_SEC", 0); v > 0 {
		c.Poller.TimeoutSec = v
	}

	if v := getEnvInt("ANPR_STALE_THRESHOLD_HOURS", 0); v > 0 {
		c.Session.StaleThresholdHours = v
	}
	if v := getEnvInt("ANPR_EXPIRY_SWEEP_LIMIT", 0); v > 0 {
		c.Session.ExpirySweepLimit = v
	}
	c.Session.ExpiryCron = getEnv("ANPR_EXPIRY_CRON", c.Session.ExpiryCron)

	if v := getEnvInt("ANPR_REEVAL_BATCH_SIZE", 0); v > 0 {
		c.Reconcile.BatchSize = v
	}
	c.Reconcile.Cron = getEnv("ANPR_REEVAL_CRON", c.Reconcile.Cron)

	if projectID := getEnv("GCP_PROJECT_ID", ""); projectID != "" {
		c.PubSub.ProjectID = projectID
		c.CloudTasks.ProjectID = projectID
	}
	c.PubSub.TopicID = getEnv("ANPR_PUBSUB_TOPIC_ID", c.PubSub.TopicID)
	c.PubSub.Enabled = getEnvBool("ANPR_PUBSUB_ENABLED", c.PubSub.Enabled)

	c.CloudTasks.LocationID = getEnv("ANPR_CLOUD_TASKS_LOCATION", c.CloudTasks.LocationID)
	c.CloudTasks.QueueID = getEnv("ANPR_CLOUD_TASKS_QUEUE", c.CloudTasks.QueueID)
	c.CloudTasks.Enabled = getEnvBool("ANPR_CLOUD_TASKS_ENABLED", c.CloudTasks.Enabled)
	if v := getEnvInt("ANPR_TASKQUEUE_HIGH_WATER_MARK", 0); v > 0 {
		c.CloudTasks.HighWaterMark = v
	}
	if v := getEnvInt("ANPR_TASKQUEUE_WORKERS", 0); v > 0 {
		c.CloudTasks.WorkerCount = v
	}

	c.Admin.ListenAddr = getEnv("ANPR_ADMIN_LISTEN_ADDR", c.Admin.ListenAddr)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields, per
// spec §6's default cadences and thresholds.
func (c *Config) applyDefaults() {
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifeMins == 0 {
		c.Database.ConnMaxLifeMins = 30
	}
	if c.Supabase.CacheTTLMins == 0 {
		c.Supabase.CacheTTLMins = 5
	}
	if c.Poller.PollIntervalSec == 0 {
		c.Poller.PollIntervalSec = 10
	}
	if c.Poller.TimeoutSec == 0 {
		c.Poller.TimeoutSec = 60
	}
	if c.Session.StaleThresholdHours == 0 {
		c.Session.StaleThresholdHours = 24
	}
	if c.Session.ExpirySweepLimit == 0 {
		c.Session.ExpirySweepLimit = 1000
	}
	if c.Session.ExpiryCron == "" {
		c.Session.ExpiryCron = "0 * * * *"
	}
	if c.Reconcile.BatchSize == 0 {
		c.Reconcile.BatchSize = 500
	}
	if c.Reconcile.Cron == "" {
		c.Reconcile.Cron = "*/30 * * * *"
	}
	if c.PubSub.TopicID == "" {
		c.PubSub.TopicID = "anpr-audit"
	}
	if c.CloudTasks.LocationID == "" {
		c.CloudTasks.LocationID = "us-central1"
	}
	if c.CloudTasks.QueueID == "" {
		c.CloudTasks.QueueID = "anpr-reconciliation"
	}
	if c.CloudTasks.HighWaterMark == 0 {
		c.CloudTasks.HighWaterMark = 5000
	}
	if c.CloudTasks.WorkerCount == 0 {
		c.CloudTasks.WorkerCount = 8
	}
	if c.Admin.ListenAddr == "" {
		c.Admin.ListenAddr = ":9090"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}
