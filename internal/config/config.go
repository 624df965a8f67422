package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string

	// DisplayLocation is the timezone used for snapshot and history times.
	DisplayLocation *time.Location

	SensorAPIKey   string
	RateLimitRPS   int
	RateLimitBurst int

	DBDriver          string // "sqlite", "mysql" or "postgres"
	DBDSN             string
	DBMaxIdleConns    int
	DBMaxOpenConns    int
	DBConnMaxLifetime time.Duration
	DBLogQueries      bool

	CacheBackend          string // "in_memory" or "memcached"
	CacheCapacity         int
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	SoilThreshold int
	NotifyTimeout time.Duration

	// Per-channel breaker; off unless enabled so every alert tries every channel.
	BreakerEnabled          bool
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerCooldown         time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	EmailTo      []string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioTo         string

	NATSURL     string
	NATSSubject string

	MQTTEnabled        bool
	MQTTBrokerURL      string
	MQTTClientID       string
	MQTTUsername       string
	MQTTPassword       string
	MQTTTopic          string
	MQTTQoS            byte
	MQTTConnectTimeout time.Duration

	AdminPassword     string
	AdminPasswordHash string
	SessionBackend    string // "memory" or "redis"
	SessionTTL        time.Duration
	SessionSecure     bool
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	ModelsDir string
}

type fileConfig struct {
	Server struct {
		Port            string `yaml:"port"`
		RequestTimeout  string `yaml:"request_timeout"`
		DisplayTimezone string `yaml:"display_timezone"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Sensor struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"sensor"`

	Database struct {
		Driver          string `yaml:"driver"`
		DSN             string `yaml:"dsn"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		LogQueries      bool   `yaml:"log_queries"`
	} `yaml:"database"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Capacity  int    `yaml:"capacity"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Alerting struct {
		SoilThreshold *int   `yaml:"soil_threshold"`
		NotifyTimeout string `yaml:"notify_timeout"`
		Breaker       struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Cooldown         string `yaml:"cooldown"`
		} `yaml:"circuit_breaker"`
		Email         struct {
			Host string   `yaml:"smtp_host"`
			Port int      `yaml:"smtp_port"`
			From string   `yaml:"from"`
			To   []string `yaml:"to"`
		} `yaml:"email"`
		SMS struct {
			From string `yaml:"from"`
			To   string `yaml:"to"`
		} `yaml:"sms"`
		NATS struct {
			URL     string `yaml:"url"`
			Subject string `yaml:"subject"`
		} `yaml:"nats"`
	} `yaml:"alerting"`

	MQTT struct {
		Enabled        bool   `yaml:"enabled"`
		BrokerURL      string `yaml:"broker_url"`
		ClientID       string `yaml:"client_id"`
		Topic          string `yaml:"topic"`
		QoS            int    `yaml:"qos"`
		ConnectTimeout string `yaml:"connect_timeout"`
	} `yaml:"mqtt"`

	Session struct {
		Backend string `yaml:"backend"`
		TTL     string `yaml:"ttl"`
		Secure  bool   `yaml:"secure_cookie"`
		Redis   struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"session"`

	Price struct {
		ModelsDir string `yaml:"models_dir"`
	} `yaml:"price"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	SensorAPIKey      string `yaml:"sensor_api_key"`
	AdminPassword     string `yaml:"admin_password"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	SMTPUsername      string `yaml:"smtp_username"`
	SMTPPassword      string `yaml:"smtp_password"`
	TwilioAccountSID  string `yaml:"twilio_account_sid"`
	TwilioAuthToken   string `yaml:"twilio_auth_token"`
	MQTTUsername      string `yaml:"mqtt_username"`
	MQTTPassword      string `yaml:"mqtt_password"`
	RedisPassword     string `yaml:"redis_password"`
	DatabaseDSN       string `yaml:"database_dsn"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first; variables already set win.
// Credentials come from env or the secrets file. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsData, err := os.ReadFile(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = envOr("PORT", fc.Server.Port, "5000")
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, 10*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.LogLevel = envOr("LOG_LEVEL", fc.Log.Level, "info")

	tz := envOr("DISPLAY_TIMEZONE", fc.Server.DisplayTimezone, "Asia/Kolkata")
	cfg.DisplayLocation, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("server.display_timezone %q: %w", tz, err)
	}

	cfg.SensorAPIKey = envOr("SENSOR_API_KEY", sec.SensorAPIKey, "")
	cfg.RateLimitRPS = positiveOr(fc.Sensor.RateLimitRPS, 20)
	cfg.RateLimitBurst = positiveOr(fc.Sensor.RateLimitBurst, 40)

	cfg.DBDriver = strings.ToLower(envOr("DB_DRIVER", fc.Database.Driver, "sqlite"))
	cfg.DBDSN = envOr("DATABASE_URL", sec.DatabaseDSN, fc.Database.DSN)
	cfg.DBMaxIdleConns = fc.Database.MaxIdleConns
	cfg.DBMaxOpenConns = fc.Database.MaxOpenConns
	cfg.DBConnMaxLifetime = parseDurationOrZero(fc.Database.ConnMaxLifetime, 0)
	cfg.DBLogQueries = fc.Database.LogQueries

	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend, "in_memory"))
	cfg.CacheCapacity = positiveOr(fc.Cache.Capacity, 200)
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.SoilThreshold = 25
	if fc.Alerting.SoilThreshold != nil {
		cfg.SoilThreshold = *fc.Alerting.SoilThreshold
	}
	cfg.NotifyTimeout = parseDurationOrZero(fc.Alerting.NotifyTimeout, 0)
	cfg.BreakerEnabled = fc.Alerting.Breaker.Enabled
	cfg.BreakerFailureThreshold = positiveOr(fc.Alerting.Breaker.FailureThreshold, 5)
	cfg.BreakerSuccessThreshold = positiveOr(fc.Alerting.Breaker.SuccessThreshold, 1)
	cfg.BreakerCooldown = parseDuration(fc.Alerting.Breaker.Cooldown, time.Minute)

	cfg.SMTPHost = envOr("SMTP_HOST", fc.Alerting.Email.Host, "smtp.gmail.com")
	cfg.SMTPPort = positiveOr(fc.Alerting.Email.Port, 465)
	if p := os.Getenv("SMTP_PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("SMTP_PORT: %w", err)
		}
		cfg.SMTPPort = n
	}
	cfg.SMTPUsername = envOr("EMAIL_USER", sec.SMTPUsername, "")
	cfg.SMTPPassword = envOr("EMAIL_PASS", sec.SMTPPassword, "")
	cfg.EmailFrom = envOr("EMAIL_FROM", fc.Alerting.Email.From, cfg.SMTPUsername)
	cfg.EmailTo = fc.Alerting.Email.To
	if to := os.Getenv("EMAIL_TO"); to != "" {
		cfg.EmailTo = splitList(to)
	}

	cfg.TwilioAccountSID = envOr("TWILIO_ACCOUNT_SID", sec.TwilioAccountSID, "")
	cfg.TwilioAuthToken = envOr("TWILIO_AUTH_TOKEN", sec.TwilioAuthToken, "")
	cfg.TwilioFrom = envOr("TWILIO_PHONE_NUMBER", fc.Alerting.SMS.From, "")
	cfg.TwilioTo = envOr("FARMER_PHONE_NUMBER", fc.Alerting.SMS.To, "")

	cfg.NATSURL = envOr("NATS_URL", fc.Alerting.NATS.URL, "")
	cfg.NATSSubject = envOr("NATS_SUBJECT", fc.Alerting.NATS.Subject, "farm.alerts")

	cfg.MQTTEnabled = fc.MQTT.Enabled
	cfg.MQTTBrokerURL = envOr("MQTT_BROKER_URL", fc.MQTT.BrokerURL, "tcp://localhost:1883")
	cfg.MQTTClientID = envOr("MQTT_CLIENT_ID", fc.MQTT.ClientID, "smart-farm-service")
	cfg.MQTTUsername = envOr("MQTT_USERNAME", sec.MQTTUsername, "")
	cfg.MQTTPassword = envOr("MQTT_PASSWORD", sec.MQTTPassword, "")
	cfg.MQTTTopic = envOr("MQTT_TOPIC", fc.MQTT.Topic, "farm/sensors")
	if fc.MQTT.QoS < 0 || fc.MQTT.QoS > 2 {
		return nil, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", fc.MQTT.QoS)
	}
	cfg.MQTTQoS = byte(fc.MQTT.QoS)
	cfg.MQTTConnectTimeout = parseDuration(fc.MQTT.ConnectTimeout, 10*time.Second)

	cfg.AdminPassword = envOr("ADMIN_PASSWORD", sec.AdminPassword, "")
	cfg.AdminPasswordHash = envOr("ADMIN_PASSWORD_HASH", sec.AdminPasswordHash, "")
	cfg.SessionBackend = strings.ToLower(envOr("SESSION_BACKEND", fc.Session.Backend, "memory"))
	cfg.SessionTTL = parseDuration(fc.Session.TTL, 12*time.Hour)
	cfg.SessionSecure = fc.Session.Secure
	cfg.RedisAddr = envOr("REDIS_ADDR", fc.Session.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = envOr("REDIS_PASSWORD", sec.RedisPassword, "")
	cfg.RedisDB = fc.Session.Redis.DB

	cfg.ModelsDir = envOr("MODELS_DIR", fc.Price.ModelsDir, "models")

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOr returns the env var key when set, else fileVal, else def.
func envOr(key, fileVal, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(fileVal); v != "" {
		return v
	}
	return def
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.SensorAPIKey == "" {
		return fmt.Errorf("SENSOR_API_KEY required (set env or config/secrets.yaml sensor_api_key)")
	}
	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD required (set env or config/secrets.yaml admin_password or admin_password_hash)")
	}
	switch cfg.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite, mysql or postgres, got %q", cfg.DBDriver)
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDSN == "" {
		return fmt.Errorf("database.dsn required for driver %s", cfg.DBDriver)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.SessionBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("session.backend must be memory or redis, got %q", cfg.SessionBackend)
	}
	if cfg.SoilThreshold <= 0 {
		return fmt.Errorf("alerting.soil_threshold must be positive, got %d", cfg.SoilThreshold)
	}
	if cfg.NotifyTimeout < 0 {
		return fmt.Errorf("alerting.notify_timeout must not be negative")
	}
	return nil
}
