// Package config loads the service configuration from a YAML file with
// environment overrides. A .env file next to the binary is loaded first.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	GRPCPort  int    `mapstructure:"grpc_port"`
	HTTPPort  int    `mapstructure:"http_port"`
	UploadDir string `mapstructure:"upload_dir"`

	// TrustedProxies are addresses or CIDR ranges whose X-Forwarded-For
	// header is believed. Empty keys rate limits on the peer address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

type KafkaConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Brokers            []string `mapstructure:"brokers"`
	EventsTopic        string   `mapstructure:"events_topic"`
	NotificationsTopic string   `mapstructure:"notifications_topic"`
	GroupID            string   `mapstructure:"group_id"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type SMTPConfig struct {
	Host      string  `mapstructure:"host"`
	Port      int     `mapstructure:"port"`
	User      string  `mapstructure:"user"`
	Password  string  `mapstructure:"password"`
	FromName  string  `mapstructure:"from_name"`
	FromEmail string  `mapstructure:"from_email"`
	PerSecond float64 `mapstructure:"per_second"`
}

type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	AuthLimit  int           `mapstructure:"auth_limit"`
	AuthWindow time.Duration `mapstructure:"auth_window"`
}

type SchedulerConfig struct {
	ExpirySchedule string `mapstructure:"expiry_schedule"`
}

// envAliases maps keys to the short environment names used in .env files.
var envAliases = map[string]string{
	"auth.jwt_secret": "JWT_SECRET",
	"smtp.host":       "SMTP_HOST",
	"smtp.port":       "SMTP_PORT",
	"smtp.user":       "SMTP_USER",
	"smtp.password":   "SMTP_PASS",
	"smtp.from_name":  "FROM_NAME",
	"smtp.from_email": "FROM_EMAIL",
}

// Load reads file (optional when empty) and applies environment overrides.
// Every key can be overridden as SECTION_KEY, e.g. DATABASE_HOST.
func Load(file string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.upload_dir", "./uploads")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "marketplace")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "marketplace.db")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "marketplace.applications")
	v.SetDefault("kafka.notifications_topic", "marketplace.notifications")
	v.SetDefault("kafka.group_id", "marketplace-notifier")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "internhub")
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from_name", "Internship Allocation")
	v.SetDefault("smtp.from_email", "noreply@internhub.local")
	v.SetDefault("smtp.per_second", 5.0)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.auth_limit", 20)
	v.SetDefault("redis.auth_window", 15*time.Minute)

	v.SetDefault("scheduler.expiry_schedule", "0 * * * *")
}

func (c Config) validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("missing variable: auth.jwt_secret"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl must be positive"))
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, fmt.Errorf("missing variable: database.host or database.name"))
		}
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, fmt.Errorf("missing variable: database.path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, fmt.Errorf("missing variable: kafka.brokers"))
	}
	if c.Server.HTTPPort <= 0 || c.Server.GRPCPort <= 0 {
		errs = append(errs, fmt.Errorf("server ports must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
