// Package config loads process-wide settings for the scaler from the
// environment, using the defaults-plus-env-override pattern the rest of
// the fleet's services share.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds settings read once at startup.
type Config struct {
	BrokerHost string `mapstructure:"broker_host"`
	Namespace  string `mapstructure:"namespace"`
	MaxJobs    int    `mapstructure:"max_jobs"`

	CatalogPath string `mapstructure:"catalog_path"`
	LogsRoot    string `mapstructure:"logs_root"`
	KubeConfig  string `mapstructure:"kubeconfig"`

	HTTPAddr   string `mapstructure:"http_addr"`
	ReportHost string `mapstructure:"report_host"`

	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig holds the Audit Store's database connection settings.
type PostgresConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	Database     string        `mapstructure:"database"`
	SSLMode      string        `mapstructure:"ssl_mode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds the Audit Store cache's connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DSN builds a lib/pq connection string from the Postgres settings.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Load reads configuration from the environment, falling back to the
// defaults set below.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	cfg := &Config{
		BrokerHost:  v.GetString("broker_host"),
		Namespace:   v.GetString("namespace"),
		MaxJobs:     v.GetInt("max_jobs"),
		CatalogPath: v.GetString("catalog_path"),
		LogsRoot:    v.GetString("logs_root"),
		KubeConfig:  v.GetString("kubeconfig"),
		HTTPAddr:    v.GetString("http_addr"),
		ReportHost:  v.GetString("report_host"),
		Postgres: PostgresConfig{
			Host:         v.GetString("postgres.host"),
			Port:         v.GetInt("postgres.port"),
			User:         v.GetString("postgres.user"),
			Password:     v.GetString("postgres.password"),
			Database:     v.GetString("postgres.database"),
			SSLMode:      v.GetString("postgres.ssl_mode"),
			MaxOpenConns: v.GetInt("postgres.max_open_conns"),
			MaxIdleConns: v.GetInt("postgres.max_idle_conns"),
			ConnLifetime: v.GetDuration("postgres.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	if cfg.MaxJobs <= 0 {
		return nil, fmt.Errorf("max_jobs must be positive, got %d", cfg.MaxJobs)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker_host", "rabbitmq")
	v.SetDefault("namespace", "default")
	v.SetDefault("max_jobs", 3)
	v.SetDefault("catalog_path", "/app/config/jobs.config.json")
	v.SetDefault("logs_root", "/logs")
	v.SetDefault("kubeconfig", "")
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("report_host", "http://scaler:8000")

	v.SetDefault("postgres.host", "postgres")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "user")
	v.SetDefault("postgres.password", "password")
	v.SetDefault("postgres.database", "job_platform")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", "5m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
}

// bindEnv maps each viper key to the flat environment variable name the
// deployment manifests set.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("broker_host", "BROKER_HOST")
	_ = v.BindEnv("namespace", "NAMESPACE")
	_ = v.BindEnv("max_jobs", "MAX_JOBS")
	_ = v.BindEnv("catalog_path", "CATALOG_PATH")
	_ = v.BindEnv("logs_root", "LOGS_ROOT")
	_ = v.BindEnv("kubeconfig", "KUBECONFIG")
	_ = v.BindEnv("http_addr", "HTTP_ADDR")
	_ = v.BindEnv("report_host", "REPORT_HOST")
	_ = v.BindEnv("postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("postgres.database", "POSTGRES_DATABASE")
	_ = v.BindEnv("postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
}
