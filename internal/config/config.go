package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
// URL, when set, is used verbatim and the discrete fields are ignored.
type DatabaseConfig struct {
	URL                string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	AppName            string
	ConnectTimeoutSec  int
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// RedisConfig holds the task broker connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// MinIOConfig holds object storage settings for MinIO.
// Report archiving is disabled when Endpoint is empty.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// KafkaConfig controls where task lifecycle events are published.
// With no brokers configured, events are only logged.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// WorkerConfig mirrors the task runtime knobs of the worker process.
type WorkerConfig struct {
	Concurrency       int
	Queues            []string
	SoftTimeLimit     time.Duration
	HardTimeLimit     time.Duration
	PollTimeout       time.Duration
	VisibilityTimeout time.Duration
	MetricsAddr       string
}

// SchedulerConfig configures the periodic job scheduler.
type SchedulerConfig struct {
	ScheduleFile string
	JobTimeout   time.Duration
}

// GraphQLConfig points background jobs at the GraphQL endpoint.
type GraphQLConfig struct {
	URL     string
	Timeout time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost   string
	Port      string
	Timezone  string
	LogLevel  string
	LogFile   string
	LogDir    string
	Database  DatabaseConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	Kafka     KafkaConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
	GraphQL   GraphQLConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// Real environment variables take precedence over the file.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:  getEnv("APP_HOST", "localhost:8000"),
		Port:     getEnv("PORT", "8000"),
		Timezone: getEnv("TIMEZONE", "UTC"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
		LogDir:   getEnv("LOG_DIR", "/tmp"),
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			AppName:            getEnv("DB_APPLICATION_NAME", "crm"),
			ConnectTimeoutSec:  getEnvInt("DB_CONNECT_TIMEOUT_SEC", 5),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "crm"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TASK_EVENTS_TOPIC", "crm.task-events"),
		},
		Worker: WorkerConfig{
			Concurrency:       getEnvInt("WORKER_CONCURRENCY", 4),
			Queues:            getEnvList("WORKER_QUEUES", []string{"default", "reports"}),
			SoftTimeLimit:     getEnvDuration("TASK_SOFT_TIME_LIMIT", 60*time.Second),
			HardTimeLimit:     getEnvDuration("TASK_HARD_TIME_LIMIT", 120*time.Second),
			PollTimeout:       getEnvDuration("WORKER_POLL_TIMEOUT", 2*time.Second),
			VisibilityTimeout: getEnvDuration("TASK_VISIBILITY_TIMEOUT", 30*time.Minute),
			MetricsAddr:       getEnv("WORKER_METRICS_ADDR", ":9100"),
		},
		Scheduler: SchedulerConfig{
			ScheduleFile: getEnv("SCHEDULE_FILE", ""),
			JobTimeout:   getEnvDuration("SCHEDULE_JOB_TIMEOUT", 5*time.Minute),
		},
		GraphQL: GraphQLConfig{
			URL:     getEnv("GRAPHQL_URL", "http://localhost:8000/graphql"),
			Timeout: getEnvDuration("GRAPHQL_TIMEOUT", 30*time.Second),
		},
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
