package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost string
	RedisPort string

	EtcdEndpoints     []string
	LeaderElectionTTL int
	NodeTTL           int

	SchedulerInterval string
	ReconcileInterval string
	RetryBackoff      string

	WorkerConcurrency int
	RunTimeout        string

	APIPort    string
	JWTSecret  string
	JWTIssuer  string
	APIKeyAuth bool

	// AllowAnonymous serves the run-submitting routes when no auth source
	// is configured. Off by default.
	AllowAnonymous bool

	LogLevel    string
	LogEncoding string

	OTLPEndpoint string
	Environment  string

	ArtifactsPath string

	// ReportBucket selects S3 report archiving; empty means ReportDir on local disk.
	ReportBucket   string
	ReportPrefix   string
	ReportDir      string
	S3Region       string
	S3Endpoint     string
	S3AccessKeyID  string
	S3SecretKey    string
	ReportCacheDir string

	// DynamicSource forces the source/url capability: "on", "off" or "auto"
	// (probe for a go toolchain).
	DynamicSource string
}

func LoadConfig() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "benchrun"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "benchrun"),

		RedisHost: getEnv("REDIS_HOST", "localhost"),
		RedisPort: getEnv("REDIS_PORT", "6379"),

		EtcdEndpoints:     strings.Split(getEnv("ETCD_ENDPOINTS", "localhost:2379"), ","),
		LeaderElectionTTL: getEnvAsInt("LEADER_ELECTION_TTL", 15),
		NodeTTL:           getEnvAsInt("NODE_TTL", 10),

		SchedulerInterval: getEnv("SCHEDULER_INTERVAL", "10s"),
		ReconcileInterval: getEnv("RECONCILE_INTERVAL", "30s"),
		RetryBackoff:      getEnv("RETRY_BACKOFF", "10s"),

		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 1),
		RunTimeout:        getEnv("RUN_TIMEOUT", "10m"),

		APIPort:    getEnv("API_PORT", "8080"),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		JWTIssuer:  getEnv("JWT_ISSUER", "benchrun"),
		APIKeyAuth: getEnvAsBool("API_KEY_AUTH", false),

		AllowAnonymous: getEnvAsBool("ALLOW_ANONYMOUS", false),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogEncoding: getEnv("LOG_ENCODING", "json"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Environment:  getEnv("ENVIRONMENT", "development"),

		ArtifactsPath: getEnv("BENCHRUN_ARTIFACTS", "./benchrun-artifacts"),

		ReportBucket:   getEnv("REPORT_BUCKET", ""),
		ReportPrefix:   getEnv("REPORT_PREFIX", "reports/"),
		ReportDir:      getEnv("REPORT_DIR", "./benchrun-reports"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:  getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:    getEnv("S3_SECRET_ACCESS_KEY", ""),
		ReportCacheDir: getEnv("REPORT_CACHE_DIR", ""),

		DynamicSource: strings.ToLower(getEnv("BENCHRUN_DYNAMIC_SOURCE", "auto")),
	}
}

// PostgresDSN builds the connection string for the run store.
func (c *Config) PostgresDSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=disable"
}

// RedisAddr returns host:port of the queue.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// DynamicSourceOverride returns the forced capability, or nil for "auto".
func (c *Config) DynamicSourceOverride() *bool {
	var v bool
	switch c.DynamicSource {
	case "on", "true", "1":
		v = true
	case "off", "false", "0":
		v = false
	default:
		return nil
	}
	return &v
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}
