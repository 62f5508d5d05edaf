package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the client configuration. It is built once at startup and
// handed to the components that need it.
type Config struct {
	// Media service address
	APIHost     string
	APIPort     string
	APIProtocol string // "http" or "https"

	APITimeout       time.Duration // applied to every request except streamed bodies
	APIUploadTimeout time.Duration // 0 means no limit, media files can be large

	// Session token storage
	SessionStore   string // "file" or "redis"
	SessionFile    string // empty means <user config dir>/pi-medias/session
	SessionKey     string // redis key holding the token
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	MetricsEnabled bool
	MetricsAddr    string

	// MinIO, used as an upload source
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioRegion    string
	MinioUseSSL    bool

	// Folder watcher
	WatchSettle       time.Duration // how long a file must stay unchanged before upload
	UploadConcurrency int

	// 日志配置
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

// BaseURL returns the media service address as {protocol}://{host}:{port}.
// Missing parts are not validated; the resulting address simply fails to
// connect.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("%s://%s:%s", c.APIProtocol, c.APIHost, c.APIPort)
}

// RedisAddr returns host:port of the redis session store.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() *Config {
	return &Config{
		// API_* have no defaults: an unset value yields an unusable address.
		APIHost:          os.Getenv("API_HOST"),
		APIPort:          os.Getenv("API_PORT"),
		APIProtocol:      os.Getenv("API_PROTOCOL"),
		APITimeout:       getEnvDuration("API_TIMEOUT", 30*time.Second),
		APIUploadTimeout: getEnvDuration("API_UPLOAD_TIMEOUT", 0),

		SessionStore:   getEnv("SESSION_STORE", "file"),
		SessionFile:    os.Getenv("SESSION_FILE"),
		SessionKey:     getEnv("SESSION_KEY", "pimedias:session"),
		RedisHost:      getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:        getEnvInt("REDIS_DB", 0),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9091"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		WatchSettle:       getEnvDuration("WATCH_SETTLE", 2*time.Second),
		UploadConcurrency: getEnvInt("UPLOAD_CONCURRENCY", 2),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       os.Getenv("LOG_FILE"),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 10),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvBool("LOG_COMPRESS", false),
	}
}
