package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Storage    StorageConfig
	FFmpeg     FFmpegConfig
	Processing ProcessingConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
}

type FFmpegConfig struct {
	FFmpegPath string
}

type ProcessingConfig struct {
	Concurrency      int
	MaxAttempts      int
	MaxSourceBytes   int64
	DownloadTimeout  time.Duration
	TranscodeTimeout time.Duration
	WebhookTimeout   time.Duration
	WorkDir          string
	JobRetention     time.Duration
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("ffmpeg.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("processing.concurrency", "PROCESSING_CONCURRENCY")
	_ = viper.BindEnv("processing.max_attempts", "PROCESSING_MAX_ATTEMPTS")
	_ = viper.BindEnv("processing.max_source_bytes", "PROCESSING_MAX_SOURCE_BYTES")
	_ = viper.BindEnv("processing.download_timeout", "PROCESSING_DOWNLOAD_TIMEOUT")
	_ = viper.BindEnv("processing.transcode_timeout", "PROCESSING_TRANSCODE_TIMEOUT")
	_ = viper.BindEnv("processing.webhook_timeout", "PROCESSING_WEBHOOK_TIMEOUT")
	_ = viper.BindEnv("processing.work_dir", "PROCESSING_WORK_DIR")
	_ = viper.BindEnv("processing.job_retention", "PROCESSING_JOB_RETENTION")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("storage.region", "auto")
	viper.SetDefault("processing.concurrency", 4)
	viper.SetDefault("processing.max_attempts", 3)
	viper.SetDefault("processing.max_source_bytes", 500*1024*1024)
	viper.SetDefault("processing.download_timeout", "5m")
	viper.SetDefault("processing.transcode_timeout", "10m")
	viper.SetDefault("processing.webhook_timeout", "10s")
	viper.SetDefault("processing.work_dir", "")
	viper.SetDefault("processing.job_retention", "24h")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			Region:          viper.GetString("storage.region"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath: viper.GetString("ffmpeg.ffmpeg_path"),
		},
		Processing: ProcessingConfig{
			Concurrency:      viper.GetInt("processing.concurrency"),
			MaxAttempts:      viper.GetInt("processing.max_attempts"),
			MaxSourceBytes:   viper.GetInt64("processing.max_source_bytes"),
			DownloadTimeout:  viper.GetDuration("processing.download_timeout"),
			TranscodeTimeout: viper.GetDuration("processing.transcode_timeout"),
			WebhookTimeout:   viper.GetDuration("processing.webhook_timeout"),
			WorkDir:          viper.GetString("processing.work_dir"),
			JobRetention:     viper.GetDuration("processing.job_retention"),
		},
	}

	return cfg, nil
}
