// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LevelDB  LevelDBConfig  `yaml:"leveldb"`
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
	Worker   WorkerConfig   `yaml:"worker"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
}

// LevelDBConfig holds the default record store configuration
type LevelDBConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds the optional PostgreSQL record store configuration.
// When URL is set it replaces the LevelDB store.
type PostgresConfig struct {
	URL string `yaml:"-"`
}

// NATSConfig holds the optional status event stream configuration.
// When URL is empty no events are published.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// WorkerConfig holds scheduler and retry configuration
type WorkerConfig struct {
	MaxWorkers      int `yaml:"maxWorkers"`
	QueueSize       int `yaml:"queueSize"`
	LaunchDelayMS   int `yaml:"launchDelayMs"`
	MaxStageRetries int `yaml:"maxStageRetries"`
	RetryBackoffMS  int `yaml:"retryBackoffMs"`
	ShutdownTimeout int `yaml:"shutdownTimeout"`
}

// PipelineConfig holds collaborator configuration
type PipelineConfig struct {
	WorkDir        string `yaml:"workDir"`
	TargetLanguage string `yaml:"targetLanguage"`
	YTDLPPath      string `yaml:"ytdlpPath"`
	WhisperPath    string `yaml:"whisperPath"`
	WhisperModel   string `yaml:"whisperModel"`
	TranslatorPath string `yaml:"translatorPath"`
	FFmpegPath     string `yaml:"ffmpegPath"`
}

// Default configuration values
const (
	DefaultServerPort         = "8080"
	DefaultServerReadTimeout  = 30
	DefaultServerWriteTimeout = 30
	DefaultLevelDBPath        = "./data/records"
	DefaultNATSSubjectPrefix  = "sublate.status"
	DefaultMaxWorkers         = 4
	DefaultQueueSize          = 1024
	DefaultLaunchDelayMS      = 2000
	DefaultMaxStageRetries    = 3
	DefaultRetryBackoffMS     = 5000
	DefaultShutdownTimeout    = 30
	DefaultWorkDir            = "./data/work"
	DefaultTargetLanguage     = "zh"
	DefaultYTDLPPath          = "yt-dlp"
	DefaultWhisperPath        = "whisper"
	DefaultWhisperModel       = "base"
	DefaultTranslatorPath     = "sub-translate"
	DefaultFFmpegPath         = "ffmpeg"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// firstNonZero returns the first non-zero of the two values
func firstNonZero(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func firstNonEmpty(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// Load creates a new configuration from an optional YAML file, with
// environment variables taking precedence over file values and defaults
// filling the rest.
func Load(configPath string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.Server = ServerConfig{
		Port:         getEnv("SUBLATE_SERVER_PORT", firstNonEmpty(config.Server.Port, DefaultServerPort)),
		ReadTimeout:  getEnvInt("SUBLATE_SERVER_READ_TIMEOUT", firstNonZero(config.Server.ReadTimeout, DefaultServerReadTimeout)),
		WriteTimeout: getEnvInt("SUBLATE_SERVER_WRITE_TIMEOUT", firstNonZero(config.Server.WriteTimeout, DefaultServerWriteTimeout)),
	}

	config.LevelDB = LevelDBConfig{
		Path: getEnv("SUBLATE_LEVELDB_PATH", firstNonEmpty(config.LevelDB.Path, DefaultLevelDBPath)),
	}

	config.Postgres = PostgresConfig{
		URL: os.Getenv("SUBLATE_POSTGRES_URL"),
	}

	config.NATS = NATSConfig{
		URL:           getEnv("SUBLATE_NATS_URL", config.NATS.URL),
		SubjectPrefix: getEnv("SUBLATE_NATS_SUBJECT_PREFIX", firstNonEmpty(config.NATS.SubjectPrefix, DefaultNATSSubjectPrefix)),
	}

	config.Worker = WorkerConfig{
		MaxWorkers:      getEnvInt("SUBLATE_WORKER_MAX_WORKERS", firstNonZero(config.Worker.MaxWorkers, DefaultMaxWorkers)),
		QueueSize:       getEnvInt("SUBLATE_WORKER_QUEUE_SIZE", firstNonZero(config.Worker.QueueSize, DefaultQueueSize)),
		LaunchDelayMS:   getEnvInt("SUBLATE_WORKER_LAUNCH_DELAY_MS", firstNonZero(config.Worker.LaunchDelayMS, DefaultLaunchDelayMS)),
		MaxStageRetries: getEnvInt("SUBLATE_WORKER_MAX_STAGE_RETRIES", firstNonZero(config.Worker.MaxStageRetries, DefaultMaxStageRetries)),
		RetryBackoffMS:  getEnvInt("SUBLATE_WORKER_RETRY_BACKOFF_MS", firstNonZero(config.Worker.RetryBackoffMS, DefaultRetryBackoffMS)),
		ShutdownTimeout: getEnvInt("SUBLATE_WORKER_SHUTDOWN_TIMEOUT", firstNonZero(config.Worker.ShutdownTimeout, DefaultShutdownTimeout)),
	}

	config.Pipeline = PipelineConfig{
		WorkDir:        getEnv("SUBLATE_WORK_DIR", firstNonEmpty(config.Pipeline.WorkDir, DefaultWorkDir)),
		TargetLanguage: getEnv("SUBLATE_TARGET_LANGUAGE", firstNonEmpty(config.Pipeline.TargetLanguage, DefaultTargetLanguage)),
		YTDLPPath:      getEnv("SUBLATE_YTDLP_PATH", firstNonEmpty(config.Pipeline.YTDLPPath, DefaultYTDLPPath)),
		WhisperPath:    getEnv("SUBLATE_WHISPER_PATH", firstNonEmpty(config.Pipeline.WhisperPath, DefaultWhisperPath)),
		WhisperModel:   getEnv("SUBLATE_WHISPER_MODEL", firstNonEmpty(config.Pipeline.WhisperModel, DefaultWhisperModel)),
		TranslatorPath: getEnv("SUBLATE_TRANSLATOR_PATH", firstNonEmpty(config.Pipeline.TranslatorPath, DefaultTranslatorPath)),
		FFmpegPath:     getEnv("SUBLATE_FFMPEG_PATH", firstNonEmpty(config.Pipeline.FFmpegPath, DefaultFFmpegPath)),
	}

	return &config, nil
}
