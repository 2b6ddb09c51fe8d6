package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Blob      BlobConfig
	Queue     QueueConfig
	Extract   ExtractConfig
	Retention RetentionConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" or "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr       string
	MaxUploadBytes int64
}

// BlobConfig selects and configures the blob store.
type BlobConfig struct {
	Driver    string // "fs" or "gcs"
	FSRoot    string
	GCSBucket string
}

// QueueConfig selects and configures the task queue.
type QueueConfig struct {
	Driver            string // "memory" or "redis"
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	Name              string
	BufferSize        int
	VisibilityTimeout time.Duration
	ReclaimInterval   time.Duration
}

// ExtractConfig holds extraction worker and provider configuration
type ExtractConfig struct {
	Provider          string // "remote" or "local"
	Workers           int
	SuccessThreshold  float32
	ReviewThreshold   float32
	MaxAttempts       int
	BackoffBase       time.Duration
	ProviderTimeout   time.Duration
	RemoteBaseURL     string
	RemoteAPIKey      string
	Tesseract         string
	TesseractLang     string
	TessdataDir       string
	// StuckAfter is how long a Pending or Processing record may sit
	// untouched before the sweep re-enqueues it.
	StuckAfter time.Duration
}

// RetentionConfig controls record/blob expiry.
type RetentionConfig struct {
	Window        time.Duration
	SweepInterval time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 10<<20),
		},
		Blob: BlobConfig{
			Driver:    getEnv("BLOB_DRIVER", "fs"),
			FSRoot:    getEnv("BLOB_FS_ROOT", "./blobs"),
			GCSBucket: getEnv("BLOB_GCS_BUCKET", ""),
		},
		Queue: QueueConfig{
			Driver:            getEnv("QUEUE_DRIVER", "memory"),
			RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:     getEnv("REDIS_PASSWORD", ""),
			RedisDB:           getEnvAsInt("REDIS_DB", 0),
			Name:              getEnv("QUEUE_NAME", "docscan:extract"),
			BufferSize:        getEnvAsInt("QUEUE_BUFFER_SIZE", 512),
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 2*time.Minute),
			ReclaimInterval:   getEnvAsDuration("QUEUE_RECLAIM_INTERVAL", 30*time.Second),
		},
		Extract: ExtractConfig{
			Provider:          getEnv("EXTRACT_PROVIDER", "remote"),
			Workers:           getEnvAsInt("EXTRACT_WORKERS", 4),
			SuccessThreshold:  getEnvAsFloat32("EXTRACT_SUCCESS_THRESHOLD", 0.85),
			ReviewThreshold:   getEnvAsFloat32("EXTRACT_REVIEW_THRESHOLD", 0.50),
			MaxAttempts:       getEnvAsInt("EXTRACT_MAX_ATTEMPTS", 3),
			BackoffBase:       getEnvAsDuration("EXTRACT_BACKOFF_BASE", 60*time.Second),
			ProviderTimeout:   getEnvAsDuration("EXTRACT_PROVIDER_TIMEOUT", 30*time.Second),
			RemoteBaseURL:     getEnv("OCR_BASE_URL", ""),
			RemoteAPIKey:      getEnv("OCR_API_KEY", ""),
			Tesseract:         getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang:     getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:       getEnv("TESSDATA_PREFIX", ""),
			StuckAfter:        getEnvAsDuration("EXTRACT_STUCK_AFTER", 5*time.Minute),
		},
		Retention: RetentionConfig{
			Window:        getEnvAsDuration("RETENTION_WINDOW", 365*24*time.Hour),
			SweepInterval: getEnvAsDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Extract.Provider == "remote" && c.Extract.RemoteBaseURL == "" {
		return NewAppError("CONFIG_ERROR", "OCR_BASE_URL is required for the remote provider", ErrInvalidInput)
	}
	if c.Blob.Driver == "gcs" && c.Blob.GCSBucket == "" {
		return NewAppError("CONFIG_ERROR", "BLOB_GCS_BUCKET is required for the gcs blob store", ErrInvalidInput)
	}
	if c.Extract.SuccessThreshold < c.Extract.ReviewThreshold {
		return NewAppError("CONFIG_ERROR", "EXTRACT_SUCCESS_THRESHOLD must be >= EXTRACT_REVIEW_THRESHOLD", ErrInvalidInput)
	}
	if c.Extract.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "EXTRACT_MAX_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	return nil
}
