package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	Host          string
	Env           string
	PublicBaseURL string // Used to build share links

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBPath     string

	// Object store configuration
	StorageBackend string // "github", "s3", "minio", "disk", "memory"
	StoragePath    string // For disk backend

	GitHubToken      string
	GitHubOwner      string
	GitHubRepo       string
	GitHubBranch     string
	GitHubAPIURL     string // Optional, for GitHub Enterprise
	GitHubRawBaseURL string

	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool // Required for MinIO/rustfs behind the S3 API

	MinioEndpoint  string
	MinioBucket    string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	// Object layout inside the store
	MediaFolder string
	ChunkFolder string

	// Size limits
	MaxObjectSize          int64 // Hard ceiling of a single remote object
	MaxImageSize           int64
	MaxVideoSize           int64
	ChunkedUploadThreshold int64 // Videos above this go through the chunk pipeline

	// ReconstructWorkers bounds parallel chunk fetches while serving. 1 keeps fetches sequential.
	ReconstructWorkers int

	StoreBreakerEnabled  bool
	StoreBreakerFailures int
	StoreBreakerTimeout  time.Duration

	OrphanSweepInterval time.Duration
	OrphanMaxAttempts   int

	UploadRateLimit float64  // Requests per second on write endpoints
	TrustedProxies  []string // CIDRs whose forwarding headers are honored

	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		Host:                   getEnv("HOST", "0.0.0.0"),
		Env:                    getEnv("ENV", "development"),
		PublicBaseURL:          strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		DBType:                 getEnv("DB_TYPE", "sqlite"),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBName:                 getEnv("DB_NAME", "gallery"),
		DBUser:                 getEnv("DB_USER", "gallery"),
		DBPassword:             getEnv("DB_PASSWORD", ""),
		DBPath:                 getEnv("DB_PATH", "./data/gallery.db"),
		StorageBackend:         getEnv("STORAGE_BACKEND", "disk"),
		StoragePath:            getEnv("STORAGE_PATH", "./data/objects"),
		GitHubToken:            getEnv("GITHUB_TOKEN", ""),
		GitHubOwner:            getEnv("GITHUB_OWNER", ""),
		GitHubRepo:             getEnv("GITHUB_REPO", ""),
		GitHubBranch:           getEnv("GITHUB_BRANCH", "main"),
		GitHubAPIURL:           getEnv("GITHUB_API_URL", ""),
		GitHubRawBaseURL:       strings.TrimRight(getEnv("GITHUB_RAW_BASE_URL", "https://raw.githubusercontent.com"), "/"),
		S3Endpoint:             getEnv("S3_ENDPOINT", ""),
		S3Region:               getEnv("S3_REGION", "us-east-1"),
		S3Bucket:               getEnv("S3_BUCKET", ""),
		S3AccessKey:            getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:            getEnv("S3_SECRET_KEY", ""),
		S3UsePathStyle:         getEnvBool("S3_USE_PATH_STYLE", false),
		MinioEndpoint:          getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioBucket:            getEnv("MINIO_BUCKET", "gallery"),
		MinioAccessKey:         getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:         getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:            getEnvBool("MINIO_USE_SSL", false),
		MediaFolder:            strings.Trim(getEnv("MEDIA_FOLDER", "Gallery"), "/"),
		ChunkFolder:            strings.Trim(getEnv("CHUNK_FOLDER", "temp_chunks"), "/"),
		MaxObjectSize:          getEnvSize("MAX_OBJECT_SIZE", "25M"),
		MaxImageSize:           getEnvSize("MAX_IMAGE_SIZE", "10M"),
		MaxVideoSize:           getEnvSize("MAX_VIDEO_SIZE", "25M"),
		ChunkedUploadThreshold: getEnvSize("CHUNKED_UPLOAD_THRESHOLD", "25M"),
		ReconstructWorkers:     getEnvInt("RECONSTRUCT_WORKERS", 1),
		StoreBreakerEnabled:    getEnvBool("STORE_BREAKER_ENABLED", true),
		StoreBreakerFailures:   getEnvInt("STORE_BREAKER_FAILURES", 5),
		StoreBreakerTimeout:    getEnvDuration("STORE_BREAKER_TIMEOUT", "30s"),
		OrphanSweepInterval:    getEnvDuration("ORPHAN_SWEEP_INTERVAL", "15m"),
		OrphanMaxAttempts:      getEnvInt("ORPHAN_MAX_ATTEMPTS", 10),
		UploadRateLimit:        getEnvFloat("UPLOAD_RATE_LIMIT", 20),
		TrustedProxies:         getEnvList("TRUSTED_PROXIES"),
		LogFile:                getEnv("LOG_FILE", ""),
		LogMaxSizeMB:           getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:          getEnvInt("LOG_MAX_BACKUPS", 5),
	}

	cfg.normalize()

	return cfg, nil
}

// normalize clamps values that would otherwise break the upload pipeline.
func (c *Config) normalize() {
	if c.MaxObjectSize <= 0 {
		c.MaxObjectSize = 25 * 1024 * 1024
	}
	// Direct uploads write a single object, so they can never exceed the store ceiling.
	if c.MaxImageSize <= 0 || c.MaxImageSize > c.MaxObjectSize {
		c.MaxImageSize = min(10*1024*1024, c.MaxObjectSize)
	}
	if c.MaxVideoSize <= 0 || c.MaxVideoSize > c.MaxObjectSize {
		c.MaxVideoSize = c.MaxObjectSize
	}
	if c.ChunkedUploadThreshold <= 0 || c.ChunkedUploadThreshold > c.MaxObjectSize {
		c.ChunkedUploadThreshold = c.MaxObjectSize
	}
	if c.ReconstructWorkers < 1 {
		c.ReconstructWorkers = 1
	}
	if c.StoreBreakerFailures < 1 {
		c.StoreBreakerFailures = 1
	}
	if c.OrphanSweepInterval < time.Minute {
		c.OrphanSweepInterval = time.Minute
	}
	if c.OrphanMaxAttempts < 1 {
		c.OrphanMaxAttempts = 1
	}
	if c.UploadRateLimit <= 0 {
		c.UploadRateLimit = 20
	}
	if c.MediaFolder == "" {
		c.MediaFolder = "Gallery"
	}
	if c.ChunkFolder == "" {
		c.ChunkFolder = "temp_chunks"
	}
}

// Validate checks that the selected storage backend has what it needs to start.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "github":
		if c.GitHubToken == "" || c.GitHubOwner == "" || c.GitHubRepo == "" {
			return fmt.Errorf("github backend requires GITHUB_TOKEN, GITHUB_OWNER and GITHUB_REPO")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 backend requires S3_BUCKET")
		}
	case "minio":
		if c.MinioBucket == "" || c.MinioEndpoint == "" {
			return fmt.Errorf("minio backend requires MINIO_ENDPOINT and MINIO_BUCKET")
		}
	case "disk", "memory":
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.StorageBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// parseSize converts human-readable sizes (e.g., "10G", "25M", "1K") to bytes
// Supports: B, K/KB, M/MB, G/GB, T/TB (case-insensitive)
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))

	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	units := []struct {
		suffixes   []string
		multiplier int64
	}{
		{[]string{"TB", "T"}, 1024 * 1024 * 1024 * 1024},
		{[]string{"GB", "G"}, 1024 * 1024 * 1024},
		{[]string{"MB", "M"}, 1024 * 1024},
		{[]string{"KB", "K"}, 1024},
		{[]string{"B"}, 1},
	}

	for _, u := range units {
		for _, suffix := range u.suffixes {
			if !strings.HasSuffix(sizeStr, suffix) {
				continue
			}
			val, err := strconv.ParseFloat(strings.TrimSuffix(sizeStr, suffix), 64)
			if err != nil || val < 0 {
				return 0, fmt.Errorf("invalid size value: %s", sizeStr)
			}
			return int64(val * float64(u.multiplier)), nil
		}
	}

	return 0, fmt.Errorf("invalid size format: %s (use B, K/KB, M/MB, G/GB, T/TB)", sizeStr)
}

// getEnvSize parses size strings like "25M" or raw bytes, falling back to the default.
func getEnvSize(key string, defaultValue string) int64 {
	size, err := parseSize(getEnv(key, defaultValue))
	if err != nil {
		if defaultSize, defaultErr := parseSize(defaultValue); defaultErr == nil {
			return defaultSize
		}
		return 0
	}
	return size
}

// getEnvDuration parses duration strings like "30s", "15m"
func getEnvDuration(key string, defaultValue string) time.Duration {
	duration, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		if defaultDuration, defaultErr := time.ParseDuration(defaultValue); defaultErr == nil {
			return defaultDuration
		}
		return 0
	}
	return duration
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
