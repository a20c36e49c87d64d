package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DocumentConfig governs the upload/validation side of document ingestion.
type DocumentConfig struct {
	MaxFileSizeMB     int
	AllowedExtensions []string // lowercased, dot-prefixed
	MaxFilesPerUpload int
	StoragePath       string
	IsActive          bool
}

// SyncConfig governs the relational embedding synchronizer.
type SyncConfig struct {
	BatchSize           int // rows per offset/limit window
	PerFieldMaxChars    int // cap per formatted field value
	PerChunkTokenBudget int // below the embedding provider's hard limit
	IndexSubBatch       int // chunks per VectorIndex.Add flush
}

type Config struct {
	MongoURI     string
	DBName       string
	JWTSecret    string
	JWTExpiresIn string
	Port         string
	GinMode      string
	CORSOrigins  []string
	BcryptCost   int

	// Relational source being mirrored into the vector index.
	SQLDriver string
	SQLDSN    string

	// Vector snapshots, one directory holding one file per domain.
	VectorstoreDir string

	// Gemini / LLM settings.
	GeminiAPIKey       string
	GeminiModel        string
	EmbeddingsModel    string
	GeminiTier         string
	LLMTemperature     float64

	// Document ingestion defaults; overridable per deployment.
	Documents DocumentConfig
	ChunkSize int
	Overlap   int

	// Relational sync defaults.
	Sync SyncConfig

	// Scheduled re-sync ("" disables the cron).
	SyncCron string

	// Redis (rate limiting + asynq).
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry.
	OTLPEndpoint string
}

// LoadConfig reads .env when present, then the environment, applying the
// documented default for every recognized option and validating required
// fields before returning.
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/sql_rag"),
		DBName:       getEnv("DB_NAME", "sql_rag"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiresIn: getEnv("JWT_EXPIRES_IN", "24h"),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),

		SQLDriver: getEnv("SQL_DRIVER", "sqlite"),
		SQLDSN:    getEnv("SQL_DSN", "./data/source.db"),

		VectorstoreDir: getEnv("VECTORSTORE_DIR", "./vectorstore"),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GeminiTier:      getEnv("GEMINI_TIER", "free"),
		LLMTemperature:  getEnvFloat64("LLM_TEMPERATURE", 0),

		Documents: DocumentConfig{
			MaxFileSizeMB:     getEnvInt("DOC_MAX_FILE_SIZE_MB", 50),
			AllowedExtensions: normalizeExtensions(splitCSV(getEnv("DOC_ALLOWED_EXTENSIONS", ".pdf,.doc,.docx,.txt,.html,.xlsx"))),
			MaxFilesPerUpload: getEnvInt("DOC_MAX_FILES_PER_UPLOAD", 5),
			StoragePath:       getEnv("DOC_STORAGE_PATH", "./storage/documents"),
			IsActive:          getEnvBool("DOC_CONFIG_ACTIVE", true),
		},
		ChunkSize: getEnvInt("CHUNK_SIZE", 800),
		Overlap:   getEnvInt("CHUNK_OVERLAP", 100),

		Sync: SyncConfig{
			BatchSize:           getEnvInt("SYNC_BATCH_SIZE", 1000),
			PerFieldMaxChars:    getEnvInt("SYNC_FIELD_MAX_CHARS", 1000),
			PerChunkTokenBudget: getEnvInt("SYNC_TOKEN_BUDGET", 200_000),
			IndexSubBatch:       getEnvInt("SYNC_INDEX_SUB_BATCH", 50),
		},
		SyncCron: getEnv("SYNC_CRON", ""),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}
	if cfg.Overlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.Overlap, cfg.ChunkSize)
	}
	if cfg.Sync.BatchSize <= 0 || cfg.Sync.IndexSubBatch <= 0 {
		return nil, fmt.Errorf("sync batch sizes must be positive")
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
