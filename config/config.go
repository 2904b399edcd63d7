package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName    string
	LogLevel   string
	PrettyLogs bool

	// FHIR source server
	FHIRBaseURL        string
	FHIRToken          string
	FHIRTimeoutSeconds int
	ChunkSize          int

	// Graph Database (Neo4j)
	GraphDBHost           string
	GraphDBPort           int
	GraphDBUser           string
	GraphDBPassword       string
	GraphDBName           string
	GraphDBMaxPoolSize    int
	GraphDBTimeoutSeconds int

	// Processing
	Parallel          bool
	LoadQueueSize     int
	WriteRetryCount   int
	WriteRetryDelay   time.Duration
	ValidateResources bool
}

// Load reads configuration from the environment, applying defaults for
// anything unset. A .env file in the working directory is honored when
// present.
func Load() (*Config, error) {
	// ignore missing .env, env vars may be set directly
	_ = godotenv.Load()

	cfg := &Config{
		AppName:    getEnv("APP_NAME", "fern"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		PrettyLogs: getEnvBool("PRETTY_LOGS", false),

		FHIRBaseURL:        getEnv("FHIR_BASE_URL", ""),
		FHIRToken:          getEnv("FHIR_TOKEN", ""),
		FHIRTimeoutSeconds: getEnvInt("FHIR_TIMEOUT_SECONDS", 30),
		ChunkSize:          getEnvInt("FHIR_CHUNK_SIZE", 250),

		GraphDBHost:           getEnv("GRAPH_DB_HOST", "localhost"),
		GraphDBPort:           getEnvInt("GRAPH_DB_PORT", 7687),
		GraphDBUser:           getEnv("GRAPH_DB_USER", ""),
		GraphDBPassword:       getEnv("GRAPH_DB_PASSWORD", ""),
		GraphDBName:           getEnv("GRAPH_DB_NAME", "neo4j"),
		GraphDBMaxPoolSize:    getEnvInt("GRAPH_DB_MAX_POOL_SIZE", 100),
		GraphDBTimeoutSeconds: getEnvInt("GRAPH_DB_TIMEOUT_SECONDS", 10),

		Parallel:          getEnvBool("PARALLEL", false),
		LoadQueueSize:     getEnvInt("LOAD_QUEUE_SIZE", 10),
		WriteRetryCount:   getEnvInt("WRITE_RETRY_COUNT", 3),
		WriteRetryDelay:   time.Duration(getEnvInt("WRITE_RETRY_DELAY_MS", 1000)) * time.Millisecond,
		ValidateResources: getEnvBool("VALIDATE_RESOURCES", true),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
