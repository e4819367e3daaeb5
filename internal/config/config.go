package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort           string
	WorkerMetricsPort string
	LogLevel          string

	KnowledgeDir           string
	IndexPath              string
	IndexRetainGenerations int
	VectorCompression      string

	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int

	RAGTopK        int
	RAGVectorTopN  int
	RAGLexicalTopN int

	EmbedProvider              string
	OllamaURL                  string
	OllamaEmbedModel           string
	OllamaJudgeModel           string
	JudgeConcurrency           int
	OpenAIAPIKey               string
	OpenAIBaseURL              string
	OpenAIEmbedModel           string
	RerankProvider             string
	CrossEncoderURL            string
	CrossEncoderTimeoutSeconds int

	ResilienceRetryMaxAttempts   int
	ResilienceBreakerEnabled     bool
	ResilienceBreakerMinRequests int
	ResilienceBreakerOpenSeconds int

	HTTPRateLimitRPS      int
	HTTPRateLimitBurst    int
	HTTPMaxInFlight       int
	HTTPRequestTimeoutSec int

	NATSURL          string
	NATSIndexSubject string
	NATSQuerySubject string
	NATSQueryGroup   string

	LedgerDSN string

	MinIOEndpoint    string
	MinIOAccessKey   string
	MinIOSecretKey   string
	MinIOBucket      string
	MinIOPrefix      string
	MinIOUseSSL      bool
	MinIOPullOnStart bool
}

// Load reads configuration from the environment. When CONFIG_FILE names a
// YAML file of KEY: value pairs, its values fill in keys the environment
// leaves unset.
func Load() (Config, error) {
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	src := source{file: file}

	return Config{
		APIPort:           src.get("API_PORT", "8080"),
		WorkerMetricsPort: src.get("WORKER_METRICS_PORT", "9090"),
		LogLevel:          src.get("LOG_LEVEL", "info"),

		KnowledgeDir:           src.get("KNOWLEDGE_DIR", "./knowledge_base"),
		IndexPath:              src.get("INDEX_PATH", "./data/index"),
		IndexRetainGenerations: src.getInt("INDEX_RETAIN_GENERATIONS", 3),
		VectorCompression:      src.get("INDEX_VECTOR_COMPRESSION", "zstd"),

		ChunkSize:      src.getInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   src.getInt("CHUNK_OVERLAP", 200),
		EmbedBatchSize: src.getInt("EMBED_BATCH_SIZE", 32),

		RAGTopK:        src.getInt("RAG_TOP_K", 3),
		RAGVectorTopN:  src.getInt("RAG_VECTOR_TOP_N", 10),
		RAGLexicalTopN: src.getInt("RAG_LEXICAL_TOP_N", 10),

		EmbedProvider:              src.get("EMBED_PROVIDER", "ollama"),
		OllamaURL:                  src.get("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel:           src.get("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OllamaJudgeModel:           src.get("OLLAMA_JUDGE_MODEL", "llama3.1:8b"),
		JudgeConcurrency:           src.getInt("RERANK_JUDGE_CONCURRENCY", 4),
		OpenAIAPIKey:               src.get("OPENAI_API_KEY", ""),
		OpenAIBaseURL:              src.get("OPENAI_BASE_URL", ""),
		OpenAIEmbedModel:           src.get("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		RerankProvider:             src.get("RERANK_PROVIDER", "crossencoder"),
		CrossEncoderURL:            src.get("CROSS_ENCODER_URL", "http://localhost:8081"),
		CrossEncoderTimeoutSeconds: src.getInt("CROSS_ENCODER_TIMEOUT_SECONDS", 30),

		ResilienceRetryMaxAttempts:   src.getInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		ResilienceBreakerEnabled:     src.getBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerMinRequests: src.getInt("RESILIENCE_BREAKER_MIN_REQUESTS", 10),
		ResilienceBreakerOpenSeconds: src.getInt("RESILIENCE_BREAKER_OPEN_SECONDS", 30),

		HTTPRateLimitRPS:      src.getInt("HTTP_RATE_LIMIT_RPS", 20),
		HTTPRateLimitBurst:    src.getInt("HTTP_RATE_LIMIT_BURST", 40),
		HTTPMaxInFlight:       src.getInt("HTTP_MAX_IN_FLIGHT", 64),
		HTTPRequestTimeoutSec: src.getInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),

		NATSURL:          src.get("NATS_URL", ""),
		NATSIndexSubject: src.get("NATS_INDEX_SUBJECT", "knowledge.index.built"),
		NATSQuerySubject: src.get("NATS_QUERY_SUBJECT", "knowledge.query"),
		NATSQueryGroup:   src.get("NATS_QUERY_GROUP", "knowledge-query"),

		LedgerDSN: src.get("LEDGER_DSN", ""),

		MinIOEndpoint:    src.get("MINIO_ENDPOINT", ""),
		MinIOAccessKey:   src.get("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:   src.get("MINIO_SECRET_KEY", ""),
		MinIOBucket:      src.get("MINIO_BUCKET", "compliance-index"),
		MinIOPrefix:      src.get("MINIO_PREFIX", ""),
		MinIOUseSSL:      src.getBool("MINIO_USE_SSL", false),
		MinIOPullOnStart: src.getBool("MINIO_PULL_ON_START", false),
	}, nil
}

func readFile(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch value.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config file %s: %s must be a scalar", path, key)
		case nil:
			continue
		}
		out[strings.ToUpper(key)] = fmt.Sprint(value)
	}
	return out, nil
}

type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) get(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) getInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) getBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
