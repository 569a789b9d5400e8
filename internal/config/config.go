// Package config provides configuration loading for adminrag.
//
// A Config is built once at process start and passed by reference into each
// component. Defaults come from Load, which also honors the legacy
// environment names (KNOW_DIR, CHROMA_DIR, OPENAI_API_KEY, ...). LoadWithFile
// layers an optional YAML file and ADMINRAG_* environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete adminrag configuration.
type Config struct {
	Workspace     WorkspaceConfig     `koanf:"workspace"`
	Knowledge     KnowledgeConfig     `koanf:"knowledge"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	LLM           LLMConfig           `koanf:"llm"`
	Extraction    ExtractionConfig    `koanf:"extraction"`
	OCR           OCRConfig           `koanf:"ocr"`
	Audit         AuditConfig         `koanf:"audit"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// WorkspaceConfig holds the sandbox root every tool writes under.
type WorkspaceConfig struct {
	Dir string `koanf:"dir"`
}

// KnowledgeConfig holds knowledge ingestion and retrieval settings.
type KnowledgeConfig struct {
	Dir          string   `koanf:"dir"`
	Extensions   []string `koanf:"extensions"`
	ChunkSize    int      `koanf:"chunk_size"`
	ChunkOverlap int      `koanf:"chunk_overlap"`
	Query        string   `koanf:"query"`
	TopK         int      `koanf:"top_k"`
}

// VectorStoreConfig selects and configures the similarity index.
type VectorStoreConfig struct {
	Provider     string `koanf:"provider"` // chromem or qdrant
	Collection   string `koanf:"collection"`
	Path         string `koanf:"path"`
	Compress     bool   `koanf:"compress"`
	QdrantHost   string `koanf:"qdrant_host"`
	QdrantPort   int    `koanf:"qdrant_port"`
	QdrantTLS    bool   `koanf:"qdrant_tls"`
	QdrantAPIKey Secret `koanf:"qdrant_api_key"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // fastembed, tei or openai
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
}

// LLMConfig configures the language model used for extraction and planning.
type LLMConfig struct {
	Provider          string   `koanf:"provider"` // none, openai or vertex
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	BaseURL           string   `koanf:"base_url"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	MaxInFlight       int64    `koanf:"max_in_flight"`
	VertexProject     string   `koanf:"vertex_project"`
	VertexRegion      string   `koanf:"vertex_region"`
	VertexModel       string   `koanf:"vertex_model"`
}

// ExtractionConfig configures per-document extraction.
type ExtractionConfig struct {
	InboxDir      string   `koanf:"inbox_dir"`
	Goal          string   `koanf:"goal"`
	MaxDocChars   int      `koanf:"max_doc_chars"`
	Workers       int      `koanf:"workers"`
	Extensions    []string `koanf:"extensions"`
	RedactSecrets bool     `koanf:"redact_secrets"`
}

// OCRConfig configures the OCR fallback for scanned documents.
type OCRConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Command      string `koanf:"command"`
	Language     string `koanf:"language"`
	MinTextChars int    `koanf:"min_text_chars"`
}

// AuditConfig configures where run audit entries go.
type AuditConfig struct {
	Dir         string `koanf:"dir"`
	NATSURL     string `koanf:"nats_url"`
	NATSSubject string `koanf:"nats_subject"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds the logger level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"` // grpc or http/protobuf
}

// Defaults used when neither file nor environment set a value.
const (
	DefaultGoal           = "Extract payer CPF and confirm boleto payments"
	DefaultKnowledgeQuery = "Rules for extracting the payer CPF and confirming boleto payment"
)

// Load loads configuration from environment variables with defaults.
//
// Legacy environment variables:
//   - KNOW_DIR: knowledge source directory (default: data/knowledge)
//   - CHROMA_DIR: embedded vector store path (default: data/chroma)
//   - CHROMA_COLLECTION: collection name (default: admin_knowledge)
//   - EMBED_MODEL: embedding model (default: all-MiniLM-L6-v2)
//   - MAX_DOC_CHARS: document character cap (default: 22000)
//   - LLM_PROVIDER: none, openai or vertex (default: openai)
//   - OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini)
//   - AUDIT_DIR: audit directory (default: audit)
//   - WORKSPACE_DIR: workspace root (default: workspace)
//   - TESSERACT_CMD: tesseract binary (default: tesseract)
func Load() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Dir: getEnvString("WORKSPACE_DIR", "workspace"),
		},
		Knowledge: KnowledgeConfig{
			Dir:          getEnvString("KNOW_DIR", "data/knowledge"),
			Extensions:   []string{".txt", ".md", ".html", ".htm"},
			ChunkSize:    900,
			ChunkOverlap: 150,
			Query:        DefaultKnowledgeQuery,
			TopK:         4,
		},
		VectorStore: VectorStoreConfig{
			Provider:   "chromem",
			Collection: getEnvString("CHROMA_COLLECTION", "admin_knowledge"),
			Path:       getEnvString("CHROMA_DIR", "data/chroma"),
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "fastembed",
			Model:    getEnvString("EMBED_MODEL", "all-MiniLM-L6-v2"),
			CacheDir: "data/models",
			BaseURL:  "http://localhost:8080",
		},
		LLM: LLMConfig{
			Provider:          strings.ToLower(getEnvString("LLM_PROVIDER", "openai")),
			Model:             getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:            Secret(os.Getenv("OPENAI_API_KEY")),
			Timeout:           Duration(60 * time.Second),
			RequestsPerSecond: 2,
			MaxInFlight:       2,
			VertexModel:       "gemini-1.5-pro",
		},
		Extraction: ExtractionConfig{
			InboxDir:      "inbox",
			Goal:          DefaultGoal,
			MaxDocChars:   getEnvInt("MAX_DOC_CHARS", 22000),
			Workers:       1,
			Extensions:    []string{".pdf"},
			RedactSecrets: true,
		},
		OCR: OCRConfig{
			Enabled:      true,
			Command:      getEnvString("TESSERACT_CMD", "tesseract"),
			Language:     "por",
			MinTextChars: 30,
		},
		Audit: AuditConfig{
			Dir:         getEnvString("AUDIT_DIR", "audit"),
			NATSSubject: "adminrag.audit",
		},
		Server: ServerConfig{
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			ServiceName: "adminrag",
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workspace.Dir == "" {
		return fmt.Errorf("%w: workspace dir required", ErrInvalidConfig)
	}
	if c.Audit.Dir == "" {
		return fmt.Errorf("%w: audit dir required", ErrInvalidConfig)
	}
	if c.Knowledge.ChunkSize <= 0 {
		return fmt.Errorf("%w: knowledge chunk size must be positive, got %d", ErrInvalidConfig, c.Knowledge.ChunkSize)
	}
	if c.Knowledge.ChunkOverlap < 0 || c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("%w: knowledge chunk overlap must be in [0, %d), got %d",
			ErrInvalidConfig, c.Knowledge.ChunkSize, c.Knowledge.ChunkOverlap)
	}
	if c.Knowledge.TopK < 1 {
		return fmt.Errorf("%w: knowledge top_k must be at least 1", ErrInvalidConfig)
	}
	if c.Extraction.MaxDocChars <= 0 {
		return fmt.Errorf("%w: max doc chars must be positive", ErrInvalidConfig)
	}
	if c.Extraction.Workers < 1 {
		return fmt.Errorf("%w: extraction workers must be at least 1", ErrInvalidConfig)
	}
	if err := oneOf("vectorstore provider", c.VectorStore.Provider, "chromem", "qdrant"); err != nil {
		return err
	}
	if err := oneOf("embeddings provider", c.Embeddings.Provider, "fastembed", "tei", "openai"); err != nil {
		return err
	}
	if err := oneOf("llm provider", c.LLM.Provider, "none", "openai", "vertex"); err != nil {
		return err
	}
	if c.LLM.Timeout.Duration() <= 0 {
		return fmt.Errorf("%w: llm timeout must be positive", ErrInvalidConfig)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d (must be 1-65535)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return fmt.Errorf("%w: service name required when telemetry is enabled", ErrInvalidConfig)
	}
	return nil
}

func oneOf(what, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported %s %q (supported: %s)", ErrInvalidConfig, what, value, strings.Join(allowed, ", "))
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
