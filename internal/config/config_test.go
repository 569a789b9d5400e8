package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"KNOW_DIR", "CHROMA_DIR", "CHROMA_COLLECTION", "EMBED_MODEL", "MAX_DOC_CHARS",
		"LLM_PROVIDER", "OPENAI_API_KEY", "OPENAI_MODEL", "AUDIT_DIR", "WORKSPACE_DIR", "TESSERACT_CMD"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "workspace", cfg.Workspace.Dir)
	assert.Equal(t, "data/knowledge", cfg.Knowledge.Dir)
	assert.Equal(t, 900, cfg.Knowledge.ChunkSize)
	assert.Equal(t, 150, cfg.Knowledge.ChunkOverlap)
	assert.Equal(t, 4, cfg.Knowledge.TopK)
	assert.Equal(t, DefaultKnowledgeQuery, cfg.Knowledge.Query)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "admin_knowledge", cfg.VectorStore.Collection)
	assert.Equal(t, "data/chroma", cfg.VectorStore.Path)
	assert.Equal(t, "all-MiniLM-L6-v2", cfg.Embeddings.Model)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.False(t, cfg.LLM.APIKey.IsSet())
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout.Duration())
	assert.Equal(t, 22000, cfg.Extraction.MaxDocChars)
	assert.Equal(t, 1, cfg.Extraction.Workers)
	assert.Equal(t, []string{".pdf"}, cfg.Extraction.Extensions)
	assert.Equal(t, DefaultGoal, cfg.Extraction.Goal)
	assert.Equal(t, "tesseract", cfg.OCR.Command)
	assert.Equal(t, "audit", cfg.Audit.Dir)
	require.NoError(t, cfg.Validate())
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Setenv("KNOW_DIR", "/kb")
	t.Setenv("CHROMA_DIR", "/idx")
	t.Setenv("CHROMA_COLLECTION", "kb_rules")
	t.Setenv("MAX_DOC_CHARS", "1000")
	t.Setenv("LLM_PROVIDER", "None")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("WORKSPACE_DIR", "/ws")
	t.Setenv("TESSERACT_CMD", "/opt/tesseract")

	cfg := Load()
	assert.Equal(t, "/kb", cfg.Knowledge.Dir)
	assert.Equal(t, "/idx", cfg.VectorStore.Path)
	assert.Equal(t, "kb_rules", cfg.VectorStore.Collection)
	assert.Equal(t, 1000, cfg.Extraction.MaxDocChars)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
	assert.Equal(t, "/ws", cfg.Workspace.Dir)
	assert.Equal(t, "/opt/tesseract", cfg.OCR.Command)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("MAX_DOC_CHARS", "lots")
	assert.Equal(t, 22000, Load().Extraction.MaxDocChars)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty workspace", func(c *Config) { c.Workspace.Dir = "" }},
		{"empty audit dir", func(c *Config) { c.Audit.Dir = "" }},
		{"zero chunk size", func(c *Config) { c.Knowledge.ChunkSize = 0 }},
		{"overlap equals size", func(c *Config) { c.Knowledge.ChunkOverlap = c.Knowledge.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Knowledge.ChunkOverlap = -1 }},
		{"zero top k", func(c *Config) { c.Knowledge.TopK = 0 }},
		{"zero max doc chars", func(c *Config) { c.Extraction.MaxDocChars = 0 }},
		{"zero workers", func(c *Config) { c.Extraction.Workers = 0 }},
		{"unknown vectorstore", func(c *Config) { c.VectorStore.Provider = "chroma" }},
		{"unknown embeddings", func(c *Config) { c.Embeddings.Provider = "sentence-transformers" }},
		{"unknown llm", func(c *Config) { c.LLM.Provider = "anthropic" }},
		{"zero llm timeout", func(c *Config) { c.LLM.Timeout = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"telemetry without service", func(c *Config) {
			c.Observability.EnableTelemetry = true
			c.Observability.ServiceName = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adminrag.yaml")
	content := `
workspace:
  dir: /srv/ws
knowledge:
  chunk_size: 500
  chunk_overlap: 50
llm:
  provider: vertex
  vertex_project: acme
  vertex_region: us-central1
  timeout: 30s
extraction:
  workers: 4
  extensions: [".pdf", ".txt"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ADMINRAG_EXTRACTION_WORKERS", "8")
	t.Setenv("ADMINRAG_LLM_MAX_IN_FLIGHT", "3")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/ws", cfg.Workspace.Dir)
	assert.Equal(t, 500, cfg.Knowledge.ChunkSize)
	assert.Equal(t, 50, cfg.Knowledge.ChunkOverlap)
	assert.Equal(t, 4, cfg.Knowledge.TopK, "unset keys keep their defaults")
	assert.Equal(t, "vertex", cfg.LLM.Provider)
	assert.Equal(t, "acme", cfg.LLM.VertexProject)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout.Duration())
	assert.Equal(t, int64(3), cfg.LLM.MaxInFlight)
	assert.Equal(t, 8, cfg.Extraction.Workers, "environment wins over file")
	assert.Equal(t, []string{".pdf", ".txt"}, cfg.Extraction.Extensions)
}

func TestLoadWithFile_Errors(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("knowledge:\n  chunk_size: 100\n  chunk_overlap: 100\n"), 0o600))
	_, err = LoadWithFile(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "llm.max_in_flight", envKey("ADMINRAG_LLM_MAX_IN_FLIGHT"))
	assert.Equal(t, "server.http_port", envKey("ADMINRAG_SERVER_HTTP_PORT"))
	assert.Equal(t, "workspace", envKey("ADMINRAG_WORKSPACE"))
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")
	assert.Equal(t, "sk-live-123", s.Value())

	data, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(data))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
