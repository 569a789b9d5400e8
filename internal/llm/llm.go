// Package llm provides the language-model clients used for structured
// extraction and planning.
//
// Every client returns a decoded JSON object or an *Error whose Kind tells
// the caller which category of failure occurred. Clients never retry; the
// caller decides how to fall back.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Supported providers.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
)

// Client sends a system/user prompt pair and returns the parsed JSON object.
type Client interface {
	GenerateJSON(ctx context.Context, system, user string) (map[string]any, error)
	Provider() string
}

// Kind categorizes a client failure.
type Kind string

// Failure kinds.
const (
	KindConfiguration  Kind = "ConfigurationError"
	KindTransport      Kind = "TransportError"
	KindAuthentication Kind = "AuthenticationError"
	KindTimeout        Kind = "TimeoutError"
	KindParse          Kind = "ParseError"
)

// Error is returned by every Client on failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind carried by err. Errors that are not an
// *Error are reported as transport failures.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}

// Config configures the language-model client.
type Config struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxInFlight       int64
	VertexProject     string
	VertexRegion      string
	VertexModel       string
}

// Enabled reports whether cfg selects a known provider with the
// credentials it needs. A disabled client means callers use their
// deterministic fallback.
func Enabled(cfg Config) bool {
	return DisabledReason(cfg) == ""
}

// DisabledReason explains why cfg does not enable a client, or returns an
// empty string when it does.
func DisabledReason(cfg Config) string {
	switch p := normalizeProvider(cfg.Provider); p {
	case "", ProviderNone:
		return "no provider selected"
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return "openai selected without an API key"
		}
	case ProviderVertex:
		if cfg.VertexProject == "" || cfg.VertexRegion == "" {
			return "vertex selected without project and region"
		}
	default:
		return fmt.Sprintf("unsupported provider %q", cfg.Provider)
	}
	return ""
}

// New creates the client selected by cfg.Provider, wrapped with pacing and a
// per-call timeout. It returns (nil, nil) when cfg does not enable a client.
func New(ctx context.Context, cfg Config) (Client, error) {
	if !Enabled(cfg) {
		return nil, nil
	}

	var (
		inner Client
		err   error
	)
	switch normalizeProvider(cfg.Provider) {
	case ProviderOpenAI:
		inner, err = NewOpenAIClient(cfg)
	case ProviderVertex:
		inner, err = NewVertexClient(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	return NewLimited(inner, cfg), nil
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// classify maps a transport error to an *Error.
func classify(provider string, err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	kind := KindTransport
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"), strings.Contains(msg, "permissiondenied"),
		strings.Contains(msg, "permission denied"), strings.Contains(msg, "unauthenticated"),
		strings.Contains(msg, "invalid api key"), strings.Contains(msg, "incorrect api key"):
		kind = KindAuthentication
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}
