package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultVertexModel = "gemini-1.5-pro"

// VertexClient calls a Gemini model on Vertex AI with JSON output forced.
type VertexClient struct {
	client *genai.Client
	model  string
}

var _ Client = (*VertexClient)(nil)

// NewVertexClient creates a Vertex AI client. Project and region are required.
func NewVertexClient(ctx context.Context, cfg Config) (*VertexClient, error) {
	if cfg.VertexProject == "" || cfg.VertexRegion == "" {
		return nil, &Error{Kind: KindConfiguration, Provider: ProviderVertex, Err: fmt.Errorf("project and region cannot be empty")}
	}
	model := cfg.VertexModel
	if model == "" {
		model = defaultVertexModel
	}

	client, err := genai.NewClient(ctx, cfg.VertexProject, cfg.VertexRegion)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Provider: ProviderVertex, Err: fmt.Errorf("genai.NewClient: %w", err)}
	}
	return &VertexClient{client: client, model: model}, nil
}

// Provider returns "vertex".
func (c *VertexClient) Provider() string { return ProviderVertex }

// Close releases the underlying client.
func (c *VertexClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// GenerateJSON implements Client.
func (c *VertexClient) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "VertexClient.GenerateJSON")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		lerr := classify(ProviderVertex, err)
		span.RecordError(lerr)
		span.SetStatus(codes.Error, string(lerr.Kind))
		return nil, lerr
	}

	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}

	out, err := ParseObject(ProviderVertex, b.String())
	if err != nil {
		span.SetStatus(codes.Error, string(KindParse))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}
