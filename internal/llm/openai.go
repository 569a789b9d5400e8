package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultOpenAIModel = "gpt-4o-mini"

var tracer = otel.Tracer("adminrag.llm")

// OpenAIClient calls an OpenAI-compatible chat completion endpoint in JSON
// mode at temperature 0.
type OpenAIClient struct {
	llm   llms.Model
	model string
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates an OpenAI client. A missing API key is a
// configuration error.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Kind: KindConfiguration, Provider: ProviderOpenAI, Err: fmt.Errorf("OPENAI_API_KEY is required")}
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Provider: ProviderOpenAI, Err: fmt.Errorf("creating openai client: %w", err)}
	}
	return &OpenAIClient{llm: client, model: model}, nil
}

// Provider returns "openai".
func (c *OpenAIClient) Provider() string { return ProviderOpenAI }

// GenerateJSON implements Client.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.GenerateJSON")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.prompt_chars", len(system)+len(user)),
	)

	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithTemperature(0), llms.WithJSONMode())
	if err != nil {
		lerr := classify(ProviderOpenAI, err)
		span.RecordError(lerr)
		span.SetStatus(codes.Error, string(lerr.Kind))
		return nil, lerr
	}
	if len(resp.Choices) == 0 {
		lerr := &Error{Kind: KindParse, Provider: ProviderOpenAI, Err: fmt.Errorf("no choices in response")}
		span.SetStatus(codes.Error, string(lerr.Kind))
		return nil, lerr
	}

	out, err := ParseObject(ProviderOpenAI, resp.Choices[0].Content)
	if err != nil {
		span.SetStatus(codes.Error, string(KindParse))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}
