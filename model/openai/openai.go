// Package openai implements core.Generator using the OpenAI Chat Completions
// API. It adapts the engine's normalized request into SDK messages and back.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/gridwise/diagmesh/core"
)

// Options configure the OpenAI generator adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Generator wraps the OpenAI Chat Completions API behind core.Generator.
type Generator struct {
	client *openai.Client
	opts   Options
}

// NewGenerator creates a new OpenAI generator using the official client.
func NewGenerator(optFns ...func(o *Options)) *Generator {
	client := openai.NewClient()
	return NewGeneratorFromClient(&client, optFns...)
}

// NewGeneratorFromClient creates a new OpenAI generator from an existing client.
func NewGeneratorFromClient(client *openai.Client, optFns ...func(o *Options)) *Generator {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generator{client: client, opts: opts}
}

// Generate implements core.Generator with a single blocking completion call.
func (g *Generator) Generate(ctx context.Context, req core.GenerateRequest) (core.GenerateResponse, error) {
	params := g.buildParams(req)
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.GenerateResponse{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.GenerateResponse{}, fmt.Errorf("no choices returned")
	}
	ch0 := resp.Choices[0]
	return core.GenerateResponse{
		Text:         ch0.Message.Content,
		FinishReason: ch0.FinishReason,
		TokensUsed:   int(resp.Usage.TotalTokens),
	}, nil
}

func (g *Generator) buildParams(req core.GenerateRequest) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	temperature := g.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := g.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               g.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}

// Info returns metadata describing this OpenAI generator.
func (g *Generator) Info() core.GeneratorInfo {
	return core.GeneratorInfo{Name: g.opts.Model, Provider: "openai"}
}
