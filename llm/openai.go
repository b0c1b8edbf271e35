package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"tripy/logger"
)

type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, model string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	logger.Get().Info("initializing OpenAI generator", zap.String("model", model))
	return &OpenAIGenerator{client: openai.NewClient(apiKey), model: model}, nil
}

func (o *OpenAIGenerator) Invoke(ctx context.Context, spec PromptSpec, extra ...Message) (string, error) {
	msgs := spec.Messages(extra...)
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(msgs)),
		Temperature: spec.Temperature,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	if spec.Shape != "" {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	if spec.MaxTokens > 0 {
		req.MaxCompletionTokens = spec.MaxTokens
	}

	logger.Get().Debug("generator call", zap.String("schema", spec.Schema), zap.Int("messages", len(req.Messages)))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", Transient(errors.New("openai returned no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return Transient(fmt.Errorf("openai: %w", err))
		}
		return fmt.Errorf("openai: %w", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500 {
			return Transient(fmt.Errorf("openai: %w", err))
		}
		return fmt.Errorf("openai: %w", err)
	}
	if IsTransient(err) {
		return Transient(fmt.Errorf("openai: %w", err))
	}
	return fmt.Errorf("openai: %w", err)
}
