// Package provider talks to OpenAI-compatible chat completion backends.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"github.com/set-night/llmgate/internal/config"
	"github.com/set-night/llmgate/internal/domain"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Messages  []Message
	MaxTokens int
}

type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// OpenAIClient sends chat completions to the endpoint stored on each provider row,
// falling back to the configured default endpoint.
type OpenAIClient struct {
	apiKey          string
	apiType         string
	defaultEndpoint string
	httpClient      *http.Client
}

func NewOpenAIClient(apiKey, apiType, defaultEndpoint string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:          apiKey,
		apiType:         apiType,
		defaultEndpoint: defaultEndpoint,
		httpClient:      &http.Client{},
	}
}

func (c *OpenAIClient) clientFor(p domain.Provider) *openai.Client {
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = c.defaultEndpoint
	}

	var cfg openai.ClientConfig
	if c.apiType == config.ProviderAPIAzure {
		cfg = openai.DefaultAzureConfig(c.apiKey, endpoint)
	} else {
		cfg = openai.DefaultConfig(c.apiKey)
		if endpoint != "" {
			cfg.BaseURL = endpoint
		}
	}
	cfg.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(cfg)
}

// Complete performs one chat completion. It never retries; every failure is a
// *domain.ProviderError.
func (c *OpenAIClient) Complete(ctx context.Context, p domain.Provider, req Request) (Response, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.clientFor(p).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.Name,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return Response{}, classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, &domain.ProviderError{Kind: domain.ProviderOther, Err: errors.New("empty choices")}
	}

	return Response{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.ProviderError{Kind: domain.ProviderTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.ProviderError{Kind: domain.ProviderTimeout, Err: err}
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	return &domain.ProviderError{Kind: kindForStatus(status), Err: fmt.Errorf("chat completion: %w", err)}
}

func kindForStatus(status int) domain.ProviderErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return domain.ProviderRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ProviderUnauthorized
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return domain.ProviderTimeout
	default:
		return domain.ProviderOther
	}
}
