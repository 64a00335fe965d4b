package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const openRouterName = "openrouter"

type OpenRouterConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Timeout time.Duration
}

// OpenRouterProvider talks to any OpenAI compatible chat completions endpoint.
type OpenRouterProvider struct {
	client  *openai.Client
	apiKey  string
	model   string
	timeout time.Duration
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenRouterProvider(cfg OpenRouterConfig) *OpenRouterProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "openrouter/auto"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(baseURL, "/")
	if cfg.SiteURL != "" || cfg.AppName != "" {
		h := http.Header{}
		if cfg.SiteURL != "" {
			h.Set("HTTP-Referer", cfg.SiteURL)
		}
		if cfg.AppName != "" {
			h.Set("X-Title", cfg.AppName)
		}
		oc.HTTPClient = &http.Client{Transport: headerTransport{rt: http.DefaultTransport, headers: h}}
	}

	return &OpenRouterProvider{
		client:  openai.NewClientWithConfig(oc),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   model,
		timeout: timeout,
	}
}

func (p *OpenRouterProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.apiKey == "" {
		return "", missingCredential(openRouterName)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", p.classify(callCtx, err)
	}

	if len(resp.Choices) == 0 {
		return "", malformed(openRouterName, "response did not contain any choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", blocked(openRouterName, string(choice.FinishReason), "")
	}
	if choice.Message.Content == "" {
		return "", malformed(openRouterName, "choice did not contain message content")
	}
	return choice.Message.Content, nil
}

func (p *OpenRouterProvider) classify(callCtx context.Context, err error) *Error {
	if callCtx.Err() != nil {
		return transportError(callCtx, openRouterName, p.timeout, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(openRouterName, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return statusError(openRouterName, reqErr.HTTPStatusCode, body)
	}
	return transportError(callCtx, openRouterName, p.timeout, err)
}
