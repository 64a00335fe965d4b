package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"
)

const geminiName = "gemini"

// finish reasons that mean the output was withheld by policy filtering
var geminiBlockedFinish = map[string]bool{
	"SAFETY":             true,
	"RECITATION":         true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the SDK's default client (tests).
	HTTPClient *http.Client
}

type GeminiProvider struct {
	cli     *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiProvider builds the client once. A missing API key is not an
// error here: Generate reports MissingCredential instead.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	p := &GeminiProvider{
		model:   strings.TrimSpace(cfg.Model),
		timeout: cfg.Timeout,
	}
	if p.model == "" {
		p.model = "gemini-1.5-flash-latest"
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}

	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return p, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	p.cli = cli
	return p, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.cli == nil {
		return "", missingCredential(geminiName)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.cli.Models.GenerateContent(callCtx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", p.classify(callCtx, err)
	}
	return extractGeminiText(resp)
}

func (p *GeminiProvider) classify(callCtx context.Context, err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(geminiName, apiErr.Code, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError(geminiName, apiErrPtr.Code, apiErrPtr.Message)
	}
	return transportError(callCtx, geminiName, p.timeout, err)
}

func extractGeminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", malformed(geminiName, "empty response")
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", blocked(geminiName, string(fb.BlockReason), fb.BlockReasonMessage)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", malformed(geminiName, "response did not contain any candidates")
	}

	cand := resp.Candidates[0]
	reason := string(cand.FinishReason)
	if geminiBlockedFinish[reason] {
		return "", blocked(geminiName, reason, cand.FinishMessage)
	}
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", malformed(geminiName, "candidate did not contain content parts")
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	if b.Len() == 0 {
		return "", malformed(geminiName, "candidate parts did not contain text")
	}
	return b.String(), nil
}
