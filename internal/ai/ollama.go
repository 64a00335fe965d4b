package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ollamaName = "ollama"

type OllamaProvider struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

func NewOllamaProvider(baseURL, model string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Timeout: timeout,
		// deadline comes from the request context
		Client: &http.Client{},
	}
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatReq struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
}

type ollamaChatResp struct {
	Message    *ollamaMsg `json:"message"`
	DoneReason string     `json:"done_reason,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func (p *OllamaProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.Client == nil {
		p.Client = &http.Client{}
	}

	b, err := json.Marshal(ollamaChatReq{
		Model:    p.Model,
		Stream:   false,
		Messages: []ollamaMsg{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", &Error{Kind: KindNetwork, Provider: ollamaName, Msg: "encode request: " + err.Error(), Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/chat", p.BaseURL)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", &Error{Kind: KindNetwork, Provider: ollamaName, Msg: "build request: " + err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", transportError(callCtx, ollamaName, p.Timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", statusError(ollamaName, resp.StatusCode, string(body))
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if callCtx.Err() != nil {
			return "", transportError(callCtx, ollamaName, p.Timeout, err)
		}
		return "", malformed(ollamaName, "decode response: "+err.Error())
	}
	if decoded.Error != "" {
		return "", &Error{Kind: KindNetwork, Provider: ollamaName, Msg: decoded.Error}
	}
	if decoded.Message == nil || decoded.Message.Content == "" {
		return "", malformed(ollamaName, "response did not contain message content")
	}
	return decoded.Message.Content, nil
}
