package ai

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"
)

func newTestGemini(t *testing.T, baseURL, key string, timeout time.Duration) *GeminiProvider {
	t.Helper()
	p, err := NewGeminiProvider(context.Background(), GeminiConfig{
		APIKey:  key,
		Model:   "gemini-test",
		BaseURL: baseURL,
		Timeout: timeout,
	})
	require.NoError(t, err)
	return p
}

func TestGemini_ReturnsTextUnmodified(t *testing.T) {
	srv := newStubServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi there"}]},"finishReason":"STOP"}]}`)
	p := newTestGemini(t, srv.URL, "test-key", time.Second)

	got, err := p.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", got)
	assert.Contains(t, srv.body(), "Hello")
}

func TestGemini_MissingCredentialBeforeNetwork(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, `{}`)
	p := newTestGemini(t, srv.URL, "  ", time.Second)

	_, err := p.Generate(context.Background(), "Hello")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMissingCredential, kind)
	assert.Zero(t, srv.hits.Load())
}

func TestGemini_PromptBlocked(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	p := newTestGemini(t, srv.URL, "test-key", time.Second)

	_, err := p.Generate(context.Background(), "Hello")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindBlockedContent, e.Kind)
	assert.Equal(t, "SAFETY", e.Reason)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGemini_NoCandidatesIsMalformed(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, `{"candidates":[]}`)
	p := newTestGemini(t, srv.URL, "test-key", time.Second)

	_, err := p.Generate(context.Background(), "Hello")
	kind, _ := KindOf(err)
	assert.Equal(t, KindMalformedResponse, kind)
}

func TestGemini_StatusErrorIsNetworkError(t *testing.T) {
	srv := newStubServer(t, http.StatusBadRequest,
		`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	p := newTestGemini(t, srv.URL, "test-key", time.Second)

	_, err := p.Generate(context.Background(), "Hello")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindNetwork, e.Kind)
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	assert.Contains(t, e.Body, "API key not valid")
}

func TestGemini_Timeout(t *testing.T) {
	srv := newHangingServer(t)
	p := newTestGemini(t, srv.URL, "test-key", 50*time.Millisecond)

	start := time.Now()
	_, err := p.Generate(context.Background(), "Hello")
	kind, _ := KindOf(err)
	assert.Equal(t, KindTimeout, kind)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExtractGeminiText(t *testing.T) {
	t.Run("joins text parts and skips thoughts", func(t *testing.T) {
		got, err := extractGeminiText(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "thinking...", Thought: true},
					{Text: "Hi "},
					{Text: "there"},
				}},
			}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Hi there", got)
	})

	t.Run("policy finish reason is blocked", func(t *testing.T) {
		_, err := extractGeminiText(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: "PROHIBITED_CONTENT"}},
		})
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, KindBlockedContent, e.Kind)
		assert.Equal(t, "PROHIBITED_CONTENT", e.Reason)
	})

	t.Run("parts without text are malformed", func(t *testing.T) {
		_, err := extractGeminiText(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				FinishReason: "STOP",
				Content:      &genai.Content{Parts: []*genai.Part{{}}},
			}},
		})
		kind, _ := KindOf(err)
		assert.Equal(t, KindMalformedResponse, kind)
	})

	t.Run("nil response", func(t *testing.T) {
		_, err := extractGeminiText(nil)
		kind, _ := KindOf(err)
		assert.Equal(t, KindMalformedResponse, kind)
	})
}
