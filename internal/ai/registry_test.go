package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/chatform/internal/config"
)

type fixedProvider struct{ model string }

func (p fixedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.model + ":" + prompt, nil
}

func TestRegistry_GetNormalizesName(t *testing.T) {
	reg := NewRegistry()
	reg.Register(" Fake ", func(ctx context.Context, model string) (Provider, error) {
		return fixedProvider{model: model}, nil
	})

	p, err := reg.Get(context.Background(), "FAKE", " m1 ")
	require.NoError(t, err)
	out, err := p.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "m1:x", out)
}

func TestRegistry_Unknown(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", nil)
	_, err := reg.Get(context.Background(), "b", "")
	assert.ErrorContains(t, err, "unknown ai provider")
}

func TestFromConfig(t *testing.T) {
	cfg := config.Config{AIProvider: "gemini", GeminiModel: "gemini-test"}
	p, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)

	// no key configured: the call fails fast without touching the network
	_, err = p.Generate(context.Background(), "Hello")
	kind, _ := KindOf(err)
	assert.Equal(t, KindMissingCredential, kind)

	reg := NewRegistryFromConfig(cfg)
	assert.Equal(t, []string{"gemini", "ollama", "openrouter"}, reg.Names())
}
