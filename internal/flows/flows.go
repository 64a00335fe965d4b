package flows

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/suPer8Hu/chatform/internal/ai"
	"github.com/suPer8Hu/chatform/internal/message"
)

const summarizePrompt = "Summarize the following message in a concise manner:\n\n%s"

const suggestEditsPrompt = `You are an assistant that helps users improve the clarity and tone of their messages.

Suggest edits to the following message to improve its clarity and tone. Explain why each edit was suggested.

Respond with only a JSON object of the form {"edited_message": "...", "explanation": "..."}.

Message: %s`

// Service runs one-shot helper prompts over a message. Nothing is persisted.
type Service struct {
	gen    ai.Provider
	maxLen int
}

func NewService(gen ai.Provider, maxMessageLength int) *Service {
	if maxMessageLength <= 0 {
		maxMessageLength = message.DefaultMaxMessageLength
	}
	return &Service{gen: gen, maxLen: maxMessageLength}
}

type Edits struct {
	EditedMessage string `json:"edited_message"`
	Explanation   string `json:"explanation"`
}

// Summarize returns a short summary of raw. Errors are *message.ValidationError
// or *ai.Error.
func (s *Service) Summarize(ctx context.Context, userID, raw string) (string, error) {
	text, verr := message.Validate(userID, raw, s.maxLen)
	if verr != nil {
		return "", verr
	}
	out, err := s.gen.Generate(ctx, render(summarizePrompt, text))
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(out)
	if summary == "" {
		return "", &ai.Error{Kind: ai.KindMalformedResponse, Provider: "summarize", Msg: "empty summary"}
	}
	return summary, nil
}

// SuggestEdits asks for a reworded message plus the reasoning behind it.
func (s *Service) SuggestEdits(ctx context.Context, userID, raw string) (Edits, error) {
	text, verr := message.Validate(userID, raw, s.maxLen)
	if verr != nil {
		return Edits{}, verr
	}
	out, err := s.gen.Generate(ctx, render(suggestEditsPrompt, text))
	if err != nil {
		return Edits{}, err
	}
	return parseEdits(out)
}

func render(tmpl, text string) string {
	return strings.Replace(tmpl, "%s", text, 1)
}

func parseEdits(out string) (Edits, error) {
	var e Edits
	if err := json.Unmarshal([]byte(stripFence(out)), &e); err != nil {
		return Edits{}, &ai.Error{
			Kind:     ai.KindMalformedResponse,
			Provider: "suggest-edits",
			Msg:      "output is not the expected JSON object",
			Err:      err,
		}
	}
	if strings.TrimSpace(e.EditedMessage) == "" {
		return Edits{}, &ai.Error{Kind: ai.KindMalformedResponse, Provider: "suggest-edits", Msg: "missing edited_message"}
	}
	return e, nil
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
