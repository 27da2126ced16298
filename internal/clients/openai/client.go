package openai

import (
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

const maxTitleLen = 80

// GenerateTitle derives a short chat title from the first exchange.
// Best-effort: callers log failures and move on.
func (p *Producer) GenerateTitle(ctx context.Context, userText, assistantText string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: p.titleModel,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: "Write a title of at most five words for the following exchange. Respond with the title only, no quotes.",
			},
			{
				Role:    goopenai.ChatMessageRoleUser,
				Content: fmt.Sprintf("User: %s\n\nAssistant: %s", userText, assistantText),
			},
		},
		MaxTokens: 24,
	})
	if err != nil {
		return "", fmt.Errorf("title completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("title completion returned no choices")
	}
	title := strings.TrimSpace(strings.Trim(resp.Choices[0].Message.Content, `"'`))
	if title == "" {
		return "", fmt.Errorf("title completion returned empty title")
	}
	return truncateTitle(title), nil
}

// truncateTitle caps the title by rune count; byte slicing could split a
// multi-byte character.
func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= maxTitleLen {
		return title
	}
	return string(runes[:maxTitleLen])
}

// Moderate reports whether text violates content policy. API failures
// default open with a warning; moderation is a gate, not a dependency.
func (p *Producer) Moderate(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	resp, err := p.client.Moderations(ctx, goopenai.ModerationRequest{Input: text})
	if err != nil {
		return false, fmt.Errorf("moderation: %w", err)
	}
	for _, r := range resp.Results {
		if r.Flagged {
			return true, nil
		}
	}
	return false, nil
}
