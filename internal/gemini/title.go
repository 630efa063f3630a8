package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/conversation"
)

// Title generation constants.
const (
	titleGenerationTimeout = 5 * time.Second
	titleInputMaxRunes     = 500
)

const titlePrompt = `Summarize this message in 3-5 words for a chat title: %q`

// GenerateTitle summarizes the seed message into a short session title.
// Best-effort: any failure or empty result falls back to the default
// placeholder, so the caller can always rename unconditionally.
func (c *Client) GenerateTitle(ctx context.Context, message string) string {
	ctx, cancel := context.WithTimeout(ctx, titleGenerationTimeout)
	defer cancel()

	runes := []rune(message)
	if len(runes) > titleInputMaxRunes {
		message = string(runes[:titleInputMaxRunes]) + "..."
	}

	resp, err := c.gen.GenerateContent(ctx, c.models.Search,
		[]*genai.Content{{Parts: []*genai.Part{{Text: fmt.Sprintf(titlePrompt, message)}}}},
		nil,
	)
	if err != nil {
		c.logger.Debug("title generation failed", "error", err)
		return conversation.DefaultTitle
	}

	title := strings.TrimSpace(strings.ReplaceAll(resp.Text(), `"`, ""))
	if title == "" {
		return conversation.DefaultTitle
	}

	titleRunes := []rune(title)
	if len(titleRunes) > conversation.TitleMaxLength {
		title = string(titleRunes[:conversation.TitleMaxLength-3]) + "..."
	}
	return title
}
