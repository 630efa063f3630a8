package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/conversation"
)

// suggestionSeedMaxRunes caps how much of the primary answer seeds the
// follow-up suggestions request.
const suggestionSeedMaxRunes = 500

// suggestionPrompt asks for exactly three follow-up questions as a JSON
// string array.
const suggestionPrompt = `Based on this AI response, provide 3 short, relevant follow-up questions the user might want to ask next. Format as a simple JSON string array: ["Q1", "Q2", "Q3"]. Response: %q`

// Result is the structured outcome of a generation request.
type Result struct {
	Text          string
	ImageURL      string // data URL, image mode only
	GroundingURLs []conversation.GroundingURL
	Suggestions   []string
}

// GenerateResponse runs the generation pathway selected by mode.
//
// Image mode sends the prompt alone and extracts a single square image from
// the first candidate. Chat and search modes send the role-tagged history
// plus the new user turn under the fixed system instruction, then issue a
// dependent follow-up request for suggestion chips. Only the primary call's
// error propagates; the suggestions call degrades to a fixed fallback.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, mode conversation.Mode, history []conversation.Message, attachments []conversation.Attachment) (*Result, error) {
	if mode == conversation.ModeImage {
		return c.generateImage(ctx, prompt)
	}

	model := c.models.Chat
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
	}
	switch mode {
	case conversation.ModeSearch:
		model = c.models.Search
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	default: // chat
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(c.thinkingBudget)}
	}

	contents := c.historyContents(history)
	contents = append(contents, c.userTurn(prompt, attachments))

	resp, err := c.gen.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}

	text := resp.Text()
	result := &Result{
		Text:          text,
		GroundingURLs: groundingURLs(resp),
		Suggestions:   c.generateSuggestions(ctx, text),
	}
	if result.Text == "" {
		result.Text = fallbackResponseText
	}
	return result, nil
}

// generateImage requests a single 1:1 image for the prompt. History and
// attachments are intentionally not sent in this mode.
func (c *Client) generateImage(ctx context.Context, prompt string) (*Result, error) {
	resp, err := c.gen.GenerateContent(ctx, c.models.Image,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{AspectRatio: "1:1"},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}

	result := &Result{}
	for _, part := range candidateParts(resp) {
		switch {
		case part.InlineData != nil && result.ImageURL == "":
			result.ImageURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data)
		case part.Text != "":
			result.Text += part.Text
		}
	}
	if result.Text == "" {
		result.Text = fallbackImageText
	}
	return result, nil
}

// generateSuggestions issues the dependent follow-up request. It must never
// cause the primary answer to fail: every error path returns the fixed
// fallback list.
func (c *Client) generateSuggestions(ctx context.Context, answer string) []string {
	seed := []rune(answer)
	if len(seed) > suggestionSeedMaxRunes {
		seed = seed[:suggestionSeedMaxRunes]
	}

	resp, err := c.gen.GenerateContent(ctx, c.models.Search,
		[]*genai.Content{{Parts: []*genai.Part{{Text: fmt.Sprintf(suggestionPrompt, string(seed))}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		c.logger.Debug("suggestions call failed, using fallback", "error", err)
		return fallbackSuggestions
	}

	// An empty response means no suggestions, not a parse failure.
	text := resp.Text()
	if text == "" {
		return nil
	}

	var suggestions []string
	if err := json.Unmarshal([]byte(text), &suggestions); err != nil {
		c.logger.Debug("suggestions parse failed, using fallback", "error", err)
		return fallbackSuggestions
	}
	return suggestions
}

// historyContents maps prior conversation turns to role-tagged contents:
// one text part each, plus an inline-data part per attachment.
func (c *Client) historyContents(history []conversation.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		role := genai.RoleUser
		if msg.Role == conversation.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: c.parts(msg.Content, msg.Attachments),
		})
	}
	return contents
}

// userTurn builds the new user turn from the prompt and its attachments.
func (c *Client) userTurn(prompt string, attachments []conversation.Attachment) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleUser,
		Parts: c.parts(prompt, attachments),
	}
}

// parts assembles a text part plus inline-binary parts. Attachments whose
// payload fails to decode are skipped rather than failing the request.
func (c *Client) parts(text string, attachments []conversation.Attachment) []*genai.Part {
	parts := []*genai.Part{{Text: text}}
	for _, att := range attachments {
		data, err := base64.StdEncoding.DecodeString(att.Data)
		if err != nil {
			c.logger.Warn("skipping undecodable attachment", "name", att.Name, "error", err)
			continue
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: att.MIMEType, Data: data},
		})
	}
	return parts
}

// groundingURLs extracts web citations from the first candidate's grounding
// metadata. Entries without a resolvable URI are dropped; missing titles
// default to "Source".
func groundingURLs(resp *genai.GenerateContentResponse) []conversation.GroundingURL {
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}

	var urls []conversation.GroundingURL
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = defaultSourceTitle
		}
		urls = append(urls, conversation.GroundingURL{Title: title, URI: chunk.Web.URI})
	}
	return urls
}

// candidateParts returns the content parts of the first candidate, or nil.
func candidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}
