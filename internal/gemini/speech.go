package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// SpeakText synthesizes speech for text with the configured voice.
// The returned payload is raw 16-bit little-endian PCM at 24 kHz, taken
// from the first part of the first candidate; nil when the service
// produced no audio.
func (c *Client) SpeakText(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.gen.GenerateContent(ctx, c.models.TTS,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.voice},
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}

	parts := candidateParts(resp)
	if len(parts) == 0 || parts[0].InlineData == nil {
		return nil, nil
	}
	return parts[0].InlineData.Data, nil
}
