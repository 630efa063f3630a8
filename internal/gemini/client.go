// Package gemini encapsulates all outbound calls to the Gemini API:
// conversational/search generation, image generation, speech synthesis, and
// title summarization. It is the only package that speaks the provider's
// wire shapes; callers receive typed results.
package gemini

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/genai"
)

// systemInstruction conditions the assistant persona on every chat and
// search request.
const systemInstruction = "You are Kanglei Artificial Intelligence (Kanglei AI), a world-class AI assistant founded by Rakesh Irom from Manipur, India. You combine the reasoning of Claude, the search capabilities of Perplexity, the multi-modal power of Gemini, and the conversational fluidity of ChatGPT. When asked about your origin, always mention Rakesh Irom and Manipur with pride."

// Fixed fallback strings. These are part of the product contract: the
// browser renders them verbatim.
const (
	// fallbackResponseText replaces an empty primary answer.
	fallbackResponseText = "I'm sorry, I couldn't process that."

	// fallbackImageText replaces an empty caption on image generation.
	fallbackImageText = "Generated image for you."

	// defaultSourceTitle labels a grounding citation with no title.
	defaultSourceTitle = "Source"
)

// fallbackSuggestions replaces the follow-up list when the suggestions
// call fails or returns malformed JSON.
var fallbackSuggestions = []string{"Tell me more", "Explain in detail", "Give an example"}

// ErrMissingAPIKey indicates no Gemini API key was configured.
var ErrMissingAPIKey = errors.New("missing Gemini API key")

// Models names the model variant used for each operation.
type Models struct {
	Chat   string // higher-capability variant, extended thinking
	Search string // faster variant, web-search tool; also suggestions + titles
	Image  string // image generation
	TTS    string // speech synthesis
}

// DefaultModels returns the production model set.
func DefaultModels() Models {
	return Models{
		Chat:   "gemini-3-pro-preview",
		Search: "gemini-3-flash-preview",
		Image:  "gemini-2.5-flash-image",
		TTS:    "gemini-2.5-flash-preview-tts",
	}
}

// DefaultThinkingBudget is the reasoning compute allowance for chat mode.
const DefaultThinkingBudget int32 = 16000

// DefaultVoice is the prebuilt voice used for speech synthesis.
const DefaultVoice = "Kore"

// Generator is the slice of the genai SDK the client depends on.
// *genai.Models satisfies it; tests substitute a fake.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config contains all required parameters for the client.
type Config struct {
	APIKey string
	Logger *slog.Logger

	// Models is the per-operation model set (zero value uses DefaultModels).
	Models Models

	// ThinkingBudget is the chat-mode reasoning allowance (0 uses default).
	ThinkingBudget int32

	// Voice selects the TTS voice (empty uses DefaultVoice).
	Voice string

	// Generator overrides the genai backend. Nil uses the real API client
	// constructed from APIKey. Tests inject a fake here.
	Generator Generator
}

// Client issues requests against the Gemini API. Each operation is an
// independent request/response exchange; nothing is batched or pipelined.
// Client is safe for concurrent use.
type Client struct {
	gen            Generator
	models         Models
	thinkingBudget int32
	voice          string
	logger         *slog.Logger
}

// New creates a Client. When cfg.Generator is nil a real genai client is
// constructed, which requires cfg.APIKey.
func New(ctx context.Context, cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	models := cfg.Models
	if models == (Models{}) {
		models = DefaultModels()
	}

	budget := cfg.ThinkingBudget
	if budget <= 0 {
		budget = DefaultThinkingBudget
	}

	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	gen := cfg.Generator
	if gen == nil {
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, err
		}
		gen = client.Models
	}

	return &Client{
		gen:            gen,
		models:         models,
		thinkingBudget: budget,
		voice:          voice,
		logger:         logger,
	}, nil
}
