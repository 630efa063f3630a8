package config

import (
	"fmt"
	"slices"
)

// validLogLevels are the accepted log_level values.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. API key validation (required for all AI operations)
	if c.APIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// 2. Model configuration validation
	models := map[string]string{
		"chat_model":   c.ChatModel,
		"search_model": c.SearchModel,
		"image_model":  c.ImageModel,
		"tts_model":    c.TTSModel,
	}
	for key, name := range models {
		if name == "" {
			return fmt.Errorf("%w: %s cannot be empty", ErrInvalidModelName, key)
		}
	}

	// ThinkingBudget range: 0 (disabled) to model maximum
	if c.ThinkingBudget < 0 || c.ThinkingBudget > MaxThinkingBudget {
		return fmt.Errorf("%w: must be between 0 and %d, got %d",
			ErrInvalidThinkingBudget, MaxThinkingBudget, c.ThinkingBudget)
	}

	if c.Voice == "" {
		return fmt.Errorf("%w: voice cannot be empty", ErrInvalidVoice)
	}

	// 3. Server configuration validation
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr cannot be empty", ErrInvalidListenAddr)
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: rate_limit_rps must be positive, got %g", ErrInvalidRateLimit, c.RateLimitRPS)
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("%w: rate_limit_burst must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimitBurst)
	}

	// 4. Logging configuration validation
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("%w: must be one of %v, got %q", ErrInvalidLogLevel, validLogLevels, c.LogLevel)
	}

	return nil
}
