package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		APIKey:         "test-api-key-123456",
		ChatModel:      "gemini-3-pro-preview",
		SearchModel:    "gemini-3-flash-preview",
		ImageModel:     "gemini-2.5-flash-image",
		TTSModel:       "gemini-2.5-flash-preview-tts",
		ThinkingBudget: 16000,
		Voice:          "Kore",
		ListenAddr:     "localhost:8080",
		RateLimitRPS:   5,
		RateLimitBurst: 10,
		LogLevel:       "info",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}, wantErr: nil},
		{name: "missing api key", mutate: func(c *Config) { c.APIKey = "" }, wantErr: ErrMissingAPIKey},
		{name: "empty chat model", mutate: func(c *Config) { c.ChatModel = "" }, wantErr: ErrInvalidModelName},
		{name: "empty tts model", mutate: func(c *Config) { c.TTSModel = "" }, wantErr: ErrInvalidModelName},
		{name: "negative thinking budget", mutate: func(c *Config) { c.ThinkingBudget = -1 }, wantErr: ErrInvalidThinkingBudget},
		{name: "thinking budget over max", mutate: func(c *Config) { c.ThinkingBudget = MaxThinkingBudget + 1 }, wantErr: ErrInvalidThinkingBudget},
		{name: "empty voice", mutate: func(c *Config) { c.Voice = "" }, wantErr: ErrInvalidVoice},
		{name: "empty listen addr", mutate: func(c *Config) { c.ListenAddr = "" }, wantErr: ErrInvalidListenAddr},
		{name: "zero rps", mutate: func(c *Config) { c.RateLimitRPS = 0 }, wantErr: ErrInvalidRateLimit},
		{name: "zero burst", mutate: func(c *Config) { c.RateLimitBurst = 0 }, wantErr: ErrInvalidRateLimit},
		{name: "bogus log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() error = %v, want ErrConfigNil", err)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{name: "empty", secret: "", want: ""},
		{name: "short fully masked", secret: "abc123", want: maskedValue},
		{name: "exactly eight fully masked", secret: "12345678", want: maskedValue},
		{name: "long shows edges", secret: "my_long_secret_key_123", want: "my<" + maskedValue + ">23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.secret); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

func TestMarshalJSON_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Datadog.APIKey = "dd-secret-key-value"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	out := string(data)
	if strings.Contains(out, cfg.APIKey) {
		t.Error("marshaled config leaks the Gemini API key")
	}
	if strings.Contains(out, "dd-secret-key-value") {
		t.Error("marshaled config leaks the Datadog API key")
	}
	if !strings.Contains(out, maskedValue) {
		t.Error("marshaled config has no masked placeholder")
	}
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	if strings.Contains(cfg.String(), cfg.APIKey) {
		t.Error("String() leaks the API key")
	}
}
