// Package api exposes the chat service over a JSON HTTP API.
//
// All endpoints live under /api/v1 behind a middleware stack of panic
// recovery, request IDs, request logging, CORS, and per-IP rate limiting.
// Health probes bypass the stack.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/attachment"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/conversation"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/orchestrator"
)

// Speaker converts text to speech audio. Implemented by *gemini.Client.
type Speaker interface {
	SpeakText(ctx context.Context, text string) ([]byte, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Controller  *orchestrator.Controller // Required
	Store       *conversation.Store      // Required
	Attachments *attachment.Store        // Required
	Speech      Speaker                  // Optional: nil disables /api/v1/speak
	CORSOrigins []string                 // Allowed origins for CORS
	IsDev       bool                     // Disables HSTS header
	TrustProxy  bool                     // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateRPS     float64                  // Rate limiter refill per IP (0 = default 5/sec)
	RateBurst   int                      // Rate limiter burst size per IP (0 = default 10)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Attachments == nil {
		return nil, errors.New("attachment store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{ctrl: cfg.Controller, logger: logger}
	sh := &sessionHandler{store: cfg.Store, logger: logger}
	ah := &attachmentHandler{store: cfg.Attachments, logger: logger}

	mux := http.NewServeMux()

	// Sessions
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("GET /api/v1/sessions/{id}/export", sh.export)
	mux.HandleFunc("POST /api/v1/sessions/{id}/select", sh.selectSession)

	// Chat
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/chat/new", ch.newChat)
	mux.HandleFunc("POST /api/v1/mode", ch.setMode)

	// Attachments
	mux.HandleFunc("POST /api/v1/attachments", ah.add)
	mux.HandleFunc("DELETE /api/v1/attachments/{index}", ah.remove)
	mux.HandleFunc("GET /api/v1/attachments/preview/{id}", ah.preview)

	// Speech (optional — only registered if a speaker is provided)
	if cfg.Speech != nil {
		sp := &speechHandler{speech: cfg.Speech, logger: logger}
		mux.HandleFunc("POST /api/v1/speak", sp.speak)
	}

	// Rate limiter: per-IP token bucket
	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	rl := newRateLimiter(rps, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Wrap with security headers
	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Use a top-level mux to separate health probes from middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
