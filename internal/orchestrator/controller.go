// Package orchestrator coordinates the send-message lifecycle: input
// validation, request composition, service invocation, and reconciliation
// of the result into the conversation store.
//
// One send may be in flight per controller at a time; a second send is
// rejected, not queued. The title side-flow runs detached on the
// application lifecycle context and never blocks or orders itself against
// further sends.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/attachment"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/conversation"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/gemini"
)

// errorResponseText is appended as the assistant's reply when the primary
// generation call fails. The browser renders it verbatim.
const errorResponseText = "Kanglei Intelligence Core encountered a multi-modal processing error. Please retry."

// Sentinel errors for send guards. Check with errors.Is().
var (
	// ErrEmptyMessage indicates the send had no text and no attachments.
	ErrEmptyMessage = errors.New("empty message")

	// ErrSendInFlight indicates a send is already outstanding.
	ErrSendInFlight = errors.New("send already in flight")
)

// AIService is the slice of the generation client the controller depends on.
type AIService interface {
	GenerateResponse(ctx context.Context, prompt string, mode conversation.Mode, history []conversation.Message, attachments []conversation.Attachment) (*gemini.Result, error)
	GenerateTitle(ctx context.Context, message string) string
}

// Config contains all required parameters for the controller.
type Config struct {
	AI          AIService
	Store       *conversation.Store
	Attachments *attachment.Store
	Logger      *slog.Logger

	// Background lifecycle for the detached title side-flow.
	// BackgroundCtx outlives individual requests; WG tracks the title
	// goroutine for graceful shutdown.
	BackgroundCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
	WG            *sync.WaitGroup
}

func (cfg Config) validate() error {
	if cfg.AI == nil {
		return errors.New("ai service is required")
	}
	if cfg.Store == nil {
		return errors.New("conversation store is required")
	}
	if cfg.Attachments == nil {
		return errors.New("attachment store is required")
	}
	return nil
}

// Controller drives the send-message lifecycle against the conversation
// store. Safe for concurrent use; concurrent sends beyond the first are
// rejected with ErrSendInFlight.
type Controller struct {
	ai          AIService
	store       *conversation.Store
	attachments *attachment.Store
	logger      *slog.Logger
	tracer      trace.Tracer

	bgCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
	wg    *sync.WaitGroup

	mu       sync.Mutex
	inFlight bool
	mode     conversation.Mode
	lastID   int64 // last issued time-based message id
}

// New creates a Controller starting in chat mode with no active session.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bgCtx := cfg.BackgroundCtx
	if bgCtx == nil {
		bgCtx = context.Background()
	}
	wg := cfg.WG
	if wg == nil {
		wg = &sync.WaitGroup{}
	}

	return &Controller{
		ai:          cfg.AI,
		store:       cfg.Store,
		attachments: cfg.Attachments,
		logger:      logger,
		tracer:      otel.Tracer("kanglei/orchestrator"),
		bgCtx:       bgCtx,
		wg:          wg,
	}, nil
}

// Mode returns the ambient generation mode applied to new messages.
func (c *Controller) Mode() conversation.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == "" {
		return conversation.ModeChat
	}
	return c.mode
}

// SetMode changes the ambient mode. Previously stored messages keep the
// mode active at their own creation.
func (c *Controller) SetMode(mode conversation.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}

// NewChat clears the active session selection and resets mode and pending
// attachments. An in-flight request targeting the deselected session still
// completes and reconciles into that session's data.
func (c *Controller) NewChat(mode conversation.Mode) {
	c.store.ClearSelection()
	c.attachments.Clear()
	c.SetMode(mode)
}

// Exchange is the outcome of one completed send: the session the turn was
// reconciled into and the appended assistant message. The session id is
// captured during the send, so it stays correct even when the selection
// changes while the request is in flight.
type Exchange struct {
	SessionID uuid.UUID
	Message   conversation.Message
}

// Send runs one complete exchange: append the user message, call the
// generation service, and append the assistant reply. On service failure
// the reply is the fixed error message; the failure itself never escapes.
//
// Guards return ErrEmptyMessage (no text, no attachments, nothing is
// mutated) or ErrSendInFlight (a send is already outstanding).
func (c *Controller) Send(ctx context.Context, text string) (*Exchange, error) {
	prompt := strings.TrimSpace(text)
	pending := c.attachments.Pending()
	if prompt == "" && len(pending) == 0 {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrSendInFlight
	}
	c.inFlight = true
	mode := c.mode
	if mode == "" {
		mode = conversation.ModeChat
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	ctx, span := c.tracer.Start(ctx, "orchestrator.send",
		trace.WithAttributes(attribute.String("mode", string(mode))))
	defer span.End()

	userMsg := conversation.Message{
		ID:          c.nextMessageID(),
		Role:        conversation.RoleUser,
		Content:     prompt,
		Timestamp:   time.Now(),
		Mode:        mode,
		Attachments: c.attachments.Drain(),
	}

	// Lazy session creation on first send; otherwise append to the
	// active session.
	sess, active := c.store.Active()
	if !active {
		sess = c.store.CreateSession(userMsg)
	} else {
		if err := c.store.AppendMessage(sess.ID, userMsg); err != nil {
			return nil, err
		}
		sess.Messages = append(sess.Messages, userMsg)
	}
	span.SetAttributes(attribute.String("session_id", sess.ID.String()))

	// History is every turn before the one just added. The pre-call
	// snapshot also decides the title trigger: the side-flow fires only
	// when this send is the session's first exchange.
	history := sess.Messages[:len(sess.Messages)-1]
	firstExchange := len(sess.Messages) == 1

	result, err := c.ai.GenerateResponse(ctx, prompt, mode, history, userMsg.Attachments)
	if err != nil {
		c.logger.Error("generation failed", "session_id", sess.ID, "mode", mode, "error", err)
		errMsg := conversation.Message{
			ID:        c.nextMessageID(),
			Role:      conversation.RoleAssistant,
			Content:   errorResponseText,
			Timestamp: time.Now(),
			Mode:      mode,
		}
		if appendErr := c.store.AppendMessage(sess.ID, errMsg); appendErr != nil {
			return nil, appendErr
		}
		return &Exchange{SessionID: sess.ID, Message: errMsg}, nil
	}

	assistantMsg := conversation.Message{
		ID:            c.nextMessageID(),
		Role:          conversation.RoleAssistant,
		Content:       result.Text,
		Timestamp:     time.Now(),
		Mode:          mode,
		ImageURL:      result.ImageURL,
		GroundingURLs: result.GroundingURLs,
		Suggestions:   result.Suggestions,
	}
	if err := c.store.AppendMessage(sess.ID, assistantMsg); err != nil {
		return nil, err
	}

	if firstExchange {
		c.spawnTitleFlow(sess.ID, prompt)
	}

	return &Exchange{SessionID: sess.ID, Message: assistantMsg}, nil
}

// spawnTitleFlow generates and applies the session title exactly once,
// detached from the send that triggered it. Non-blocking, non-cancelable
// by the request; tracked only for graceful shutdown.
func (c *Controller) spawnTitleFlow(sessionID uuid.UUID, prompt string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		title := c.ai.GenerateTitle(c.bgCtx, prompt)
		if err := c.store.RenameSession(sessionID, title); err != nil {
			c.logger.Debug("title rename skipped", "session_id", sessionID, "error", err)
		}
	}()
}

// nextMessageID issues a time-based id, strictly increasing so ids stay
// unique within a session even when two messages land in the same
// millisecond.
func (c *Controller) nextMessageID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := time.Now().UnixMilli()
	if id <= c.lastID {
		id = c.lastID + 1
	}
	c.lastID = id
	return strconv.FormatInt(id, 10)
}

