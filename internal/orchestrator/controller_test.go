package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/attachment"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/conversation"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/gemini"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type generateCall struct {
	prompt      string
	mode        conversation.Mode
	history     []conversation.Message
	attachments []conversation.Attachment
}

// fakeAI records generation calls and replies with a canned result.
type fakeAI struct {
	mu         sync.Mutex
	calls      []generateCall
	titleCalls []string

	result *gemini.Result
	err    error
	title  string

	// When non-nil, GenerateResponse blocks until the channel closes.
	block chan struct{}
}

func (f *fakeAI) GenerateResponse(_ context.Context, prompt string, mode conversation.Mode, history []conversation.Message, attachments []conversation.Attachment) (*gemini.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, generateCall{prompt: prompt, mode: mode, history: history, attachments: attachments})
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &gemini.Result{Text: "hello from kanglei"}, nil
}

func (f *fakeAI) GenerateTitle(_ context.Context, message string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalls = append(f.titleCalls, message)
	if f.title != "" {
		return f.title
	}
	return conversation.DefaultTitle
}

func (f *fakeAI) titleCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.titleCalls)
}

type testController struct {
	ctrl        *Controller
	ai          *fakeAI
	store       *conversation.Store
	attachments *attachment.Store
	wg          *sync.WaitGroup
}

func newTestController(t *testing.T, ai *fakeAI) *testController {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store := conversation.NewStore(logger)
	attachments := attachment.NewStore(logger)
	wg := &sync.WaitGroup{}

	ctrl, err := New(Config{
		AI:            ai,
		Store:         store,
		Attachments:   attachments,
		Logger:        logger,
		BackgroundCtx: context.Background(),
		WG:            wg,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testController{ctrl: ctrl, ai: ai, store: store, attachments: attachments, wg: wg}
}

func TestNew_MissingDependencies(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "nil ai", cfg: Config{Store: conversation.NewStore(logger), Attachments: attachment.NewStore(logger)}},
		{name: "nil store", cfg: Config{AI: &fakeAI{}, Attachments: attachment.NewStore(logger)}},
		{name: "nil attachments", cfg: Config{AI: &fakeAI{}, Store: conversation.NewStore(logger)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestSend_AppendsUserAndAssistantMessages(t *testing.T) {
	tc := newTestController(t, &fakeAI{})

	ex, err := tc.ctrl.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()

	if ex.Message.Role != conversation.RoleAssistant {
		t.Errorf("Role = %q, want %q", ex.Message.Role, conversation.RoleAssistant)
	}
	if ex.Message.Content != "hello from kanglei" {
		t.Errorf("Content = %q, want %q", ex.Message.Content, "hello from kanglei")
	}

	sess, ok := tc.store.Active()
	if !ok {
		t.Fatal("no active session after send")
	}
	if ex.SessionID != sess.ID {
		t.Errorf("exchange session id = %s, want %s", ex.SessionID, sess.ID)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(sess.Messages))
	}
	if sess.Messages[0].Role != conversation.RoleUser || sess.Messages[0].Content != "Hello" {
		t.Errorf("first message = %+v, want user %q", sess.Messages[0], "Hello")
	}
}

func TestSend_EverySendAddsExactlyTwoMessages(t *testing.T) {
	tc := newTestController(t, &fakeAI{})

	const n = 4
	for range n {
		if _, err := tc.ctrl.Send(context.Background(), "ping"); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	tc.wg.Wait()

	sess, _ := tc.store.Active()
	if len(sess.Messages) != 2*n {
		t.Errorf("message count = %d, want %d", len(sess.Messages), 2*n)
	}
}

func TestSend_EmptyMessageIsNoOp(t *testing.T) {
	tc := newTestController(t, &fakeAI{})

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := tc.ctrl.Send(context.Background(), text); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) error = %v, want ErrEmptyMessage", text, err)
		}
	}

	if len(tc.store.Sessions()) != 0 {
		t.Error("empty send created a session")
	}
	if len(tc.ai.calls) != 0 {
		t.Error("empty send reached the ai service")
	}
}

func TestSend_AttachmentOnlyIsAllowed(t *testing.T) {
	tc := newTestController(t, &fakeAI{})
	tc.attachments.Add("photo.png", "image/png", []byte{0x89, 0x50})

	if _, err := tc.ctrl.Send(context.Background(), "  "); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()

	sess, _ := tc.store.Active()
	if got := len(sess.Messages[0].Attachments); got != 1 {
		t.Errorf("user message attachments = %d, want 1", got)
	}
	if got := len(tc.attachments.Pending()); got != 0 {
		t.Errorf("pending after send = %d, want 0", got)
	}
	if got := len(tc.ai.calls[0].attachments); got != 1 {
		t.Errorf("attachments passed to service = %d, want 1", got)
	}
}

func TestSend_TitleFlowFiresExactlyOnce(t *testing.T) {
	ai := &fakeAI{title: "Friendly Greeting"}
	tc := newTestController(t, ai)

	if _, err := tc.ctrl.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()

	if got := ai.titleCallCount(); got != 1 {
		t.Fatalf("title calls after first send = %d, want 1", got)
	}
	if got := ai.titleCalls[0]; got != "Hello" {
		t.Errorf("title seeded with %q, want %q", got, "Hello")
	}

	sess, _ := tc.store.Active()
	if sess.Title != "Friendly Greeting" {
		t.Errorf("session title = %q, want %q", sess.Title, "Friendly Greeting")
	}

	// Subsequent sends must not re-trigger the side-flow.
	for range 3 {
		if _, err := tc.ctrl.Send(context.Background(), "more"); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	tc.wg.Wait()

	if got := ai.titleCallCount(); got != 1 {
		t.Errorf("title calls after four sends = %d, want 1", got)
	}
}

func TestSend_ServiceErrorNeverEscapes(t *testing.T) {
	ai := &fakeAI{err: errors.New("quota exhausted")}
	tc := newTestController(t, ai)

	ex, err := tc.ctrl.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send() error = %v, want nil", err)
	}
	tc.wg.Wait()

	if ex.Message.Content != errorResponseText {
		t.Errorf("Content = %q, want %q", ex.Message.Content, errorResponseText)
	}
	if ex.Message.Role != conversation.RoleAssistant {
		t.Errorf("Role = %q, want %q", ex.Message.Role, conversation.RoleAssistant)
	}

	sess, _ := tc.store.Active()
	if len(sess.Messages) != 2 {
		t.Errorf("message count = %d, want 2", len(sess.Messages))
	}
}

func TestSend_HistoryExcludesCurrentTurn(t *testing.T) {
	tc := newTestController(t, &fakeAI{})

	if _, err := tc.ctrl.Send(context.Background(), "first"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := tc.ctrl.Send(context.Background(), "second"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()

	if got := len(tc.ai.calls[0].history); got != 0 {
		t.Errorf("first call history = %d messages, want 0", got)
	}
	second := tc.ai.calls[1]
	if got := len(second.history); got != 2 {
		t.Fatalf("second call history = %d messages, want 2", got)
	}
	if second.history[0].Content != "first" {
		t.Errorf("history[0] = %q, want %q", second.history[0].Content, "first")
	}
	if second.prompt != "second" {
		t.Errorf("prompt = %q, want %q", second.prompt, "second")
	}
}

func TestSend_ConcurrentSendRejected(t *testing.T) {
	ai := &fakeAI{block: make(chan struct{})}
	tc := newTestController(t, ai)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		if _, err := tc.ctrl.Send(context.Background(), "slow"); err != nil {
			t.Errorf("Send() error = %v", err)
		}
	}()

	// Wait until the first send is inside the service call.
	for {
		ai.mu.Lock()
		started := len(ai.calls) > 0
		ai.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := tc.ctrl.Send(context.Background(), "eager"); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("Send() error = %v, want ErrSendInFlight", err)
	}

	close(ai.block)
	<-firstDone
	tc.wg.Wait()
}

func TestSend_ModeTravelsWithMessages(t *testing.T) {
	tc := newTestController(t, &fakeAI{})
	tc.ctrl.SetMode(conversation.ModeSearch)

	if _, err := tc.ctrl.Send(context.Background(), "find it"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()

	if got := tc.ai.calls[0].mode; got != conversation.ModeSearch {
		t.Errorf("service mode = %q, want %q", got, conversation.ModeSearch)
	}
	sess, _ := tc.store.Active()
	for i, msg := range sess.Messages {
		if msg.Mode != conversation.ModeSearch {
			t.Errorf("message[%d].Mode = %q, want %q", i, msg.Mode, conversation.ModeSearch)
		}
	}
}

func TestSetMode_DoesNotRewriteStoredMessages(t *testing.T) {
	tc := newTestController(t, &fakeAI{})
	tc.ctrl.SetMode(conversation.ModeSearch)

	if _, err := tc.ctrl.Send(context.Background(), "find it"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.ctrl.SetMode(conversation.ModeChat)
	if _, err := tc.ctrl.Send(context.Background(), "now just chat"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()

	sess, _ := tc.store.Active()
	if len(sess.Messages) != 4 {
		t.Fatalf("message count = %d, want 4", len(sess.Messages))
	}
	// Each message keeps the mode active at its own creation.
	for i := range 2 {
		if sess.Messages[i].Mode != conversation.ModeSearch {
			t.Errorf("message[%d].Mode = %q, want %q", i, sess.Messages[i].Mode, conversation.ModeSearch)
		}
	}
	for i := 2; i < 4; i++ {
		if sess.Messages[i].Mode != conversation.ModeChat {
			t.Errorf("message[%d].Mode = %q, want %q", i, sess.Messages[i].Mode, conversation.ModeChat)
		}
	}
}

func TestSend_NewChatMidFlightReconcilesIntoOriginalSession(t *testing.T) {
	ai := &fakeAI{block: make(chan struct{})}
	tc := newTestController(t, ai)

	type outcome struct {
		ex  *Exchange
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ex, err := tc.ctrl.Send(context.Background(), "slow question")
		done <- outcome{ex, err}
	}()

	// Wait until the send is inside the service call, then abandon the
	// session from under it.
	for {
		ai.mu.Lock()
		started := len(ai.calls) > 0
		ai.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}
	tc.ctrl.NewChat(conversation.ModeChat)
	close(ai.block)

	got := <-done
	if got.err != nil {
		t.Fatalf("Send() error = %v", got.err)
	}
	tc.wg.Wait()

	sessions := tc.store.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("session count = %d, want 1", len(sessions))
	}
	if got.ex.SessionID != sessions[0].ID {
		t.Errorf("exchange session id = %s, want %s", got.ex.SessionID, sessions[0].ID)
	}
	if len(sessions[0].Messages) != 2 {
		t.Errorf("message count = %d, want 2 (exchange reconciled)", len(sessions[0].Messages))
	}
	if _, ok := tc.store.Active(); ok {
		t.Error("in-flight send re-selected the abandoned session")
	}
}

func TestSend_ImageResultReconciled(t *testing.T) {
	ai := &fakeAI{result: &gemini.Result{
		Text:     "Generated image for you.",
		ImageURL: "data:image/png;base64,AQID",
	}}
	tc := newTestController(t, ai)
	tc.ctrl.SetMode(conversation.ModeImage)

	ex, err := tc.ctrl.Send(context.Background(), "a sunrise over Loktak lake")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()

	if ex.Message.ImageURL != "data:image/png;base64,AQID" {
		t.Errorf("ImageURL = %q", ex.Message.ImageURL)
	}
	if ex.Message.Content != "Generated image for you." {
		t.Errorf("Content = %q", ex.Message.Content)
	}
}

func TestSend_GroundingAndSuggestionsReconciled(t *testing.T) {
	ai := &fakeAI{result: &gemini.Result{
		Text:          "answer",
		GroundingURLs: []conversation.GroundingURL{{Title: "Wiki", URI: "https://example.com"}},
		Suggestions:   []string{"Tell me more", "Explain in detail", "Give an example"},
	}}
	tc := newTestController(t, ai)

	ex, err := tc.ctrl.Send(context.Background(), "question")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()

	if len(ex.Message.GroundingURLs) != 1 || ex.Message.GroundingURLs[0].URI != "https://example.com" {
		t.Errorf("GroundingURLs = %+v", ex.Message.GroundingURLs)
	}
	if len(ex.Message.Suggestions) != 3 {
		t.Errorf("Suggestions = %v, want 3 entries", ex.Message.Suggestions)
	}
}

func TestNewChat_ResetsSelectionModeAndAttachments(t *testing.T) {
	tc := newTestController(t, &fakeAI{})
	tc.ctrl.SetMode(conversation.ModeSearch)

	if _, err := tc.ctrl.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()
	tc.attachments.Add("a.txt", "text/plain", []byte("x"))

	tc.ctrl.NewChat(conversation.ModeChat)

	if _, ok := tc.store.Active(); ok {
		t.Error("active session survived NewChat")
	}
	if got := tc.ctrl.Mode(); got != conversation.ModeChat {
		t.Errorf("Mode() = %q, want %q", got, conversation.ModeChat)
	}
	if got := len(tc.attachments.Pending()); got != 0 {
		t.Errorf("pending after NewChat = %d, want 0", got)
	}
	// Session data is preserved, only the selection is cleared.
	if got := len(tc.store.Sessions()); got != 1 {
		t.Errorf("session count after NewChat = %d, want 1", got)
	}
}

func TestSend_AfterNewChatCreatesFreshSession(t *testing.T) {
	tc := newTestController(t, &fakeAI{})

	if _, err := tc.ctrl.Send(context.Background(), "first session"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.ctrl.NewChat(conversation.ModeChat)
	if _, err := tc.ctrl.Send(context.Background(), "second session"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	tc.wg.Wait()

	sessions := tc.store.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("session count = %d, want 2", len(sessions))
	}
	// Most recent first.
	if sessions[0].Messages[0].Content != "second session" {
		t.Errorf("sessions[0] first message = %q, want %q", sessions[0].Messages[0].Content, "second session")
	}

	if got := tc.ai.titleCallCount(); got != 2 {
		t.Errorf("title calls = %d, want 2 (one per session)", got)
	}
}

func TestSend_MessageIDsAreUnique(t *testing.T) {
	tc := newTestController(t, &fakeAI{})

	for range 3 {
		if _, err := tc.ctrl.Send(context.Background(), "tick"); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	tc.wg.Wait()

	sess, _ := tc.store.Active()
	seen := make(map[string]bool, len(sess.Messages))
	for _, msg := range sess.Messages {
		if seen[msg.ID] {
			t.Fatalf("duplicate message id %q", msg.ID)
		}
		seen[msg.ID] = true
	}
}
