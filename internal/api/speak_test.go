package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type stubSpeaker struct {
	pcm []byte
	err error
}

func (s *stubSpeaker) SpeakText(_ context.Context, _ string) ([]byte, error) {
	return s.pcm, s.err
}

func TestSpeak(t *testing.T) {
	ts := newTestServer(t, &stubAI{}, &stubSpeaker{pcm: []byte{0x01, 0x02, 0x03, 0x04}})

	w := postJSON(t, ts, "/api/v1/speak", `{"text":"Hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "audio/wav" {
		t.Errorf("Content-Type = %q, want audio/wav", got)
	}
	// 44-byte RIFF header plus the PCM payload.
	if w.Body.Len() != 48 {
		t.Errorf("body length = %d, want 48", w.Body.Len())
	}
}

func TestSpeak_EmptyText(t *testing.T) {
	ts := newTestServer(t, &stubAI{}, &stubSpeaker{})

	w := postJSON(t, ts, "/api/v1/speak", `{"text":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSpeak_SynthesisError(t *testing.T) {
	ts := newTestServer(t, &stubAI{}, &stubSpeaker{err: errors.New("model unavailable")})

	w := postJSON(t, ts, "/api/v1/speak", `{"text":"Hello"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestSpeak_NoAudio(t *testing.T) {
	ts := newTestServer(t, &stubAI{}, &stubSpeaker{})

	w := postJSON(t, ts, "/api/v1/speak", `{"text":"Hello"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestSpeak_NotRegisteredWithoutSpeaker(t *testing.T) {
	ts := newTestServer(t, &stubAI{}, nil)

	w := postJSON(t, ts, "/api/v1/speak", `{"text":"Hello"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
