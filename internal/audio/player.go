package audio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Player starts playback of decoded speech and hands out completion-
// observable handles. Playback is paced in real time against the sample
// rate; samples are streamed to the configured sink (an audio pipe, a
// file, or io.Discard when only the pacing matters).
type Player struct {
	sink   io.Writer
	logger *slog.Logger

	// interval is the wall-clock delay between chunk writes. Each chunk
	// carries chunkAudio worth of samples, so at the default interval
	// playback tracks real time.
	interval time.Duration
}

// chunkAudio is the amount of audio written per chunk.
const chunkAudio = 100 * time.Millisecond

// NewPlayer creates a Player writing to sink. A nil sink discards samples
// (playback still takes real time, which keeps the speaking indicator
// honest). logger may be nil.
func NewPlayer(sink io.Writer, logger *slog.Logger) *Player {
	if sink == nil {
		sink = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{sink: sink, logger: logger, interval: chunkAudio}
}

// Playback is a handle to one in-progress playback.
type Playback struct {
	done chan struct{}
	once sync.Once
	stop context.CancelFunc

	mu  sync.Mutex
	err error
}

// Done is closed when playback finishes or is stopped. Callers use it to
// reset a "currently speaking" indicator.
func (p *Playback) Done() <-chan struct{} { return p.done }

// Stop aborts playback. Safe to call multiple times and after completion.
func (p *Playback) Stop() { p.stop() }

// Err reports the playback failure, if any, once Done is closed.
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Play normalizes the raw PCM payload into a float sample buffer and starts
// playback immediately. The returned handle's Done channel closes when the
// last sample has been written, the payload runs out, or Stop is called.
// Playback failures are recorded on the handle and logged, never propagated:
// audio is a best-effort side channel.
func (p *Player) Play(pcm []byte) *Playback {
	ctx, cancel := context.WithCancel(context.Background())
	pb := &Playback{done: make(chan struct{}), stop: cancel}

	samples := DecodePCM(pcm)

	go func() {
		defer pb.once.Do(func() { close(pb.done) })
		defer cancel()

		samplesPerChunk := int(float64(SampleRate) * chunkAudio.Seconds())

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for offset := 0; offset < len(samples); {
			end := min(offset+samplesPerChunk, len(samples))
			if _, err := p.sink.Write(EncodePCM(samples[offset:end])); err != nil {
				p.logger.Warn("audio playback failed", "error", err)
				pb.mu.Lock()
				pb.err = err
				pb.mu.Unlock()
				return
			}
			offset = end
			if offset >= len(samples) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return pb
}
