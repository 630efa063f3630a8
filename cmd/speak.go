package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iromrakesh7-afk/Kanglei-ai/internal/audio"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/config"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/gemini"
	"github.com/iromrakesh7-afk/Kanglei-ai/internal/log"
)

const speakTimeout = 2 * time.Minute

var speakOut string

var speakCmd = &cobra.Command{
	Use:   "speak [text]",
	Short: "Synthesize speech for the given text",
	Long: `Synthesize the given text with the configured TTS voice.

By default the audio is written as a WAV file. With --out - the raw PCM
stream is paced to stdout in realtime chunks, suitable for piping:

  kanglei speak --out - "Hello" | aplay -f S16_LE -r 24000 -c 1`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runSpeak(strings.Join(args, " "))
	},
}

func init() {
	speakCmd.Flags().StringVar(&speakOut, "out", "speech.wav", "Output WAV file, or - for paced PCM on stdout")
	rootCmd.AddCommand(speakCmd)
}

func runSpeak(text string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
	defer cancel()

	client, err := gemini.New(ctx, gemini.Config{
		APIKey: cfg.APIKey,
		Logger: logger,
		Models: gemini.Models{
			Chat:   cfg.ChatModel,
			Search: cfg.SearchModel,
			Image:  cfg.ImageModel,
			TTS:    cfg.TTSModel,
		},
		Voice: cfg.Voice,
	})
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}

	pcm, err := client.SpeakText(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesizing speech: %w", err)
	}
	if len(pcm) == 0 {
		return errors.New("model returned no audio")
	}

	if speakOut == "-" {
		player := audio.NewPlayer(os.Stdout, logger)
		playback := player.Play(pcm)
		<-playback.Done()
		if err := playback.Err(); err != nil {
			return fmt.Errorf("streaming audio: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(speakOut, audio.WAV(pcm), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", speakOut, err)
	}
	logger.Info("audio written", "path", speakOut, "bytes", len(pcm))
	return nil
}
