package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/user/interview-coach/internal/audio"
	"github.com/user/interview-coach/internal/config"
	"github.com/user/interview-coach/internal/heuristics"
	"github.com/user/interview-coach/internal/interview"
	"github.com/user/interview-coach/internal/observe"
	"github.com/user/interview-coach/internal/question/gemini"
	"github.com/user/interview-coach/internal/server"
	"github.com/user/interview-coach/internal/session"
	"github.com/user/interview-coach/internal/stt"
	"github.com/user/interview-coach/internal/stt/deepgram"
	"github.com/user/interview-coach/internal/stt/vosk"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interview server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().Str("addr", cfg.ListenAddr).Str("stt_backend", cfg.STTBackend).Msg("Starting interview coach")

	shutdownMetrics, err := observe.InitProvider()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	metrics := observe.DefaultMetrics()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	vocab, err := loadVocabulary(cfg)
	if err != nil {
		return err
	}

	// A missing engine is fatal; there is nothing to interview with.
	transcriber, err := newTranscriber(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("stt_backend", cfg.STTBackend).Msg("Failed to create transcriber")
	}
	defer transcriber.Close()

	deps := interview.Deps{
		Registry:    session.NewMemoryRegistry(),
		Store:       st,
		Decoder:     audio.NewDecoder(audio.WithFFmpeg(cfg.FFmpegPath, cfg.FFmpegTimeout)),
		NewVAD:      newVAD(cfg),
		Engine:      heuristics.NewEngine(engineConfig(cfg), vocab),
		Transcriber: transcriber,
		Metrics:     metrics,
		PoolOptions: []stt.PoolOption{
			stt.WithWorkers(cfg.STTWorkers),
			stt.WithCapacity(cfg.QueueCapacity),
		},
	}

	if cfg.GenAIAPIKey != "" {
		provider, err := gemini.NewGeminiProvider(cfg.GenAIAPIKey, cfg.GenAIModel)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini unavailable, using fallback questions")
		} else {
			defer provider.Close()
			deps.Questions = provider
		}
	} else {
		log.Info().Msg("GENAI_API_KEY not set, using fallback questions")
	}

	orch := interview.New(interviewConfig(cfg), deps)
	srv := server.New(cfg.ListenAddr, orch)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if err := orch.Pool().Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		return orch.RunPauseMonitor(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Listening")
		return srv.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	orch.Pool().Stop()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := shutdownMetrics(flushCtx); ferr != nil {
		log.Warn().Err(ferr).Msg("Failed to flush metrics")
	}

	if err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return err
	}
	log.Info().Msg("Server stopped gracefully")
	return nil
}

func newTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	switch cfg.STTBackend {
	case "deepgram":
		log.Info().Str("model", cfg.DeepgramModel).Msg("Using Deepgram transcription")
		return deepgram.NewDeepgramTranscriber(cfg.DeepgramAPIKey, cfg.DeepgramModel), nil
	default:
		t, err := vosk.NewVoskTranscriber(cfg.VoskModelPath, audio.SampleRate)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// newVAD builds one classifier per session; webrtc detectors carry state.
func newVAD(cfg *config.Config) func() audio.VAD {
	ccfg := audio.ClassifierConfig{
		Aggressiveness:  cfg.VADAggressiveness,
		MinSpeechEnergy: cfg.MinSpeechEnergy,
		EnergyThreshold: cfg.EnergyThreshold,
	}
	return func() audio.VAD { return audio.NewClassifier(ccfg) }
}

func engineConfig(cfg *config.Config) heuristics.Config {
	ec := heuristics.DefaultConfig()
	ec.FillerCooldown = cfg.FillerCooldown
	ec.FillerDedup = cfg.FillerDedup
	ec.LongPause = cfg.LongPause
	ec.PauseCooldown = cfg.PauseCooldown
	ec.RepetitionRatio = cfg.RepetitionRatio
	ec.RepetitionCooldown = cfg.RepetitionCooldown
	ec.LengthCap = cfg.LengthCap
	ec.LengthCooldown = cfg.LengthCooldown
	return ec
}

func interviewConfig(cfg *config.Config) interview.Config {
	ic := interview.DefaultConfig()
	ic.MaxQuestions = cfg.MaxQuestions
	ic.FinalizeWait = cfg.FinalizeWait
	ic.Segmenter = audio.SegmenterConfig{
		MaxSegment:      cfg.SegmentMax,
		MinSegment:      cfg.SegmentMin,
		SilenceTail:     cfg.SilenceTail,
		PreviewMin:      cfg.PartialMinDur,
		PreviewInterval: cfg.PartialInterval,
		PreviewWindow:   cfg.PartialWindow,
	}
	return ic
}
