package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Server
	ListenAddr string
	DBPath     string

	// STT Backend
	STTBackend string // "vosk" or "deepgram"

	// Vosk settings
	VoskModelPath string

	// Deepgram settings
	DeepgramAPIKey string
	DeepgramModel  string

	// Gemini settings (question generation, optional)
	GenAIAPIKey string
	GenAIModel  string

	// Decoder
	FFmpegPath    string
	FFmpegTimeout time.Duration

	// VAD and segmentation
	VADAggressiveness int
	SegmentMax        time.Duration
	SegmentMin        time.Duration
	SilenceTail       time.Duration
	PartialMinDur     time.Duration
	PartialInterval   time.Duration
	PartialWindow     time.Duration
	MinSpeechEnergy   float64
	EnergyThreshold   float64

	// Live heuristics
	LongPause          time.Duration
	PauseCooldown      time.Duration
	FillerCooldown     time.Duration
	FillerDedup        time.Duration
	RepetitionRatio    float64
	RepetitionCooldown time.Duration
	LengthCap          time.Duration
	LengthCooldown     time.Duration
	FillerVocabFile    string

	// Transcription queue
	QueueCapacity int
	STTWorkers    int

	// Interview flow
	MaxQuestions int
	FinalizeWait time.Duration

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables only")
	}

	cfg := &Config{
		ListenAddr: getEnvOrDefault("LISTEN_ADDR", ":5000"),
		DBPath:     getEnvOrDefault("DB_PATH", "./data/interview_iq.db"),

		STTBackend:    getEnvOrDefault("STT_BACKEND", "vosk"),
		VoskModelPath: getEnvOrDefault("VOSK_MODEL_PATH", "./models/vosk/en"),

		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:  getEnvOrDefault("DEEPGRAM_MODEL", "nova-2"),

		GenAIAPIKey: os.Getenv("GENAI_API_KEY"),
		GenAIModel:  getEnvOrDefault("GENAI_MODEL", "gemini-2.5-flash"),

		FFmpegPath:    getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFmpegTimeout: getSecondsOrDefault("FFMPEG_TIMEOUT_SEC", 10),

		VADAggressiveness: getIntEnvOrDefault("IQ_VAD_AGGR", 2),
		SegmentMax:        getSecondsOrDefault("IQ_SEGMENT_MAX", 1.25),
		SegmentMin:        getSecondsOrDefault("IQ_SEGMENT_MIN", 0.30),
		SilenceTail:       time.Duration(getIntEnvOrDefault("IQ_SILENCE_TAIL_MS", 450)) * time.Millisecond,
		PartialMinDur:     getSecondsOrDefault("IQ_PARTIAL_MIN_DUR", 0.35),
		PartialInterval:   getSecondsOrDefault("IQ_PARTIAL_EMIT_INTERVAL", 0.5),
		PartialWindow:     getSecondsOrDefault("IQ_PARTIAL_WINDOW", 1.2),
		MinSpeechEnergy:   getFloatEnvOrDefault("IQ_MIN_SPEECH_ENERGY", 180),
		EnergyThreshold:   getFloatEnvOrDefault("IQ_ENERGY_THRESHOLD", 320),

		LongPause:          getSecondsOrDefault("IQ_LONG_PAUSE_SEC", 10),
		PauseCooldown:      getSecondsOrDefault("IQ_PAUSE_COOLDOWN", 3),
		FillerCooldown:     getSecondsOrDefault("IQ_FILLER_COOLDOWN", 2),
		FillerDedup:        getSecondsOrDefault("IQ_FILLER_DEDUP_SEC", 2.5),
		RepetitionRatio:    getFloatEnvOrDefault("IQ_REPETITION_UNIQ_RATIO", 0.55),
		RepetitionCooldown: getSecondsOrDefault("IQ_REPETITION_COOLDOWN", 8),
		LengthCap:          getSecondsOrDefault("IQ_LENGTH_CAP_SEC", 40),
		LengthCooldown:     getSecondsOrDefault("IQ_LENGTH_COOLDOWN", 20),
		FillerVocabFile:    os.Getenv("FILLER_VOCAB_FILE"),

		QueueCapacity: getIntEnvOrDefault("IQ_QUEUE_CAPACITY", 64),
		STTWorkers:    getIntEnvOrDefault("IQ_STT_WORKERS", 1),

		MaxQuestions: getIntEnvOrDefault("IQ_MAX_QUESTIONS", 10),
		FinalizeWait: getSecondsOrDefault("IQ_FINALIZE_WAIT_SEC", 2),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.STTBackend != "vosk" && c.STTBackend != "deepgram" {
		return fmt.Errorf("STT_BACKEND must be 'vosk' or 'deepgram'")
	}

	if c.STTBackend == "deepgram" && c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required when using deepgram backend")
	}

	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		return fmt.Errorf("IQ_VAD_AGGR must be between 0 and 3")
	}

	if c.SegmentMin <= 0 || c.SegmentMax <= c.SegmentMin {
		return fmt.Errorf("IQ_SEGMENT_MAX (%s) must be greater than IQ_SEGMENT_MIN (%s)", c.SegmentMax, c.SegmentMin)
	}

	if c.RepetitionRatio <= 0 || c.RepetitionRatio > 1 {
		return fmt.Errorf("IQ_REPETITION_UNIQ_RATIO must be in (0, 1]")
	}

	if c.QueueCapacity <= 0 {
		return fmt.Errorf("IQ_QUEUE_CAPACITY must be positive")
	}

	if c.STTWorkers <= 0 {
		return fmt.Errorf("IQ_STT_WORKERS must be positive")
	}

	if c.MaxQuestions <= 0 {
		return fmt.Errorf("IQ_MAX_QUESTIONS must be positive")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-integer config value")
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring non-numeric config value")
	}
	return defaultValue
}

// getSecondsOrDefault reads a (possibly fractional) number of seconds.
func getSecondsOrDefault(key string, defaultSeconds float64) time.Duration {
	secs := getFloatEnvOrDefault(key, defaultSeconds)
	return time.Duration(secs * float64(time.Second))
}
