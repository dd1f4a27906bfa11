package config

import (
	"os"
	"strconv"
	"time"
)

// Config is built once at startup and handed by value into every component.
// Components never read the environment themselves.
type Config struct {
	Port    int
	DataDir string
	DBPath  string

	// Transcription service (whisper-style HTTP API)
	TranscribeURL      string
	TranscribeAPIKey   string
	TranscribeModel    string
	TranscribeFallback string
	TranscribeTimeout  time.Duration

	// Scoring service (chat-completions with strict structured output)
	ScoreURL     string
	ScoreAPIKey  string
	ScoreModel   string
	ScoreTimeout time.Duration

	// Signal analysis
	FFmpegPath    string
	SilenceMinGap time.Duration
	SilenceNoise  float64 // dB threshold for silencedetect

	// Trigger detection
	TriggersEnabled bool
	LexiconDir      string

	// Ethics penalties and pass threshold
	NonFatalDeduction float64
	ClampMin          float64
	FatalSetsFlag     bool
	PassThreshold     float64
}

func Load() Config {
	return Config{
		Port:    envInt("PORT", 8080),
		DataDir: envStr("DATA_DIR", "data"),
		DBPath:  envStr("DB_PATH", "data/callaudit.db"),

		TranscribeURL:      envStr("TRANSCRIBE_URL", "https://api.openai.com/v1/audio/transcriptions"),
		TranscribeAPIKey:   envStr("TRANSCRIBE_API_KEY", ""),
		TranscribeModel:    envStr("TRANSCRIBE_MODEL", "whisper-large-v3"),
		TranscribeFallback: envStr("TRANSCRIBE_FALLBACK_MODEL", "whisper-1"),
		TranscribeTimeout:  envDuration("TRANSCRIBE_TIMEOUT", 5*time.Minute),

		ScoreURL:     envStr("SCORE_URL", "https://api.openai.com/v1/chat/completions"),
		ScoreAPIKey:  envStr("SCORE_API_KEY", ""),
		ScoreModel:   envStr("SCORE_MODEL", "gpt-4o"),
		ScoreTimeout: envDuration("SCORE_TIMEOUT", 90*time.Second),

		FFmpegPath:    envStr("FFMPEG_PATH", "ffmpeg"),
		SilenceMinGap: envDuration("SILENCE_MIN_GAP", 400*time.Millisecond),
		SilenceNoise:  envFloat("SILENCE_NOISE_DB", -30.0),

		TriggersEnabled: envBool("TRIGGERS_ENABLED", true),
		LexiconDir:      envStr("LEXICON_DIR", ""),

		NonFatalDeduction: envFloat("ETHICS_NON_FATAL_DEDUCTION", 1.0),
		ClampMin:          envFloat("ETHICS_CLAMP_MIN", 0.0),
		FatalSetsFlag:     envBool("ETHICS_FATAL_SETS_FLAG", true),
		PassThreshold:     envFloat("PASS_THRESHOLD", 0.6),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
