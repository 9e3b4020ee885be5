package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Validate] when the corresponding field is zero.
const (
	DefaultSilenceTimeoutMs        = 2000
	DefaultSpeechThreshold         = 0.02
	DefaultSilenceThreshold        = 0.01
	DefaultSettleDelayMs           = 300
	DefaultLanguage                = "en"
	DefaultSessionFlushIntervalSec = 60
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "openai-native", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"stt": {"whisper", "whisper-native"},
	"tts": {"openai", "elevenlabs"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Environment references like ${OPENAI_API_KEY} are expanded before
// decoding, so secrets can stay out of the config file.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for zero-valued voice and progress fields.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; the assistant will not be able to generate responses")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; replies will be text-only")
	}

	// Voice engine settings
	v := &cfg.Voice
	if v.SilenceTimeoutMs == 0 {
		v.SilenceTimeoutMs = DefaultSilenceTimeoutMs
	} else if v.SilenceTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("voice.silence_timeout_ms %d must be positive", v.SilenceTimeoutMs))
	}
	if v.SpeechThreshold == 0 {
		v.SpeechThreshold = DefaultSpeechThreshold
	} else if v.SpeechThreshold < 0 || v.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("voice.speech_threshold %.4f is out of range [0, 1]", v.SpeechThreshold))
	}
	if v.SilenceThreshold == 0 {
		v.SilenceThreshold = DefaultSilenceThreshold
	} else if v.SilenceThreshold < 0 || v.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("voice.silence_threshold %.4f is out of range [0, 1]", v.SilenceThreshold))
	}
	if v.SilenceThreshold > v.SpeechThreshold {
		errs = append(errs, fmt.Errorf("voice.silence_threshold %.4f must not exceed voice.speech_threshold %.4f", v.SilenceThreshold, v.SpeechThreshold))
	}
	if v.SettleDelayMs == 0 {
		v.SettleDelayMs = DefaultSettleDelayMs
	} else if v.SettleDelayMs < 0 {
		errs = append(errs, fmt.Errorf("voice.settle_delay_ms %d must be positive", v.SettleDelayMs))
	}
	if v.Language == "" {
		v.Language = DefaultLanguage
	}
	if v.Speaker.SpeedFactor != 0 {
		if v.Speaker.SpeedFactor < 0.5 || v.Speaker.SpeedFactor > 2.0 {
			errs = append(errs, fmt.Errorf("voice.speaker.speed_factor %.2f is out of range [0.5, 2.0]", v.Speaker.SpeedFactor))
		}
	}

	// Speaker provider ↔ TTS provider cross-validation
	if v.Speaker.Provider != "" && cfg.Providers.TTS.Name != "" && v.Speaker.Provider != cfg.Providers.TTS.Name {
		slog.Warn("speaker voice provider does not match configured TTS provider",
			"speaker_provider", v.Speaker.Provider,
			"tts_provider", cfg.Providers.TTS.Name,
		)
	}

	// Progress store
	p := &cfg.Progress
	if p.Backend == "" {
		p.Backend = ProgressBackendFile
	} else if !p.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("progress.backend %q is invalid; valid values: file, sqlite, postgres", p.Backend))
	}
	switch p.Backend {
	case ProgressBackendFile, ProgressBackendSQLite:
		if p.Path == "" {
			errs = append(errs, fmt.Errorf("progress.path is required when progress.backend is %q", p.Backend))
		}
	case ProgressBackendPostgres:
		if p.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("progress.postgres_dsn is required when progress.backend is postgres"))
		}
	}
	if p.SessionFlushIntervalSec == 0 {
		p.SessionFlushIntervalSec = DefaultSessionFlushIntervalSec
	} else if p.SessionFlushIntervalSec < 0 {
		errs = append(errs, fmt.Errorf("progress.session_flush_interval_sec %d must be positive", p.SessionFlushIntervalSec))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
