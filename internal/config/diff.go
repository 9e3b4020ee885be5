package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	VoiceChanged    bool      // true if any voice engine setting changed
	Voice           VoiceDiff // per-field voice diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// VoiceDiff describes which voice engine settings changed between two configs.
type VoiceDiff struct {
	SilenceTimeoutChanged bool
	ThresholdsChanged     bool
	ContinuousChanged     bool
	SettleDelayChanged    bool
	SpeakerChanged        bool
	SystemPromptChanged   bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ov, nv := &old.Voice, &new.Voice

	if ov.SilenceTimeoutMs != nv.SilenceTimeoutMs {
		d.Voice.SilenceTimeoutChanged = true
	}
	if ov.SpeechThreshold != nv.SpeechThreshold || ov.SilenceThreshold != nv.SilenceThreshold {
		d.Voice.ThresholdsChanged = true
	}
	if ov.Continuous != nv.Continuous {
		d.Voice.ContinuousChanged = true
	}
	if ov.SettleDelayMs != nv.SettleDelayMs {
		d.Voice.SettleDelayChanged = true
	}
	if ov.Speaker != nv.Speaker {
		d.Voice.SpeakerChanged = true
	}
	if ov.SystemPrompt != nv.SystemPrompt {
		d.Voice.SystemPromptChanged = true
	}

	d.VoiceChanged = d.Voice.SilenceTimeoutChanged ||
		d.Voice.ThresholdsChanged ||
		d.Voice.ContinuousChanged ||
		d.Voice.SettleDelayChanged ||
		d.Voice.SpeakerChanged ||
		d.Voice.SystemPromptChanged

	return d
}
