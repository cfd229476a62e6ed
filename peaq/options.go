package peaq

import (
	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-peaq/mov"
)

// MeterConfig defines configuration for the quality meter.
type MeterConfig struct {
	core.ProcessorConfig
	Channels       int
	Advanced       bool
	PlaybackLevel  float64
	EHSCorrelation mov.CorrelationMode
}

// MeterOption mutates a MeterConfig.
type MeterOption func(*MeterConfig)

// DefaultMeterConfig returns sensible defaults: the basic version on a
// stereo signal at the 92 dB SPL listening level assumed by BS.1387.
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{
		ProcessorConfig: core.DefaultProcessorConfig(),
		Channels:        2,
		PlaybackLevel:   92,
	}
}

// WithChannels sets the number of channels (1 for mono, 2 for stereo).
func WithChannels(channels int) MeterOption {
	return func(cfg *MeterConfig) {
		if channels > 0 {
			cfg.Channels = channels
		}
	}
}

// WithAdvanced selects the advanced version of the measurement scheme,
// which combines the filterbank ear model with a 55-band FFT model.
func WithAdvanced(advanced bool) MeterOption {
	return func(cfg *MeterConfig) {
		cfg.Advanced = advanced
	}
}

// WithPlaybackLevel sets the assumed playback level of a full-scale
// sine in dB SPL.
func WithPlaybackLevel(levelDB float64) MeterOption {
	return func(cfg *MeterConfig) {
		if levelDB > 0 {
			cfg.PlaybackLevel = levelDB
		}
	}
}

// WithEHSCorrelation selects how the error-harmonic-structure analysis
// prepares its correlation window.
func WithEHSCorrelation(mode mov.CorrelationMode) MeterOption {
	return func(cfg *MeterConfig) {
		cfg.EHSCorrelation = mode
	}
}

// ApplyMeterOptions applies zero or more options to the default config.
func ApplyMeterOptions(opts ...MeterOption) MeterConfig {
	cfg := DefaultMeterConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}
