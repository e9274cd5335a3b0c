package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything needed to drive one session against a SpyServer
// instance. Fields mirror what config.yaml supplies; the corresponding pflag
// overrides (see applyFlagOverrides) win when set explicitly on the command
// line.
type Config struct {
	Server string `yaml:"server"`
	Port   int    `yaml:"port"`

	Mode string `yaml:"mode"` // "iq", "fft", or "both"

	CenterFreq    float64 `yaml:"center_freq"`
	SampleRate    float64 `yaml:"sample_rate"`
	SampleBits    int     `yaml:"sample_bits"`
	Gain          float64 `yaml:"gain"`
	DigitalGain   float64 `yaml:"digital_gain"`
	FFTBins       int     `yaml:"fft_bins"`
	IntegrationS  int     `yaml:"fft_average_seconds"`
	NumSamples    uint64  `yaml:"num_samples"`
	OneShot       bool    `yaml:"oneshot"`
	Compress      bool    `yaml:"compress"`
	SamplesOutput string  `yaml:"samples_outfile"`
	FFTOutput     string  `yaml:"fft_outfile"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	MetricsOn bool   `yaml:"metrics"`
	MetricsAt string `yaml:"metrics_addr"`
}

func defaultConfig() Config {
	return Config{
		Server:        "127.0.0.1",
		Port:          5555,
		Mode:          "iq",
		CenterFreq:    403_000_000,
		SampleRate:    10_000_000,
		SampleBits:    16,
		Gain:          20,
		FFTBins:       32767,
		IntegrationS:  10,
		SamplesOutput: "-",
		FFTOutput:     "log_power.csv",
		LogLevel:      "info",
		LogFormat:     "text",
		MetricsAt:     ":9595",
	}
}

// loadConfig reads path if it exists and merges it over the defaults. A
// missing file is not an error: the defaults (and any flag overrides applied
// by the caller afterward) stand on their own.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("ssclient: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("ssclient: parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Mode != "iq" && c.Mode != "fft" && c.Mode != "both" {
		return fmt.Errorf("ssclient: mode must be one of iq, fft, both (got %q)", c.Mode)
	}
	if c.SampleBits != 8 && c.SampleBits != 16 {
		return fmt.Errorf("ssclient: sample-bits must be 8 or 16 (got %d)", c.SampleBits)
	}
	if c.Mode != "fft" && c.SamplesOutput == c.FFTOutput {
		return fmt.Errorf("ssclient: refusing to write both IQ and FFT data to the same output %q", c.SamplesOutput)
	}
	return nil
}
