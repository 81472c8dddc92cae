package main

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/dagargo/overwitch-go/resampler"
	"github.com/dagargo/overwitch-go/wire"
)

// settings holds the demo's runtime configuration, bound from flags
// and an optional config file through viper.
type settings struct {
	ProductID            uint16  `mapstructure:"product_id"`
	SampleRate           float64 `mapstructure:"sample_rate"`
	BufferSize           int     `mapstructure:"buffer_size"`
	BlocksPerTransfer    int     `mapstructure:"blocks_per_transfer"`
	UsbTransferTimeoutMs int     `mapstructure:"usb_timeout_ms"`
	ResamplerQuality     int     `mapstructure:"quality"`
	ReportPeriodSeconds  int     `mapstructure:"report_period"`
	Simulate             bool    `mapstructure:"simulate"`
	SimulatedJitterUs    int     `mapstructure:"jitter_us"`
	RecordPath           string  `mapstructure:"record"`
	Debug                bool    `mapstructure:"debug"`
}

func initConfigDefaults() {
	viper.SetDefault("product_id", 0x000c) // Digitakt
	viper.SetDefault("sample_rate", 48000.0)
	viper.SetDefault("buffer_size", 128)
	viper.SetDefault("blocks_per_transfer", wire.DefaultBlocksPerTransfer)
	viper.SetDefault("usb_timeout_ms", 10)
	viper.SetDefault("quality", int(resampler.QualityMedium))
	viper.SetDefault("report_period", 2)
	viper.SetDefault("simulate", true)
	viper.SetDefault("jitter_us", 0)
	viper.SetDefault("record", "")
	viper.SetDefault("debug", false)
}

// getSettings unmarshals and validates the current viper state.
func getSettings() (*settings, error) {
	var s settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

func (s *settings) validate() error {
	var errs []error
	if _, ok := wire.LookupDevice(s.ProductID); !ok {
		errs = append(errs, fmt.Errorf("product_id 0x%04x is not a recognised Overbridge device", s.ProductID))
	}
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.BufferSize < 16 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 16 and 8192, got %d", s.BufferSize))
	}
	if err := wire.ValidateBlocksPerTransfer(s.BlocksPerTransfer); err != nil {
		errs = append(errs, err)
	}
	if s.UsbTransferTimeoutMs < 0 || s.UsbTransferTimeoutMs > 25 {
		errs = append(errs, fmt.Errorf("usb_timeout_ms must be between 0 and 25, got %d", s.UsbTransferTimeoutMs))
	}
	if s.ResamplerQuality < int(resampler.QualityZeroOrderHold) || s.ResamplerQuality > int(resampler.QualityBest) {
		errs = append(errs, fmt.Errorf("quality must be between 0 and 4, got %d", s.ResamplerQuality))
	}
	if s.ReportPeriodSeconds < 0 {
		errs = append(errs, errors.New("report_period must not be negative"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
