package core

import (
	"github.com/dagargo/overwitch-go/resampler"
	"github.com/dagargo/overwitch-go/wire"
)

// Config carries the core's construction-time tunables, each bound to
// an enforced range.
type Config struct {
	// BlocksPerTransfer (B) is the number of wire blocks batched into
	// one USB interrupt transfer. Must be in [2, 32].
	BlocksPerTransfer int
	// UsbTransferTimeoutMs is the interrupt transfer timeout, in
	// milliseconds, in [0, 25]; 0 means infinite.
	UsbTransferTimeoutMs int
	// ResamplerQuality selects the sinc converter's window width, in
	// [0, 4] (0 = zero-order hold, 4 = best).
	ResamplerQuality resampler.Quality
	// ReportPeriodSeconds is validated and passed to the resampler
	// through resampler.WithReportPeriod; the resampler stores it but
	// does not emit periodic status lines.
	ReportPeriodSeconds int
}

// DefaultConfig returns the module's documented defaults.
func DefaultConfig() Config {
	return Config{
		BlocksPerTransfer:    wire.DefaultBlocksPerTransfer,
		UsbTransferTimeoutMs: 10,
		ResamplerQuality:     resampler.QualityMedium,
		ReportPeriodSeconds:  2,
	}
}

// Validate enforces every range invariant on the configuration knobs.
// A violation is always reported as Generic: blocks_per_transfer of 64
// or 1 makes Start fail with Generic, while 32 and 2 are accepted.
// NewCore does not call Validate; Start does.
func (c Config) Validate() error {
	if err := wire.ValidateBlocksPerTransfer(c.BlocksPerTransfer); err != nil {
		return Generic
	}
	if c.UsbTransferTimeoutMs < 0 || c.UsbTransferTimeoutMs > 25 {
		return Generic
	}
	if c.ResamplerQuality < resampler.QualityZeroOrderHold || c.ResamplerQuality > resampler.QualityBest {
		return Generic
	}
	if c.ReportPeriodSeconds < 0 {
		return Generic
	}
	return nil
}
