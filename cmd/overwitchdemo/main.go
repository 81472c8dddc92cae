package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dagargo/overwitch-go/core"
	"github.com/dagargo/overwitch-go/helpers/wav"
	"github.com/dagargo/overwitch-go/resampler"
	"github.com/dagargo/overwitch-go/usb"
	"github.com/dagargo/overwitch-go/wire"
)

var rootCmd = &cobra.Command{
	Use:   "overwitchdemo",
	Short: "Drive a simulated Overbridge device through a core.Core session",
	Long: `overwitchdemo opens a simulated Elektron Overbridge device, runs
its DLL/resampler startup sequence to convergence, and reports the
negotiated ratios and target delay once the resampler reaches Run,
driving the core on a host-buffer-period ticker and standing in for
the per-cycle calls a real host audio adapter would make against
package core.`,
	RunE: runDemo,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "overwitchdemo: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func init() {
	cobra.OnInitialize(initConfigDefaults)

	rootCmd.PersistentFlags().Uint16P("product", "p", 0x000c, "Overbridge product ID (default: Digitakt)")
	rootCmd.PersistentFlags().Float64P("rate", "r", 48000, "host sample rate in Hz")
	rootCmd.PersistentFlags().IntP("buffer", "b", 128, "host process buffer size in frames")
	rootCmd.PersistentFlags().Int("blocks", wire.DefaultBlocksPerTransfer, "wire blocks per USB transfer")
	rootCmd.PersistentFlags().Int("quality", int(resampler.QualityMedium), "resampler quality, 0 (zero-order hold) to 4 (best)")
	rootCmd.PersistentFlags().Int("report", 2, "status report period in seconds")
	rootCmd.PersistentFlags().Int("jitter-us", 0, "simulated fixed USB transfer latency in microseconds")
	rootCmd.PersistentFlags().String("record", "", "record the o2h audio stream to the given WAV file")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug logging")

	cobra.CheckErr(viper.BindPFlag("product_id", rootCmd.PersistentFlags().Lookup("product")))
	cobra.CheckErr(viper.BindPFlag("sample_rate", rootCmd.PersistentFlags().Lookup("rate")))
	cobra.CheckErr(viper.BindPFlag("buffer_size", rootCmd.PersistentFlags().Lookup("buffer")))
	cobra.CheckErr(viper.BindPFlag("blocks_per_transfer", rootCmd.PersistentFlags().Lookup("blocks")))
	cobra.CheckErr(viper.BindPFlag("quality", rootCmd.PersistentFlags().Lookup("quality")))
	cobra.CheckErr(viper.BindPFlag("report_period", rootCmd.PersistentFlags().Lookup("report")))
	cobra.CheckErr(viper.BindPFlag("jitter_us", rootCmd.PersistentFlags().Lookup("jitter-us")))
	cobra.CheckErr(viper.BindPFlag("record", rootCmd.PersistentFlags().Lookup("record")))
	cobra.CheckErr(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
}

// wallClockContext is a core.Context backed by the real monotonic clock,
// with both audio directions enabled and no real-time priority support.
type wallClockContext struct {
	core.NoRTPriority
	start time.Time
}

func (c *wallClockContext) Options() core.Options {
	return core.OptO2HAudio | core.OptH2OAudio
}

func (c *wallClockContext) GetTime() uint64 {
	return uint64(time.Since(c.start).Microseconds())
}

// newSimulatedTransport builds a MockTransport that stands in for one
// attached device: FillIn synthesizes a 440 Hz tone on every output
// track so ReadAudio has something other than silence to pull, and
// DrainOut discards whatever the host writes.
func newSimulatedTransport(device wire.Device, sampleRate float64, blocksPerTransfer int, jitter time.Duration) *usb.MockTransport {
	tr := usb.NewMockTransport(0x83, 0x03, "OVERWITCHDEMO-0001")
	tr.Latency = jitter

	frames := blocksPerTransfer * wire.FramesPerBlock
	channels := device.Outputs()
	var phase float64

	tr.FillIn = func(buf []byte) {
		samples := make([]float32, frames*channels)
		step := 2 * math.Pi * 440 / sampleRate
		for f := 0; f < frames; f++ {
			phase += step
			v := float32(0.2 * math.Sin(phase))
			for ch := 0; ch < channels; ch++ {
				samples[f*channels+ch] = v
			}
		}
		wire.EncodeBlocks(buf, samples, device.OutputTracks, blocksPerTransfer, 0, wire.HeaderIn)
	}
	tr.DrainOut = func(buf []byte) {}
	return tr
}

func runDemo(cmd *cobra.Command, args []string) error {
	s, err := getSettings()
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr)
	if s.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	device, _ := wire.LookupDevice(s.ProductID)
	logger.Info("simulating device", "name", device.Name, "product_id", fmt.Sprintf("0x%04x", s.ProductID))

	transport := newSimulatedTransport(device, s.SampleRate, s.BlocksPerTransfer, time.Duration(s.SimulatedJitterUs)*time.Microsecond)
	ctx := &wallClockContext{start: time.Now()}

	cfg := core.Config{
		BlocksPerTransfer:    s.BlocksPerTransfer,
		UsbTransferTimeoutMs: s.UsbTransferTimeoutMs,
		ResamplerQuality:     resampler.Quality(s.ResamplerQuality),
		ReportPeriodSeconds:  s.ReportPeriodSeconds,
	}

	c, err := core.NewCore(core.WithTransport(transport), core.WithContext(ctx), core.WithConfig(cfg), core.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("construct core: %w", err)
	}

	if err := c.Start(wire.ElektronVendorID, s.ProductID, s.SampleRate, s.BufferSize); err != nil {
		return fmt.Errorf("start core: %w", err)
	}
	defer func() {
		c.Stop()
		c.Wait()
		c.Destroy()
	}()

	sigCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		v, ok := <-sig
		if ok {
			logger.Info("received signal, shutting down", "signal", v)
			cancel()
		}
	}()

	var reachedRun atomic.Bool
	period := time.Duration(float64(s.BufferSize) / s.SampleRate * float64(time.Second))
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	o2hChannels := c.O2hFrameSize() / 4
	h2oChannels := c.H2oFrameSize() / 4
	out := make([]float32, s.BufferSize*max(o2hChannels, 1))
	in := make([]float32, s.BufferSize*max(h2oChannels, 1))

	var recorder *wav.FloatWriter
	if s.RecordPath != "" {
		f, err := os.Create(s.RecordPath)
		if err != nil {
			return fmt.Errorf("create record file: %w", err)
		}
		defer f.Close()
		recorder, err = wav.NewFloatWriter(f, uint32(s.SampleRate), uint16(o2hChannels))
		if err != nil {
			return fmt.Errorf("init wav recorder: %w", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Warn("failed to finalize wav recording", "err", err)
			}
		}()
		logger.Info("recording o2h audio", "path", s.RecordPath)
	}

	logger.Info("waiting for resampler convergence")
	for {
		select {
		case <-sigCtx.Done():
			return nil
		case <-ticker.C:
			c.ComputeRatios(ctx.GetTime())
			c.ReadAudio(out)
			c.WriteAudio(in)

			if recorder != nil {
				if err := recorder.Write(out); err != nil {
					logger.Warn("failed to record audio", "err", err)
				}
			}

			st := c.State()
			if st.Status == resampler.Run && reachedRun.CompareAndSwap(false, true) {
				logger.Info("resampler reached run",
					"o2h_ratio", st.O2hRatio, "h2o_ratio", st.H2oRatio,
					"target_delay_frames", st.TargetDelayFrames)
			}
		}
	}
}
