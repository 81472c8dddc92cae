package core

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dagargo/overwitch-go/dll"
	"github.com/dagargo/overwitch-go/engine"
	"github.com/dagargo/overwitch-go/resampler"
	"github.com/dagargo/overwitch-go/ringbuf"
	"github.com/dagargo/overwitch-go/usb"
	"github.com/dagargo/overwitch-go/wire"
)

// ringMultiplier sizes each ring buffer as a multiple of one USB
// transfer's worth of float audio, generous enough to absorb scheduling
// jitter between the audio thread and the host process callback without
// ever overflowing in steady state.
const ringMultiplier = 16

// deviceSampleRate is the fixed rate every Overbridge device streams at,
// independent of the host's sample rate.
const deviceSampleRate float64 = 48000

// CoreOption configures a Core at construction time, in the same shape
// as session.ConfigFn: each option may itself fail (e.g. a nil
// dependency), so construction returns an error rather than panicking.
type CoreOption func(*Core) error

// WithTransport sets the usb.Transport the engine drives. Required.
func WithTransport(t usb.Transport) CoreOption {
	return func(c *Core) error {
		if t == nil {
			return errors.New("core: nil transport")
		}
		c.transport = t
		return nil
	}
}

// WithContext sets the host adapter Context. Required.
func WithContext(ctx Context) CoreOption {
	return func(c *Core) error {
		if ctx == nil {
			return errors.New("core: nil context")
		}
		c.ctx = ctx
		return nil
	}
}

// WithConfig overrides the default Config.
func WithConfig(cfg Config) CoreOption {
	return func(c *Core) error {
		c.cfg = cfg
		return nil
	}
}

// WithLogger sets the structured logger passed through to the engine
// and resampler. A nil logger (the default) discards output.
func WithLogger(l *log.Logger) CoreOption {
	return func(c *Core) error {
		c.log = l
		return nil
	}
}

// State is the core's user-visible status snapshot, combining the
// resampler's startup/run phase with the ratios and target delay
// published every ComputeRatios cycle.
type State struct {
	Status            resampler.State
	O2hRatio          float64
	H2oRatio          float64
	TargetDelayFrames float64
}

// Core is the composite object a host audio adapter drives: one USB
// transport, one recognised device, one Engine, one Resampler, and the
// pair of ring buffers connecting them. SetBufferSize and SetSampleRate
// change the host parameters of a started session; after Destroy the
// same Core may be Start-ed again.
type Core struct {
	log       *log.Logger
	transport usb.Transport
	ctx       Context
	cfg       Config

	mu         sync.Mutex
	started    bool
	device     wire.Device
	sampleRate float64
	bufSize    int

	o2h, h2o *ringbuf.Ring
	eng      *engine.Engine
	rs       *resampler.Resampler
}

// NewCore applies opts in order and returns the configured Core. Start
// performs all device- and configuration-dependent validation; NewCore
// only wires together the pieces supplied by opts.
func NewCore(opts ...CoreOption) (*Core, error) {
	c := &Core{cfg: DefaultConfig()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.transport == nil {
		return nil, errors.New("core: WithTransport is required")
	}
	if c.ctx == nil {
		return nil, errors.New("core: WithContext is required")
	}
	if c.log == nil {
		c.log = log.New(io.Discard)
	}
	return c, nil
}

// Start validates configuration and the requested device, allocates the
// ring buffers and DLL, and launches the engine's audio thread. On any
// error, Start leaves no side effects: no rings, DLL, engine, or
// resampler are retained, and the transport is not opened.
func (c *Core) Start(vendorID, productID uint16, sampleRate float64, bufSize int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("core: already started")
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	opts := c.ctx.Options()
	if !opts.Has(OptO2HAudio) && !opts.Has(OptH2OAudio) {
		return Generic
	}

	device, ok := wire.LookupDevice(productID)
	if !ok {
		return UsbDeviceNotFound
	}

	frames := c.cfg.BlocksPerTransfer * wire.FramesPerBlock
	o2hRingBytes := frames * device.Outputs() * 4 * ringMultiplier
	h2oRingBytes := frames * device.Inputs() * 4 * ringMultiplier
	o2h := ringbuf.New(o2hRingBytes)
	h2o := ringbuf.New(h2oRingBytes)

	dllDevice := dll.NewDeviceSide(deviceSampleRate, uint32(frames))

	eng := engine.NewEngine(c.transport, device, c.cfg.BlocksPerTransfer,
		engine.WithLogger(c.log),
		engine.WithTransferTimeout(time.Duration(c.cfg.UsbTransferTimeoutMs)*time.Millisecond),
		engine.WithDeviceSide(dllDevice),
		engine.WithRings(o2h, h2o),
		engine.WithClock(c.ctx.GetTime),
	)
	eng.SetDirectionsEnabled(opts.Has(OptO2HAudio), opts.Has(OptH2OAudio))

	rs := resampler.NewResampler(eng, o2h, h2o, resampler.Config{
		HostBufSize:             bufSize,
		HostSampleRate:          sampleRate,
		DeviceSampleRate:        deviceSampleRate,
		DeviceFramesPerTransfer: uint32(frames),
		Quality:                 c.cfg.ResamplerQuality,
	}, resampler.WithLogger(c.log), resampler.WithReportPeriod(c.cfg.ReportPeriodSeconds))

	if err := eng.Start(vendorID, productID); err != nil {
		return translateUsbErr(err)
	}

	c.device = device
	c.sampleRate = sampleRate
	c.bufSize = bufSize
	c.o2h, c.h2o = o2h, h2o
	c.eng, c.rs = eng, rs
	c.started = true
	return nil
}

// translateUsbErr maps a usb.Transport sentinel error to the core's ErrT
// taxonomy, falling back to UsbOpen for anything unrecognised.
func translateUsbErr(err error) error {
	switch {
	case errors.Is(err, usb.ErrDeviceNotFound):
		return UsbDeviceNotFound
	case errors.Is(err, usb.ErrSetConfigFailed):
		return UsbSetConfig
	case errors.Is(err, usb.ErrClaimInterface):
		return UsbClaimIf
	case errors.Is(err, usb.ErrSetAltSetting):
		return UsbSetAlt
	case errors.Is(err, usb.ErrClearHalt):
		return UsbClearEp
	case errors.Is(err, usb.ErrTransferSubmit):
		return UsbPrepareTransfer
	case errors.Is(err, usb.ErrOpenFailed):
		return UsbOpen
	default:
		return fmt.Errorf("%w: %v", UsbOpen, err)
	}
}

// ComputeRatios, ReadAudio, and WriteAudio are the three per-cycle host
// entry points, delegated straight to the resampler once Start has run.
func (c *Core) ComputeRatios(now uint64) {
	if c.rs == nil {
		return
	}
	c.rs.ComputeRatios(now, nil)
}

func (c *Core) ReadAudio(out []float32) {
	if c.rs == nil {
		return
	}
	c.rs.ReadAudio(out)
}

func (c *Core) WriteAudio(in []float32) {
	if c.rs == nil {
		return
	}
	c.rs.WriteAudio(in)
}

// SetBufferSize changes the host buffer size. Honoured only between
// process cycles: the caller must not be concurrently calling
// ComputeRatios/ReadAudio/WriteAudio on another goroutine while this
// runs. It requests the engine drain and reset its ring buffers and
// reinitialises the resampler's DLL and converters for the new size.
func (c *Core) SetBufferSize(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return errors.New("core: not started")
	}
	c.bufSize = n
	c.eng.RequestClear()
	c.rs.Reset(resampler.Config{
		HostBufSize:             n,
		HostSampleRate:          c.sampleRate,
		DeviceSampleRate:        deviceSampleRate,
		DeviceFramesPerTransfer: uint32(c.cfg.BlocksPerTransfer * wire.FramesPerBlock),
		Quality:                 c.cfg.ResamplerQuality,
	})
	return nil
}

// SetSampleRate changes the host sample rate, with the same
// between-cycles contract as SetBufferSize.
func (c *Core) SetSampleRate(hz float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return errors.New("core: not started")
	}
	c.sampleRate = hz
	c.eng.RequestClear()
	c.rs.Reset(resampler.Config{
		HostBufSize:             c.bufSize,
		HostSampleRate:          hz,
		DeviceSampleRate:        deviceSampleRate,
		DeviceFramesPerTransfer: uint32(c.cfg.BlocksPerTransfer * wire.FramesPerBlock),
		Quality:                 c.cfg.ResamplerQuality,
	})
	return nil
}

// Stop requests the engine's audio thread exit after its next
// completion pump.
func (c *Core) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eng != nil {
		c.eng.Stop()
	}
}

// Wait blocks until the audio thread has exited and the transport has
// been closed.
func (c *Core) Wait() {
	c.mu.Lock()
	eng := c.eng
	c.mu.Unlock()
	if eng != nil {
		eng.Wait()
	}
}

// Destroy stops and waits for the engine, then releases the Core's
// device-bound state. After Destroy, Start may be called again to begin
// a fresh session.
func (c *Core) Destroy() error {
	c.Stop()
	c.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eng, c.rs, c.o2h, c.h2o = nil, nil, nil, nil
	c.started = false
	return nil
}

// O2hFrameSize returns the byte size of one decoded o2h (device-to-host)
// float32 frame.
func (c *Core) O2hFrameSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ringbuf.FloatFrameBytes(c.device.Outputs())
}

// H2oFrameSize returns the byte size of one decoded h2o (host-to-device)
// float32 frame.
func (c *Core) H2oFrameSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ringbuf.FloatFrameBytes(c.device.Inputs())
}

// SampleRate returns the host sample rate the core was last started or
// reset with.
func (c *Core) SampleRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleRate
}

// BufSize returns the host process buffer size, in frames.
func (c *Core) BufSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bufSize
}

// TargetDelayMs returns the DLL's currently enforced target delay,
// converted from device frames to milliseconds at the device's fixed
// sample rate.
func (c *Core) TargetDelayMs() float64 {
	c.mu.Lock()
	rs := c.rs
	c.mu.Unlock()
	if rs == nil {
		return 0
	}
	return rs.Snapshot().TargetDelayFrames / deviceSampleRate * 1000
}

// State returns a read-only snapshot of the resampler's current status,
// ratios, and target delay, safe to call from any goroutine.
func (c *Core) State() State {
	c.mu.Lock()
	rs := c.rs
	c.mu.Unlock()
	if rs == nil {
		return State{Status: resampler.Ready}
	}
	snap := rs.Snapshot()
	return State{
		Status:            snap.Status,
		O2hRatio:          snap.O2hRatio,
		H2oRatio:          snap.H2oRatio,
		TargetDelayFrames: snap.TargetDelayFrames,
	}
}

// Device returns the recognised device descriptor the core was last
// started with.
func (c *Core) Device() wire.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}
