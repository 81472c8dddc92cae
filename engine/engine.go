package engine

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dagargo/overwitch-go/dll"
	"github.com/dagargo/overwitch-go/ringbuf"
	"github.com/dagargo/overwitch-go/usb"
	"github.com/dagargo/overwitch-go/wire"
)

// UnderflowResampleFunc is called on an h2o underflow to stretch the
// available frames up to a full transfer's worth using a coarse,
// one-shot conversion. Engine depends only on this function shape so
// that it never imports resampler (which imports engine). Nothing in
// this module installs one: core does not pass WithUnderflowResampler,
// and without it fillOutBuffer copies the available frames into the
// fallback buffer unstretched.
type UnderflowResampleFunc func(dst, src []float32, ratio float64) int

// Option configures an Engine at construction time, following the same
// functional-options session.ConfigFn convention used throughout this
// module.
type Option func(*Engine)

// WithLogger sets the structured logger used for state transitions and
// hot-path error events. A nil logger (the default) discards output.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTransferTimeout sets the USB interrupt transfer timeout. Zero
// means infinite, matching a usb_xfr_timeout_ms configuration of 0.
func WithTransferTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithDeviceSide attaches the DLL device-side clock the engine updates
// on every completed IN transfer. Omitting this option makes the engine
// skip Ready/Boot/Wait gating and move straight to Steady, per the
// specification's "implicit Steady if [DLL] not [attached]" rule.
func WithDeviceSide(d *dll.DeviceSide) Option {
	return func(e *Engine) { e.dllDevice = d }
}

// WithRings attaches the two ring buffers the engine moves audio
// through: o2h (device-to-host, written on IN completion) and h2o
// (host-to-device, read on OUT completion).
func WithRings(o2h, h2o *ringbuf.Ring) Option {
	return func(e *Engine) { e.o2h, e.h2o = o2h, h2o }
}

// WithUnderflowResampler installs the coarse-quality converter used to
// stretch a short h2o read up to a full transfer during underflow.
func WithUnderflowResampler(fn UnderflowResampleFunc) Option {
	return func(e *Engine) { e.underflow = fn }
}

// WithClock overrides the monotonic microsecond clock fed to the DLL
// device side; tests substitute a deterministic fake.
func WithClock(now func() uint64) Option {
	return func(e *Engine) { e.now = now }
}

// latencyCounters tracks the running current/min/max of one direction's
// host-frame latency, guarded by the owning Engine's spinlock.
type latencyCounters struct {
	current, min, max int
}

func (c *latencyCounters) observe(v int) {
	c.current = v
	if v < c.min {
		c.min = v
	}
	if v > c.max {
		c.max = v
	}
}

func (c *latencyCounters) resetMaxToMin() {
	c.max = c.min
}

// Engine drives one device's pair of USB interrupt endpoints: a single
// dedicated goroutine keeps exactly one IN and one OUT interrupt
// transfer in flight, encoding and decoding wire blocks and moving audio
// through a pair of ring buffers shared with the host process callback.
type Engine struct {
	transport         usb.Transport
	device            wire.Device
	blocksPerTransfer int
	timeout           time.Duration
	now               func() uint64

	dllDevice *dll.DeviceSide
	o2h, h2o  *ringbuf.Ring
	underflow UnderflowResampleFunc

	log *log.Logger

	spin    spinlock
	status  State
	latO2h  latencyCounters
	latH2o  latencyCounters

	inBuf, outBuf   []byte
	o2hFloat        []float32
	h2oFloat        []float32
	h2oFallback     []float32
	o2hPayload      []byte
	h2oBuf          []byte
	h2oPartial      []float32
	frameCounter    uint16
	readingAtH2oEnd bool

	o2hEnabled, h2oEnabled bool

	steadyCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once
}

// NewEngine constructs an Engine bound to transport for device, ready to
// be Start-ed. blocksPerTransfer must already satisfy
// wire.ValidateBlocksPerTransfer; callers validate configuration before
// construction (see core.Config).
func NewEngine(transport usb.Transport, device wire.Device, blocksPerTransfer int, opts ...Option) *Engine {
	e := &Engine{
		transport:         transport,
		device:            device,
		blocksPerTransfer: blocksPerTransfer,
		timeout:           10 * time.Millisecond,
		now:               monotonicMicros,
		o2hEnabled:        true,
		h2oEnabled:        true,
		steadyCh:          make(chan struct{}),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = log.New(io.Discard)
	}

	frames := e.blocksPerTransfer * wire.FramesPerBlock
	inSize := wire.TransferSize(e.blocksPerTransfer, device.OutputFrameSize())
	outSize := wire.TransferSize(e.blocksPerTransfer, device.InputFrameSize())
	e.inBuf = make([]byte, inSize)
	e.outBuf = make([]byte, outSize)
	e.o2hFloat = make([]float32, frames*device.Outputs())
	e.h2oFloat = make([]float32, frames*device.Inputs())
	e.h2oFallback = make([]float32, frames*device.Inputs())
	e.o2hPayload = make([]byte, frames*device.Outputs()*4)
	e.h2oBuf = make([]byte, frames*device.Inputs()*4)
	e.h2oPartial = make([]float32, frames*device.Inputs())

	if e.dllDevice != nil {
		e.status = Ready
	} else {
		e.status = Steady
	}
	return e
}

// Device returns the device descriptor the engine was constructed with.
func (e *Engine) Device() wire.Device {
	return e.device
}

// DeviceSideSnapshot returns the DLL device-side instants last published
// by the IN completion path, for the resampler to load into its host
// side every process cycle. ok is false if no DLL was attached.
func (e *Engine) DeviceSideSnapshot() (i0, i1 dll.Instant, ok bool) {
	if e.dllDevice == nil {
		return dll.Instant{}, dll.Instant{}, false
	}
	i0, i1 = e.dllDevice.Snapshot()
	return i0, i1, true
}

// Status returns the engine's current lifecycle state.
func (e *Engine) Status() State {
	e.spin.lock()
	s := e.status
	e.spin.unlock()
	return s
}

func (e *Engine) setStatus(s State) {
	e.spin.lock()
	e.status = s
	e.spin.unlock()
}

// Latency returns the current/min/max o2h and h2o latency, in host
// frames, accumulated since construction or the last ResetLatency call.
func (e *Engine) Latency() (o2h, h2o [3]int) {
	e.spin.lock()
	o2h = [3]int{e.latO2h.current, e.latO2h.min, e.latO2h.max}
	h2o = [3]int{e.latH2o.current, e.latH2o.min, e.latH2o.max}
	e.spin.unlock()
	return
}

// ResetLatency clears the running min/max extremes back to the current
// value.
func (e *Engine) ResetLatency() {
	e.spin.lock()
	e.latO2h.min, e.latO2h.max = e.latO2h.current, e.latO2h.current
	e.latH2o.min, e.latH2o.max = e.latH2o.current, e.latH2o.current
	e.spin.unlock()
}

// ResetO2hLatencyMax collapses the running o2h max back to the current
// min, invalidating a stale high-water mark. The resampler calls this
// after an o2h underflow so a healthy cycle rebuilds the max from
// scratch rather than reporting a latency spike that already recovered.
func (e *Engine) ResetO2hLatencyMax() {
	e.spin.lock()
	e.latO2h.resetMaxToMin()
	e.spin.unlock()
}

// PromoteSteady moves the engine from Ready to Steady, unblocking its
// audio thread's priming step. The resampler calls this once it has
// observed the engine in Ready, per the §4.2 lifecycle.
func (e *Engine) PromoteSteady() {
	e.spin.lock()
	if e.status == Ready {
		e.status = Steady
	}
	e.spin.unlock()
	select {
	case <-e.steadyCh:
	default:
		close(e.steadyCh)
	}
}

// PromoteRun moves the engine from Wait to Run, called by the resampler
// once its Tune phase has converged (or immediately, when no DLL is
// attached and the engine went straight to Boot).
func (e *Engine) PromoteRun() {
	e.spin.lock()
	if e.status == Wait || e.status == Boot {
		e.status = Run
	}
	e.spin.unlock()
}

// RequestClear asks the engine to drain and reinitialise its ring
// buffers on the next convenient point in the transfer loop, used when
// the host changes buffer size or sample rate while running.
func (e *Engine) RequestClear() {
	e.spin.lock()
	if e.status == Run {
		e.status = Clear
	}
	e.spin.unlock()
}

// SetDirectionsEnabled toggles whether audio flows on each direction,
// matching the host adapter's {O2H_AUDIO, H2O_AUDIO} options bitmask.
func (e *Engine) SetDirectionsEnabled(o2h, h2o bool) {
	e.spin.lock()
	e.o2hEnabled, e.h2oEnabled = o2h, h2o
	e.spin.unlock()
}

// Start opens the device and launches the audio thread. It returns once
// the device has been opened and claimed; transfer priming continues
// asynchronously, gated on PromoteSteady if a DLL is attached.
func (e *Engine) Start(vendorID, productID uint16) error {
	if err := e.transport.Open(vendorID, productID); err != nil {
		return fmt.Errorf("engine: open device: %w", err)
	}
	go e.run()
	return nil
}

// Stop requests the audio thread exit after its next completion pump.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stopCh) })
}

// Wait blocks until the audio thread has exited and the transport has
// been closed.
func (e *Engine) Wait() {
	<-e.doneCh
}

func (e *Engine) run() {
	defer func() {
		e.transport.Close()
		close(e.doneCh)
	}()

	if e.dllDevice != nil {
		select {
		case <-e.steadyCh:
		case <-e.stopCh:
			e.setStatus(Stop)
			return
		}
	}

	if err := e.primeTransfers(); err != nil {
		e.log.Error("failed to prime initial transfers", "err", err)
		e.setStatus(Error)
		return
	}
	e.setStatus(Boot)
	if e.dllDevice == nil {
		e.setStatus(Run)
	}
	e.log.Debug("engine entering transfer pump loop")

	for {
		select {
		case <-e.stopCh:
			e.setStatus(Stop)
			return
		default:
		}
		if e.Status() < Boot {
			return
		}
		if err := e.transport.HandleEvents(e.timeout); err != nil {
			e.log.Warn("handle events error", "err", err)
		}
		if e.Status() == Error {
			return
		}
	}
}

func (e *Engine) primeTransfers() error {
	if err := e.transport.SubmitInterruptIn(e.inBuf, e.timeout, e.onInComplete); err != nil {
		return err
	}
	if err := e.transport.SubmitInterruptOut(e.outBuf, e.timeout, e.onOutComplete); err != nil {
		return err
	}
	return nil
}

func (e *Engine) onInComplete(n int, err error) {
	if err != nil {
		e.log.Warn("in transfer failed", "err", err)
	} else {
		e.handleInCompletion()
	}

	if e.Status() == Error || e.Status() == Stop {
		return
	}
	if err := e.transport.SubmitInterruptIn(e.inBuf, e.timeout, e.onInComplete); err != nil {
		e.log.Error("failed to resubmit in transfer", "err", err)
		e.setStatus(Error)
	}
}

func (e *Engine) handleInCompletion() {
	frames := e.blocksPerTransfer * wire.FramesPerBlock
	decErr := wire.DecodeBlocks(e.o2hFloat, e.inBuf, e.device.OutputTracks, e.blocksPerTransfer, wire.HeaderIn)
	if decErr != nil {
		e.log.Warn("in transfer carried unexpected header", "err", decErr)
	}

	if e.dllDevice != nil {
		e.dllDevice.Update(uint32(frames), e.now())
		e.spin.lock()
		if e.status == Boot {
			e.status = Wait
		}
		e.spin.unlock()
	}

	status := e.Status()
	if status >= Run && e.o2hEnabled && e.o2h != nil {
		payload := e.o2hPayload
		ringbuf.EncodeFloats(payload, e.o2hFloat)
		space := e.o2h.WriteSpace()
		if space < len(payload) {
			e.log.Warn("o2h ring overflow, dropping transfer", "need", len(payload), "have", space)
			return
		}
		e.o2h.Write(payload)
		o2hFrameBytes := e.device.Outputs() * 4
		e.spin.lock()
		e.latO2h.observe(e.o2h.ReadSpace() / o2hFrameBytes)
		e.spin.unlock()
	}
}

func (e *Engine) onOutComplete(n int, err error) {
	if err != nil {
		e.log.Warn("out transfer failed", "err", err)
	}

	if e.Status() == Error || e.Status() == Stop {
		return
	}
	e.fillOutBuffer()
	if err := e.transport.SubmitInterruptOut(e.outBuf, e.timeout, e.onOutComplete); err != nil {
		e.log.Error("failed to resubmit out transfer", "err", err)
		e.setStatus(Error)
	}
}

// fillOutBuffer fills e.outBuf with encoded wire blocks, sourcing audio
// from the h2o ring buffer. The ring carries raw host-format float32
// frames (device.Inputs() samples per frame, 4 bytes each), not
// wire-encoded bytes: wire encoding happens here, on the way out, after
// any underflow resampling.
func (e *Engine) fillOutBuffer() {
	inputFrameBytes := e.device.Inputs() * 4
	frames := e.blocksPerTransfer * wire.FramesPerBlock
	transferFloatBytes := frames * inputFrameBytes

	var src []float32
	switch {
	case !e.h2oEnabled || e.h2o == nil:
		e.readingAtH2oEnd = true
		if e.h2o != nil {
			e.h2o.Reset()
		}
		zeroFloats(e.h2oFloat)
		src = e.h2oFloat
	case e.h2o.ReadSpace() >= transferFloatBytes:
		e.readingAtH2oEnd = false
		buf := e.h2oBuf[:transferFloatBytes]
		e.h2o.Read(buf)
		ringbuf.DecodeFloats(e.h2oFloat, buf)
		src = e.h2oFloat
	case e.h2o.ReadSpace() >= inputFrameBytes:
		e.readingAtH2oEnd = false
		avail := e.h2o.ReadSpace() / inputFrameBytes
		raw := e.h2oBuf[:avail*inputFrameBytes]
		e.h2o.Read(raw)
		partial := e.h2oPartial[:avail*e.device.Inputs()]
		ringbuf.DecodeFloats(partial, raw)
		if e.underflow != nil {
			e.underflow(e.h2oFallback, partial, float64(frames)/float64(avail))
		} else {
			copy(e.h2oFallback, partial)
		}
		src = e.h2oFallback
	default:
		e.readingAtH2oEnd = true
		zeroFloats(e.h2oFloat)
		src = e.h2oFloat
	}

	e.frameCounter = wire.EncodeBlocks(e.outBuf, src, e.device.InputTracks, e.blocksPerTransfer, e.frameCounter, wire.HeaderOut)

	e.spin.lock()
	if e.h2o != nil {
		e.latH2o.observe(e.h2o.ReadSpace() / inputFrameBytes)
	}
	e.spin.unlock()
}

func zeroFloats(s []float32) {
	for i := range s {
		s[i] = 0
	}
}

// monotonicMicros is the default clock: a process-monotonic microsecond
// counter derived from time.Now, matching the host adapter contract's
// get_time() (§6.2), which the DLL only ever consumes through its low 28
// bits.
func monotonicMicros() uint64 {
	return uint64(time.Since(processStart).Microseconds())
}

// processStart anchors monotonicMicros; time.Since reads the monotonic
// clock carried by this time.Time value.
var processStart = time.Now()
