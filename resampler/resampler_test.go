package resampler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dagargo/overwitch-go/dll"
	"github.com/dagargo/overwitch-go/engine"
	"github.com/dagargo/overwitch-go/ringbuf"
	"github.com/dagargo/overwitch-go/usb"
	"github.com/dagargo/overwitch-go/wire"
)

const testSampleRate = 48000.0
const testBlocksPerTransfer = 4

func testDevice(t *testing.T) wire.Device {
	t.Helper()
	d, ok := wire.LookupDevice(0x000c) // Digitakt
	if !ok {
		t.Fatal("digitakt not found in device table")
	}
	return d
}

// harness wires a real Engine (with a DLL device side attached) to a
// MockTransport and a shared synthetic microsecond clock that both the
// engine's DLL updates and the test's ComputeRatios calls read from, so
// convergence proceeds at the pace of simulated transfers rather than
// real wall-clock seconds.
type harness struct {
	eng   *engine.Engine
	tr    *usb.MockTransport
	clock uint64
	r     *Resampler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	device := testDevice(t)
	frames := testBlocksPerTransfer * wire.FramesPerBlock
	dt := uint64(float64(frames) / testSampleRate * 1e6)

	h := &harness{}
	h.tr = usb.NewMockTransport(0x83, 0x03, "SN-RESAMPLER")
	h.tr.FillIn = func(buf []byte) {
		wire.EncodeBlocks(buf, make([]float32, frames*device.Outputs()), device.OutputTracks, testBlocksPerTransfer, 0, wire.HeaderIn)
		atomic.AddUint64(&h.clock, dt)
	}

	dllDevice := dll.NewDeviceSide(testSampleRate, uint32(frames))

	frameBytes := frames * device.Outputs() * 4
	o2h := ringbuf.New(frameBytes * 16)
	h2o := ringbuf.New(frames*device.Inputs()*4*16)

	h.eng = engine.NewEngine(h.tr, device, testBlocksPerTransfer,
		engine.WithDeviceSide(dllDevice),
		engine.WithRings(o2h, h2o),
		engine.WithClock(func() uint64 { return atomic.LoadUint64(&h.clock) }),
	)

	cfg := Config{
		HostBufSize:             128,
		HostSampleRate:          testSampleRate,
		DeviceSampleRate:        testSampleRate,
		DeviceFramesPerTransfer: uint32(frames),
		Quality:                 QualityMedium,
	}
	h.r = NewResampler(h.eng, o2h, h2o, cfg)
	return h
}

// runUntilRun starts the engine and repeatedly drives ComputeRatios from
// the shared synthetic clock until the resampler reaches Run or the real
// wall-clock deadline expires.
func (h *harness) runUntilRun(t *testing.T) {
	t.Helper()
	if err := h.eng.Start(wire.ElektronVendorID, 0x000c); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		h.eng.Stop()
		h.eng.Wait()
	})

	deadline := time.Now().Add(5 * time.Second)
	var ranCb bool
	for time.Now().Before(deadline) {
		now := atomic.LoadUint64(&h.clock)
		h.r.ComputeRatios(now, func() { ranCb = true })
		if h.r.Status() == Run {
			if !ranCb {
				t.Errorf("reached Run without audioRunningCb firing")
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("resampler never reached Run, stuck at %v (engine status %v)", h.r.Status(), h.eng.Status())
}

func TestResamplerConvergesToRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.runUntilRun(t)

	snap := h.r.Snapshot()
	if snap.Status != Run {
		t.Fatalf("expected published snapshot status Run, got %v", snap.Status)
	}
	// With host and device sample rates equal, the converged o2h ratio
	// must sit close to 1.
	if d := snap.O2hRatio - 1.0; d < -0.02 || d > 0.02 {
		t.Errorf("expected o2h ratio near 1.0 at equal sample rates, got %v", snap.O2hRatio)
	}
	if d := snap.H2oRatio - 1.0; d < -0.02 || d > 0.02 {
		t.Errorf("expected h2o ratio near 1.0 at equal sample rates, got %v", snap.H2oRatio)
	}
	// Target delay is set once by dll.HostSide.Reset and never drifts on
	// its own; this just confirms it published a sane, positive value.
	if snap.TargetDelayFrames <= 0 {
		t.Errorf("expected a positive target delay, got %v", snap.TargetDelayFrames)
	}
}

func TestResamplerReadAudioProducesRequestedLength(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.runUntilRun(t)

	device := testDevice(t)
	out := make([]float32, 32*device.Outputs())

	// Give the engine's pump loop a moment to push a few transfers'
	// worth of o2h data before pulling.
	time.Sleep(20 * time.Millisecond)
	h.r.ReadAudio(out)
	// ReadAudio must always produce exactly len(out) samples, healthy or
	// underflowed; a short internal read must not shrink the caller's
	// buffer.
	if len(out) != 32*device.Outputs() {
		t.Fatalf("ReadAudio must not resize its buffer, got len %d", len(out))
	}
}

func TestResamplerReadAudioUnderflowDoesNotPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.runUntilRun(t)

	device := testDevice(t)
	out := make([]float32, 32*device.Outputs())

	// The first read may prime `readingAtO2hEnd`. The second asks for
	// HostBufSize*8 frames, the most the resampler's scratch buffers
	// hold and more than the o2h ring can ever contain, so once primed it
	// is served by the bounded underflow path (at most maxReadFrames
	// frames from the ring) rather than a full read.
	h.r.ReadAudio(out)
	big := make([]float32, 128*8*device.Outputs())
	h.r.ReadAudio(big)

	// Whatever the ring holds now, this call must degrade to a bounded
	// partial read, not block or panic.
	done := make(chan struct{})
	go func() {
		h.r.ReadAudio(out)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadAudio blocked under underflow instead of degrading")
	}
}

func TestResamplerWriteAudioIsNoopBeforeRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	device := testDevice(t)
	in := make([]float32, 16*device.Inputs())
	for i := range in {
		in[i] = 0.5
	}

	before := h.r.h2o.WriteSpace()
	h.r.WriteAudio(in)
	after := h.r.h2o.WriteSpace()
	if before != after {
		t.Errorf("WriteAudio before Run must not touch the h2o ring, space went from %d to %d", before, after)
	}
}

func TestResamplerWriteAudioFillsH2oRing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.runUntilRun(t)

	device := testDevice(t)
	in := make([]float32, 16*device.Inputs())
	for i := range in {
		in[i] = 0.25
	}

	before := h.r.h2o.WriteSpace()
	h.r.WriteAudio(in)
	after := h.r.h2o.WriteSpace()
	if after >= before {
		t.Errorf("expected WriteAudio to consume h2o write space once running, before=%d after=%d", before, after)
	}
}

func TestResamplerResetReestablishesReadyState(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.runUntilRun(t)
	if h.r.Status() != Run {
		t.Fatalf("precondition: expected Run, got %v", h.r.Status())
	}

	h.r.Reset(h.r.cfg)
	if h.r.Status() != Ready {
		t.Errorf("expected Reset to return the resampler to Ready, got %v", h.r.Status())
	}
	snap := h.r.Snapshot()
	if snap.Status != Ready {
		t.Errorf("expected published snapshot to reflect Ready after Reset, got %v", snap.Status)
	}
}
