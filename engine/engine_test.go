package engine

import (
	"testing"
	"time"

	"github.com/dagargo/overwitch-go/ringbuf"
	"github.com/dagargo/overwitch-go/usb"
	"github.com/dagargo/overwitch-go/wire"
)

func testDevice() wire.Device {
	d, ok := wire.LookupDevice(0x000c) // Digitakt
	if !ok {
		panic("digitakt not found in device table")
	}
	return d
}

// newTestEngine builds an Engine with no DLL attached (so it starts
// directly in Steady and promotes itself straight to Run), wired to a
// MockTransport and a pair of generously-sized ring buffers.
func newTestEngine(t *testing.T) (*Engine, *usb.MockTransport) {
	t.Helper()
	device := testDevice()
	const blocks = 4
	tr := usb.NewMockTransport(0x83, 0x03, "SN-TEST")

	frameBytes := (blocks * wire.FramesPerBlock) * device.Outputs() * 4
	o2h := ringbuf.New(frameBytes * 8)
	h2o := ringbuf.New(frameBytes * 8)

	e := NewEngine(tr, device, blocks, WithRings(o2h, h2o))
	return e, tr
}

func TestEngineNoDLLStartsInRunAfterBoot(t *testing.T) {
	t.Parallel()

	e, tr := newTestEngine(t)
	if e.Status() != Steady {
		t.Fatalf("expected initial status Steady (no DLL attached), got %v", e.Status())
	}

	if err := e.Start(wire.ElektronVendorID, 0x000c); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		e.Stop()
		e.Wait()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Status() == Run {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if e.Status() != Run {
		t.Fatalf("engine never reached Run, stuck at %v", e.Status())
	}
	_ = tr
}

func TestEngineO2hDataFlowsToRing(t *testing.T) {
	t.Parallel()

	e, tr := newTestEngine(t)
	device := testDevice()

	var fillCount int
	tr.FillIn = func(buf []byte) {
		fillCount++
		// Stamp a well-formed IN transfer: correct header, sequential
		// counters, arbitrary but deterministic sample data.
		wire.EncodeBlocks(buf, make([]float32, 4*wire.FramesPerBlock*device.Outputs()), device.OutputTracks, 4, uint16(fillCount*wire.FramesPerBlock*4), wire.HeaderIn)
	}

	if err := e.Start(wire.ElektronVendorID, 0x000c); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		e.Stop()
		e.Wait()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && e.Status() != Run {
		time.Sleep(time.Millisecond)
	}
	if e.Status() != Run {
		t.Fatalf("engine never reached Run")
	}

	// Give the pump loop a few rounds to push o2h data into the ring.
	time.Sleep(50 * time.Millisecond)

	o2h, _ := e.Latency()
	if o2h[0] <= 0 {
		t.Errorf("expected positive o2h latency after running, got %v", o2h)
	}
}

func TestEngineFatalSubmitTransitionsToError(t *testing.T) {
	t.Parallel()

	device := testDevice()
	const blocks = 4
	tr := usb.NewMockTransport(0x83, 0x03, "SN")
	o2h := ringbuf.New(4096)
	h2o := ringbuf.New(4096)
	e := NewEngine(tr, device, blocks, WithRings(o2h, h2o))

	if err := e.Start(wire.ElektronVendorID, 0x000c); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Wait()

	// Close the transport out from under the engine so the next
	// resubmission attempt (from within a completion callback) fails.
	tr.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Status() == Error {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("engine never transitioned to Error after transport closed, stuck at %v", e.Status())
}
