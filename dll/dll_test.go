package dll

import (
	"math"
	"testing"
)

// TestResetTargetDelay covers a host buffer-size change while stopped,
// B=4 (28 device frames per transfer), host bufsize 128 -> target
// delay of 298 device frames.
func TestResetTargetDelay(t *testing.T) {
	t.Parallel()

	h := NewHostSide()
	h.Reset(48000, 48000, 128, 28)

	const want = 298.0
	if got := h.TargetDelay(); got != want {
		t.Errorf("wrong target delay: got %v, want %v", got, want)
	}
}

// TestResetIdempotent verifies that calling Reset twice in a row yields
// the same post-reset state.
func TestResetIdempotent(t *testing.T) {
	t.Parallel()

	h1 := NewHostSide()
	h1.Reset(44100, 48000, 64, 28)
	h1.Reset(44100, 48000, 64, 28)

	h2 := NewHostSide()
	h2.Reset(44100, 48000, 64, 28)

	if *h1 != *h2 {
		t.Errorf("reset is not idempotent: got %+v, want %+v", *h1, *h2)
	}
}

// runStationary simulates a device side ticking at exactly deviceRate,
// with framesPerUpdate frames per transfer, and a host side consuming
// that clock at hostRate, for the given duration in seconds. It returns
// the host-side HostSide after the run.
func runStationary(deviceRate, hostRate float64, framesPerUpdate, hostBufSize uint32, seconds float64) *HostSide {
	dev := NewDeviceSide(deviceRate, framesPerUpdate)
	host := NewHostSide()
	host.Reset(hostRate, deviceRate, hostBufSize, framesPerUpdate)
	host.SetLoopFilter(1.0, hostBufSize, hostRate)

	var (
		tDev, tHost uint64
		devPeriodUs = uint64(float64(framesPerUpdate) / deviceRate * 1e6)
		hostPeriodUs = uint64(float64(hostBufSize) / hostRate * 1e6)
	)

	for tHost < uint64(seconds*1e6) {
		for tDev <= tHost {
			dev.Update(framesPerUpdate, tDev)
			tDev += devPeriodUs
		}
		i0, i1 := dev.Snapshot()
		host.LoadDeviceSnapshot(i0, i1)
		host.UpdateError(tHost)
		host.Update()
		tHost += hostPeriodUs
	}
	return host
}

// TestConvergence verifies that a stationary host clock at S Hz
// converges so that the steady-state ratio lies within 100ppm of
// S/48000.
func TestConvergence(t *testing.T) {
	t.Parallel()

	specs := []struct {
		hostRate float64
		wantPPM  float64
	}{
		{48000, 100},
		{44100, 200}, // looser tolerance: within 200ppm of 44100/48000
	}

	const (
		deviceRate      = 48000.0
		framesPerUpdate = 28 // B=4
		hostBufSize     = 64 // N=64
	)

	for i, spec := range specs {
		host := runStationary(deviceRate, spec.hostRate, framesPerUpdate, hostBufSize, 8)
		want := spec.hostRate / deviceRate
		ppm := math.Abs(1-host.Ratio()/want) * 1e6
		if ppm > spec.wantPPM {
			t.Errorf("%d: ratio not converged: got %v (%.1fppm off), want within %vppm of %v",
				i, host.Ratio(), ppm, spec.wantPPM, want)
		}
	}
}

// TestWrap covers the MODTIME_THRESHOLD wraparound handling used by
// UpdateError's dn/dd computation.
func TestWrap(t *testing.T) {
	t.Parallel()

	specs := []struct {
		d, q, want float64
	}{
		{0, tQuantum, 0},
		{-250, tQuantum, -250 + tQuantum},
		{250, tQuantum, 250 - tQuantum},
		{199, tQuantum, 199},
	}
	for i, spec := range specs {
		if got := wrap(spec.d, spec.q); got != spec.want {
			t.Errorf("%d: wrap(%v, %v): got %v, want %v", i, spec.d, spec.q, got, spec.want)
		}
	}
}
