package dll

import "math"

// ModtimeThreshold bounds the device-side microsecond counter wrap
// correction. It must stay below the quantum implied by the low 28 bits
// of a microsecond counter (~268.435s) with enough slack that a single
// update interval never straddles more than one wrap. Do not widen the
// 28-bit mask without re-deriving ModtimeThreshold and the loop-filter
// bandwidth constants together.
const ModtimeThreshold = 200.0

// TunedThreshold is the default |err| bound (in host frames) under which
// Tuned reports true for a DLL running at its steady-state bandwidth.
const TunedThreshold = 2.0

// tQuantum is 2^28 microseconds expressed in seconds, the wrap period of
// the low-28-bit monotonic microsecond counter used on the device side.
var tQuantum = math.Ldexp(1e-6, 28)

// Instant pairs a wrapped timestamp, in seconds, with a cumulative device
// frame count. Two instants (i0, i1) bracket the most recent device-side
// update and are the only state shared between the device and host sides
// of a DLL.
type Instant struct {
	Time   float64
	Frames uint32
}

// wrap shifts d by one quantum q when it has drifted past
// ModtimeThreshold, keeping subtractions between wrapped timestamps well
// defined across a wraparound of the underlying counter.
func wrap(d, q float64) float64 {
	switch {
	case d < -ModtimeThreshold:
		return d + q
	case d > ModtimeThreshold:
		return d - q
	default:
		return d
	}
}

// usecToSec converts a monotonic microsecond timestamp to seconds,
// keeping only the low 28 bits as required by the wrap-tolerant
// arithmetic used throughout this package.
func usecToSec(t uint64) float64 {
	return float64(uint32(t&0x0FFFFFFF)) * 1e-6
}

// DeviceSide is the half of the DLL updated from the USB IN completion
// path: it tracks the device's own notion of elapsed time and frames,
// entirely independent of the host clock.
type DeviceSide struct {
	i0, i1 Instant
	dt     float64
	w1, w2 float64
	boot   bool
}

// NewDeviceSide creates a DeviceSide DLL for a device nominally running
// at deviceSampleRate and contributing framesPerUpdate frames on every
// completed transfer (typically 7*blocksPerTransfer).
func NewDeviceSide(deviceSampleRate float64, framesPerUpdate uint32) *DeviceSide {
	d := &DeviceSide{boot: true}
	dt0 := float64(framesPerUpdate) / deviceSampleRate
	w := 2 * math.Pi * 0.1 * dt0
	d.dt = dt0
	d.w1 = 1.6 * w
	d.w2 = w * w
	return d
}

// Update folds in one completed transfer contributing frames device
// frames, timestamped at t (monotonic microseconds). It must be called
// from a single writer (the engine's USB completion path).
func (d *DeviceSide) Update(frames uint32, t uint64) {
	time := usecToSec(t)

	if d.boot {
		d.i0 = Instant{Time: time, Frames: 0}
		d.i1 = Instant{Time: time + d.dt, Frames: frames}
		d.boot = false
	}

	err := time - d.i1.Time
	if err < -ModtimeThreshold {
		d.i1.Time -= tQuantum
		err = time - d.i1.Time
	}

	d.i0.Time = d.i1.Time
	d.i1.Time += d.w1*err + d.dt
	d.dt += d.w2 * err

	d.i0.Frames = d.i1.Frames
	d.i1.Frames += frames
}

// Snapshot returns a copy of the two bracketing instants. Callers on the
// host side must take this copy under the engine's spin mutex so i0 and
// i1 are observed as a consistent pair.
func (d *DeviceSide) Snapshot() (Instant, Instant) {
	return d.i0, d.i1
}

// HostSide is the half of the DLL updated from the host audio process
// callback: it converts the device-side snapshot into a resampling
// ratio and enforces a configured target delay, in device frames, at the
// host boundary.
type HostSide struct {
	i0, i1      Instant
	framesAccum uint32
	err         float64

	z1, z2, z3  float64
	w0, w1, w2  float64
	ratio       float64
	targetDelay float64

	boot bool
}

// NewHostSide creates a HostSide DLL with boot flags set, ready for its
// first LoadDeviceSnapshot/UpdateError/Update cycle after Reset has
// established a ratio and target delay.
func NewHostSide() *HostSide {
	return &HostSide{boot: true}
}

// LoadDeviceSnapshot copies the device-side instants into the host side.
// Call this once per process cycle before UpdateError.
func (h *HostSide) LoadDeviceSnapshot(i0, i1 Instant) {
	h.i0, h.i1 = i0, i1
}

// Reset reestablishes the steady-state ratio and target delay following a
// buffer-size or sample-rate change. hostRate and deviceRate are in Hz;
// hostBufSize is the host process buffer size in frames; deviceFrames is
// the number of device frames contributed per engine update (typically
// 7*blocksPerTransfer). Calling Reset twice in a row with the same
// arguments yields the same post-reset state (idempotent).
func (h *HostSide) Reset(hostRate, deviceRate float64, hostBufSize, deviceFrames uint32) {
	h.z1, h.z2, h.z3 = 0, 0, 0
	h.ratio = hostRate / deviceRate
	h.framesAccum = uint32(int32(-float64(hostBufSize) / h.ratio))
	h.targetDelay = 2*float64(hostBufSize) + 1.5*float64(deviceFrames)
	h.boot = true
}

// SetLoopFilter installs loop-filter coefficients for a bandwidth bw (Hz)
// at the given host buffer size and sample rate. Called by the resampler
// at each startup-phase transition (Boot/Tune/Run) with a progressively
// narrower bw.
func (h *HostSide) SetLoopFilter(bw float64, hostBufSize uint32, hostSampleRate float64) {
	w := 2 * math.Pi * 20 * bw * float64(hostBufSize) / hostSampleRate
	h.w0 = 1 - math.Exp(-w)
	w = 2 * math.Pi * bw * h.ratio / hostSampleRate
	h.w1 = w * 1.6
	h.w2 = w * float64(hostBufSize) / 1.6
}

// UpdateError recomputes the DLL error term against the host's current
// monotonic time t (microseconds), using the most recently loaded device
// snapshot. On the first call after Reset, it snaps framesAccum to
// absorb the initial error so startup does not have to slew through it.
func (h *HostSide) UpdateError(t uint64) {
	time := usecToSec(t)

	deltaFramesExp := int32(h.i1.Frames - h.i0.Frames)
	dn := wrap(time-h.i0.Time, tQuantum)
	dd := wrap(h.i1.Time-h.i0.Time, tQuantum)
	deltaDevice := float64(deltaFramesExp) * dn / dd

	deltaAct := int32(h.i0.Frames - h.framesAccum)
	h.err = float64(deltaAct) + deltaDevice - h.targetDelay

	if h.boot {
		n := int32(math.Floor(h.err + 0.5))
		h.framesAccum += uint32(n)
		h.err -= float64(n)
		h.boot = false
	}
}

// Update runs the three-pole loop filter and republishes Ratio. Call
// after UpdateError on every host process cycle.
func (h *HostSide) Update() {
	h.z1 += h.w0 * (h.w1*h.err - h.z1)
	h.z2 += h.w0 * (h.z1 - h.z2)
	h.z3 += h.w2 * h.z2
	h.ratio = 1 - h.z2 - h.z3
}

// Ratio returns the most recently published device-rate/host-rate
// conversion ratio.
func (h *HostSide) Ratio() float64 {
	return h.ratio
}

// Err returns the current DLL error term, in device frames.
func (h *HostSide) Err() float64 {
	return h.err
}

// TargetDelay returns the target delay currently enforced, in device
// frames.
func (h *HostSide) TargetDelay() float64 {
	return h.targetDelay
}

// Tuned reports whether |err| is below threshold*hostBufSize, the
// phase-dependent convergence criterion used by the resampler's startup
// state machine.
func (h *HostSide) Tuned(threshold float64, hostBufSize uint32) bool {
	return math.Abs(h.err) < threshold*float64(hostBufSize)
}
