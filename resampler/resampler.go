package resampler

import (
	"io"
	"math"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dagargo/overwitch-go/dll"
	"github.com/dagargo/overwitch-go/engine"
	"github.com/dagargo/overwitch-go/ringbuf"
)

// maxReadFrames bounds how many frames a single underflowed ReadAudio
// call will pull from a short o2h ring, so that a starved reader
// degrades to a short, silence-padded read instead of blocking or
// amplifying a small ring into a large one.
const maxReadFrames = 5

const (
	bootingPeriodUsec = 3_000_000
	tuningPeriodUsec  = 4_000_000
	bootingTuned      = 1e-3
	tuningTuned       = 1e-5
	runTuned          = 1e-5
)

// Snapshot is the resampler's published, lock-free-readable state,
// refreshed once per ComputeRatios call and safe to read concurrently
// from any goroutine (e.g. a status/metrics endpoint).
type Snapshot struct {
	Status            State
	O2hRatio          float64
	H2oRatio          float64
	TargetDelayFrames float64
}

// Option configures a Resampler at construction time.
type Option func(*Resampler)

// WithLogger sets the structured logger used for phase transitions and
// underflow/overflow events.
func WithLogger(l *log.Logger) Option {
	return func(r *Resampler) { r.log = l }
}

// WithReportPeriod stores a status-report period, in seconds; values
// below 1 keep the default of 2. The stored period is not read by
// ComputeRatios, ReadAudio or WriteAudio, and the resampler emits no
// periodic status lines in Run.
func WithReportPeriod(seconds int) Option {
	return func(r *Resampler) {
		if seconds > 0 {
			r.reportPeriodSeconds = seconds
		}
	}
}

// Config carries the resampler's host-side operating parameters, set at
// construction and revised only by Reset.
type Config struct {
	HostBufSize             int
	HostSampleRate          float64
	DeviceSampleRate        float64
	DeviceFramesPerTransfer uint32
	Quality                 Quality
}

// Resampler implements the host's compute_ratios/read_audio/write_audio
// contract: it owns the host side of the DLL, the pair of per-channel
// sinc converters for each direction, and the startup state machine
// that promotes the engine from Boot through Run.
type Resampler struct {
	log *log.Logger

	eng *engine.Engine
	o2h *ringbuf.Ring
	h2o *ringbuf.Ring

	host *dll.HostSide

	channelsIn, channelsOut int
	quality                 Quality
	o2hConv                 []*SincConverter
	h2oConv                 []*SincConverter
	underflowConv           []*SincConverter

	cfg Config

	status          State
	bootStartUsec   uint64
	tuneStartUsec   uint64
	readingAtO2hEnd bool
	h2oAcc          float64

	reportPeriodSeconds int

	snap atomic.Pointer[Snapshot]

	// Pre-allocated scratch buffers for the ReadAudio/WriteAudio hot
	// path, sized to HostBufSize*8 frames so a host running at up to
	// 192 kHz never forces a reallocation. rawBuf/o2hFloatBuf carry the
	// o2h ring read and its decode; h2oFloatBuf/h2oPayloadBuf carry the
	// h2o converter's output and its ring-bound encode; chInBuf/chOutBuf
	// are the mono scratch buffers convertInterleaved de-/re-interleaves
	// through, shared by both directions since ComputeRatios, ReadAudio,
	// and WriteAudio are always called in sequence by the same host
	// thread, never concurrently.
	rawBuf        []byte
	o2hFloatBuf   []float32
	h2oFloatBuf   []float32
	h2oPayloadBuf []byte
	chInBuf       []float32
	chOutBuf      []float32
}

// NewResampler constructs a Resampler bound to eng and its o2h/h2o ring
// buffers. The engine and resampler are created together for one device
// and destroyed together; neither outlives the other.
func NewResampler(eng *engine.Engine, o2h, h2o *ringbuf.Ring, cfg Config, opts ...Option) *Resampler {
	device := eng.Device()
	r := &Resampler{
		eng:                 eng,
		o2h:                 o2h,
		h2o:                 h2o,
		host:                dll.NewHostSide(),
		channelsIn:          device.Inputs(),
		channelsOut:         device.Outputs(),
		quality:             cfg.Quality,
		cfg:                 cfg,
		status:              Ready,
		reportPeriodSeconds: 2,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = log.New(io.Discard)
	}
	r.o2hConv = newConverters(r.channelsOut, r.quality)
	r.h2oConv = newConverters(r.channelsIn, r.quality)
	r.underflowConv = newConverters(r.channelsIn, QualityZeroOrderHold)

	r.allocateBuffers(cfg)
	r.host.Reset(cfg.HostSampleRate, cfg.DeviceSampleRate, uint32(cfg.HostBufSize), cfg.DeviceFramesPerTransfer)
	r.publish()
	return r
}

// allocateBuffers (re)sizes every scratch buffer the hot path reuses, to
// HostBufSize*8 frames. Called at construction and from Reset; never
// from ReadAudio/WriteAudio themselves.
func (r *Resampler) allocateBuffers(cfg Config) {
	capFrames := cfg.HostBufSize * 8
	o2hFrameBytes := ringbuf.FloatFrameBytes(r.channelsOut)
	h2oFrameBytes := ringbuf.FloatFrameBytes(r.channelsIn)

	r.rawBuf = make([]byte, capFrames*o2hFrameBytes)
	r.o2hFloatBuf = make([]float32, capFrames*r.channelsOut)
	r.h2oFloatBuf = make([]float32, capFrames*r.channelsIn)
	r.h2oPayloadBuf = make([]byte, capFrames*h2oFrameBytes)
	r.chInBuf = make([]float32, capFrames)
	r.chOutBuf = make([]float32, capFrames)
}

func newConverters(channels int, q Quality) []*SincConverter {
	cs := make([]*SincConverter, channels)
	for i := range cs {
		cs[i] = NewSincConverter(q)
	}
	return cs
}

// Status returns the resampler's current startup/run state.
func (r *Resampler) Status() State {
	return r.status
}

// Snapshot returns the most recently published state, safe to call
// concurrently with ComputeRatios/ReadAudio/WriteAudio.
func (r *Resampler) Snapshot() Snapshot {
	if s := r.snap.Load(); s != nil {
		return *s
	}
	return Snapshot{Status: r.status}
}

func (r *Resampler) publish() {
	o2h := r.host.Ratio()
	r.snap.Store(&Snapshot{
		Status:            r.status,
		O2hRatio:          o2h,
		H2oRatio:          1 / o2h,
		TargetDelayFrames: r.host.TargetDelay(),
	})
}

// ComputeRatios is the first of the three per-cycle host entry points:
// it snapshots the DLL device side, advances the host-side loop filter,
// and drives the Ready->Boot->Tune->Run startup state machine. now is
// the host's monotonic microsecond clock; audioRunningCb is invoked
// exactly once, the cycle the resampler reaches Run.
func (r *Resampler) ComputeRatios(now uint64, audioRunningCb func()) {
	if r.status == Ready && r.eng.Status() <= engine.Boot {
		if r.eng.Status() == engine.Ready {
			r.eng.PromoteSteady()
		}
		return
	}

	if i0, i1, ok := r.eng.DeviceSideSnapshot(); ok {
		r.host.LoadDeviceSnapshot(i0, i1)
	}
	r.host.UpdateError(now)

	if r.status == Ready && r.eng.Status() == engine.Wait {
		r.status = Boot
		r.host.SetLoopFilter(1.0, uint32(r.cfg.HostBufSize), r.cfg.HostSampleRate)
		r.bootStartUsec = now
		r.log.Debug("resampler entering boot phase")
	}

	r.host.Update()

	if r.status == Boot && now-r.bootStartUsec > bootingPeriodUsec && r.host.Tuned(bootingTuned, uint32(r.cfg.HostBufSize)) {
		r.status = Tune
		r.host.SetLoopFilter(0.5, uint32(r.cfg.HostBufSize), r.cfg.HostSampleRate)
		r.tuneStartUsec = now
		r.log.Debug("resampler entering tune phase")
	}

	if r.status == Tune && now-r.tuneStartUsec > tuningPeriodUsec && r.host.Tuned(tuningTuned, uint32(r.cfg.HostBufSize)) {
		r.status = Run
		r.host.SetLoopFilter(0.05, uint32(r.cfg.HostBufSize), r.cfg.HostSampleRate)
		r.eng.PromoteRun()
		r.log.Info("resampler converged, promoting to run", "o2h_ratio", r.host.Ratio())
		if audioRunningCb != nil {
			audioRunningCb()
		}
	}

	r.publish()
}

// ReadAudio fills out (interleaved, channelsOut samples per frame) with
// len(out)/channelsOut host-rate frames converted from the o2h ring at
// the DLL's current ratio. A short o2h ring degrades to a bounded,
// silence-padded partial read rather than blocking.
func (r *Resampler) ReadAudio(out []float32) {
	n := len(out) / r.channelsOut
	if n == 0 {
		return
	}
	ratio := r.host.Ratio()
	frameBytes := ringbuf.FloatFrameBytes(r.channelsOut)

	needed := int(math.Ceil(float64(n) / ratio))
	if needed < 1 {
		needed = 1
	}
	neededBytes := needed * frameBytes
	avail := r.o2h.ReadSpace()

	var inFrames int
	switch {
	case avail >= neededBytes:
		r.readingAtO2hEnd = true
		inFrames = needed
	case !r.readingAtO2hEnd:
		// Priming: drop whatever partial, sub-chunk data has
		// accumulated so the next healthy cycle starts aligned.
		discard := avail % frameBytes
		if discard > 0 {
			r.o2h.Read(r.rawBuf[:discard])
		}
		for i := range out {
			out[i] = 0
		}
		return
	default:
		availFrames := avail / frameBytes
		if availFrames > maxReadFrames {
			availFrames = maxReadFrames
		}
		inFrames = availFrames
		r.eng.ResetO2hLatencyMax()
		r.log.Warn("o2h underflow", "wanted", n, "available_frames", availFrames)
	}

	raw := r.rawBuf[:inFrames*frameBytes]
	if inFrames > 0 {
		r.o2h.Read(raw)
	}
	in := r.o2hFloatBuf[:inFrames*r.channelsOut]
	ringbuf.DecodeFloats(in, raw)

	convertInterleaved(r.o2hConv, out, in, r.channelsOut, ratio, r.chInBuf, r.chOutBuf)
}

// WriteAudio consumes in (interleaved, channelsIn samples per frame, one
// host buffer's worth of frames) and enqueues its device-rate conversion
// into the h2o ring. It is a no-op before the resampler reaches Run.
func (r *Resampler) WriteAudio(in []float32) {
	if r.status != Run {
		return
	}
	n := len(in) / r.channelsIn
	if n == 0 {
		return
	}
	ratio := r.host.Ratio()
	h2oRatio := 1 / ratio

	r.h2oAcc += float64(n) * (h2oRatio - 1)
	extra := math.Floor(r.h2oAcc)
	r.h2oAcc -= extra
	outFrames := n + int(extra)
	if outFrames < 0 {
		outFrames = 0
	}

	out := r.h2oFloatBuf[:outFrames*r.channelsIn]
	convertInterleaved(r.h2oConv, out, in, r.channelsIn, h2oRatio, r.chInBuf, r.chOutBuf)

	payload := r.h2oPayloadBuf[:len(out)*4]
	ringbuf.EncodeFloats(payload, out)
	if space := r.h2o.WriteSpace(); space < len(payload) {
		r.log.Warn("h2o ring overflow, dropping write", "need", len(payload), "have", space)
		return
	}
	r.h2o.Write(payload)
}

// Reset reinitialises the DLL, both sinc converters, and every scratch
// buffer for a new host buffer size or sample rate. Callers also drive
// the engine back to Boot/Ready around this call; Reset itself only
// touches resampler-owned state.
func (r *Resampler) Reset(cfg Config) {
	r.cfg = cfg
	r.status = Ready
	r.h2oAcc = 0
	r.readingAtO2hEnd = false
	r.allocateBuffers(cfg)
	r.host.Reset(cfg.HostSampleRate, cfg.DeviceSampleRate, uint32(cfg.HostBufSize), cfg.DeviceFramesPerTransfer)
	for _, c := range r.o2hConv {
		c.Reset()
	}
	for _, c := range r.h2oConv {
		c.Reset()
	}
	r.publish()
}

// convertInterleaved de-interleaves src into per-channel buffers, runs
// each through its own converter, and re-interleaves the result into
// dst. channels must equal len(convs); dst's length determines the
// number of output frames produced. chIn and chOut are caller-owned mono
// scratch buffers, reused across calls rather than allocated here; their
// capacity must be at least len(src)/channels and len(dst)/channels
// respectively.
func convertInterleaved(convs []*SincConverter, dst, src []float32, channels int, ratio float64, chIn, chOut []float32) {
	outFrames := len(dst) / channels
	inFrames := len(src) / channels
	chIn = chIn[:inFrames]
	chOut = chOut[:outFrames]
	for ch := 0; ch < channels; ch++ {
		for f := 0; f < inFrames; f++ {
			chIn[f] = src[f*channels+ch]
		}
		convs[ch].Convert(chOut, chIn, ratio)
		for f := 0; f < outFrames; f++ {
			dst[f*channels+ch] = chOut[f]
		}
	}
}
