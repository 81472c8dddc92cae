package engine

// State is the engine's lifecycle status. States form a strict total
// order: a status comparison via the ordinary `<` operator on the
// underlying int is meaningful and is used throughout this package and
// by the resampler to gate behaviour ("while status >= Wait", "if
// status >= Run", ...).
type State int32

const (
	// Error means a fatal USB condition occurred; the audio thread has
	// exited or is exiting and will not resubmit transfers.
	Error State = iota
	// Stop means the engine was asked to stop; the audio thread exits
	// after its next completion pump.
	Stop
	// Ready means the engine has been constructed but its thread has not
	// started, or is waiting for the resampler to signal readiness.
	Ready
	// Steady means the thread has started and is about to prime its
	// first pair of transfers.
	Steady
	// Boot means the first transfers are in flight; the DLL device side
	// is producing samples but the resampler has not yet promoted audio
	// to flow end-to-end.
	Boot
	// Wait means priming is done and the engine is waiting for the
	// resampler's Boot/Tune phases to converge.
	Wait
	// Clear means a buffer-size or sample-rate change requested the
	// ring buffers be drained and reset while transfers keep flowing.
	Clear
	// Run means audio flows end to end; IN completions are pushed to the
	// o2h ring and OUT submissions are filled from the h2o ring.
	Run
)

func (s State) String() string {
	switch s {
	case Error:
		return "error"
	case Stop:
		return "stop"
	case Ready:
		return "ready"
	case Steady:
		return "steady"
	case Boot:
		return "boot"
	case Wait:
		return "wait"
	case Clear:
		return "clear"
	case Run:
		return "run"
	default:
		return "unknown"
	}
}
