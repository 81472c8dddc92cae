// Package resampler implements the fractional sample-rate converter that
// sits between the engine's ring buffers and the host process callback:
// it reads device-rate audio through a windowed-sinc converter driven by
// the DLL's continuously updated ratio, enforces the DLL's target delay,
// recovers from ring underflow, and runs the Ready->Boot->Tune->Run
// startup state machine that promotes the engine to steady playback.
package resampler
