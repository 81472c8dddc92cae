// Package dll implements the delay-locked loop that tracks the Overbridge
// device's effective sample rate against host monotonic time.
//
// The DLL has two sides, separate types updated from different
// goroutines: DeviceSide (Update), driven by the engine's USB completion
// path, and HostSide (UpdateError/Update), driven by the host audio
// server's process callback through the resampler. The two sides
// communicate through a small snapshot (Instant pair) copied under the
// engine's spin mutex; see the engine package.
package dll
