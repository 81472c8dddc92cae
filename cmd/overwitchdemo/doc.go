// Command overwitchdemo drives a core.Core session against a simulated
// Overbridge device and reports the resampler's convergence to Run,
// exercising the same lifecycle a real host audio adapter would:
// Start, a ComputeRatios/ReadAudio/WriteAudio cycle once per simulated
// host buffer, and a clean Stop/Wait/Destroy on signal.
package main
