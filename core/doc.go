// Package core wires together usb.Transport, wire.Device, engine.Engine,
// and resampler.Resampler into the single composite object a host audio
// adapter drives: Core. Its surface is the host adapter's contract
// almost method-for-method — Start, ComputeRatios, ReadAudio,
// WriteAudio, SetBufferSize, SetSampleRate, Stop, Wait, Destroy, and a
// set of read-only getters — built with a functional-options
// constructor (NewCore(opts ...CoreOption)).
package core
