// Package engine implements the USB transfer scheduler: it owns a
// device's two interrupt endpoints, keeps exactly one IN and one OUT
// transfer in flight at all times, encodes and decodes wire blocks on
// completion, drives the device side of a dll.DeviceSide clock, and
// moves decoded audio through a pair of ringbuf.Ring buffers shared with
// the host process callback.
//
// Engine runs its transfer pump on a single dedicated goroutine, the
// audio thread, whose status is published through a lock-free spinlock
// (see spinlock.go) so the host-side caller can read it without ever
// blocking behind the audio thread.
package engine
