// Package ringbuf implements a lock-free single-producer/single-consumer
// byte ring buffer used as the only cross-thread audio data path between
// the engine's audio thread and the host process callback.
//
// Capacity is rounded up to a power of two so that wrap-around can be
// computed with a mask instead of a modulo. The write and read cursors
// are plain uint64 counters guarded with atomic loads/stores (not
// instruction-level fences beyond what the Go memory model already
// guarantees for atomic operations); only one goroutine may call the
// writer methods and only one goroutine may call the reader methods.
package ringbuf
