// Package wire implements the Overbridge USB wire protocol: the device
// table (vendor/product id to track layout) and the fixed block framing
// used by both directions of a transfer.
//
// Everything in this package is pure data transformation over caller-
// supplied byte slices: it performs no I/O and allocates nothing on the
// encode/decode hot path beyond what the caller already owns, copying
// fixed-layout wire structures into plain Go value types without
// introducing extra indirection.
package wire
