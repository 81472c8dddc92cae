package usb

import "time"

// TransferCompleteFn is invoked from within Transport.HandleEvents when a
// submitted transfer completes, is cancelled, or times out. n is the
// number of bytes actually transferred; err is nil on success.
type TransferCompleteFn func(n int, err error)

// Transport is the minimal surface the engine needs from a USB stack to
// drive one Overbridge device's pair of interrupt endpoints: one small
// interface, two concrete implementations (cgoTransport bound to
// libusb-1.0, and MockTransport for tests and the demo CLI) that the
// rest of the program is written against and never type-switches on.
//
// A Transport is used by exactly one goroutine at a time (the engine's
// run loop); it does not need to be safe for concurrent use by multiple
// callers, only for its own internal event-delivery thread if one
// exists.
type Transport interface {
	// Open claims the device matching vendorID/productID (the first
	// match, if more than one is attached), selects its Overbridge
	// configuration and interface, and detaches any kernel driver
	// currently bound to it. It returns ErrDeviceNotFound if no match is
	// present.
	Open(vendorID, productID uint16) error

	// Close releases the interface, reattaches the kernel driver if one
	// was detached, and closes the device handle. It is always safe to
	// call, including after a failed Open.
	Close() error

	// InEndpoint and OutEndpoint report the interrupt endpoint addresses
	// in use, for diagnostics and logging.
	InEndpoint() uint8
	OutEndpoint() uint8

	// SubmitInterruptIn and SubmitInterruptOut queue one asynchronous
	// interrupt transfer against buf. Only one transfer per direction may
	// be outstanding at a time; submitting a second before the first
	// completes is a programming error and returns ErrTransferPending.
	// onComplete fires from within a later HandleEvents call.
	SubmitInterruptIn(buf []byte, timeout time.Duration, onComplete TransferCompleteFn) error
	SubmitInterruptOut(buf []byte, timeout time.Duration, onComplete TransferCompleteFn) error

	// HandleEvents drives the USB event loop for up to timeout, firing
	// the completion callback of any transfer that finished during the
	// call. It returns promptly once at least one event has been
	// processed, or once timeout has elapsed, whichever comes first.
	HandleEvents(timeout time.Duration) error

	// ReadSerialNumber returns the device's USB serial number string
	// descriptor, used to disambiguate multiple attached units of the
	// same product.
	ReadSerialNumber() (string, error)
}

// ControlEndpoint is the fixed default control endpoint address (0),
// retained as a named constant since every call site that reaches for
// endpoint 0 explicitly is documenting "the control endpoint", not a
// magic number.
const ControlEndpoint uint8 = 0
