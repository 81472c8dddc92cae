// Package usb wraps the libusb-1.0 operations the engine needs to drive
// an Overbridge device's two interrupt endpoints: claiming interfaces,
// clearing halts, and submitting/pumping asynchronous interrupt
// transfers.
//
// It exposes Transport in front of two implementations: cgoTransport, a
// cgo binding directly against libusb-1.0, and MockTransport, an
// in-process fake used by tests and the reference demo CLI to exercise
// the engine and resampler without real hardware.
package usb
