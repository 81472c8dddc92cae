//go:build cgo

package usb

/*
#cgo pkg-config: libusb-1.0
#include <stdlib.h>
#include <libusb-1.0/libusb.h>

// goTransferCallback is exported from Go (see below) and installed as
// the libusb_transfer callback for both directions; it recovers the
// cgo.Handle stashed in transfer->user_data and forwards completion to
// Go.
extern void goTransferCallback(struct libusb_transfer *transfer);

static struct libusb_transfer *ow_alloc_transfer(void) {
	return libusb_alloc_transfer(0);
}

static void ow_fill_interrupt_transfer(struct libusb_transfer *t,
	libusb_device_handle *handle, unsigned char endpoint,
	unsigned char *buf, int length, unsigned int timeout, void *user_data) {
	libusb_fill_interrupt_transfer(t, handle, endpoint, buf, length,
		(libusb_transfer_cb_fn)goTransferCallback, user_data, timeout);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"
)

// cgoTransport binds Transport directly to libusb-1.0, in the same
// shape as api.Impl: every exported method locks a single mutex
// around the underlying C calls, since libusb's synchronous API and our
// own hand-rolled async bookkeeping are not safe to interleave across
// goroutines.
type cgoTransport struct {
	mu       sync.Mutex
	ctx      *C.libusb_context
	handle   *C.libusb_device_handle
	detached bool
	inEp     uint8
	outEp    uint8

	inPending  *pendingTransfer
	outPending *pendingTransfer
}

type pendingTransfer struct {
	xfr      *C.struct_libusb_transfer
	handle   cgo.Handle
	buf      []byte
	onDone   TransferCompleteFn
}

// NewCGOTransport constructs a Transport bound to libusb-1.0. The
// returned value must be Close()d to release the libusb context even if
// Open is never called successfully.
func NewCGOTransport(inEndpoint, outEndpoint uint8) (Transport, error) {
	t := &cgoTransport{inEp: inEndpoint, outEp: outEndpoint}
	if rc := C.libusb_init(&t.ctx); rc != 0 {
		return nil, fmt.Errorf("usb: libusb_init: %s", libusbErrString(rc))
	}
	return t, nil
}

func (t *cgoTransport) InEndpoint() uint8  { return t.inEp }
func (t *cgoTransport) OutEndpoint() uint8 { return t.outEp }

// Audio and MIDI interfaces claimed on an Overbridge device, and the
// composite interfaces whose kernel driver must be detached first. The
// exact interface numbers, alt settings, and clear-halt set below mirror
// the device's own USB descriptor layout bit-for-bit.
const (
	audioIf1, audioIf1Alt = 1, 3
	audioIf2, audioIf2Alt = 2, 2
	midiIf, midiIfAlt     = 3, 0

	detachIf1 = 4
	detachIf2 = 5

	midiInEp  uint8 = 0x81
	midiOutEp uint8 = 0x01
)

// Open implements Transport.
func (t *cgoTransport) Open(vendorID, productID uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := C.libusb_open_device_with_vid_pid(t.ctx, C.uint16_t(vendorID), C.uint16_t(productID))
	if h == nil {
		return ErrDeviceNotFound
	}
	t.handle = h

	C.libusb_detach_kernel_driver(t.handle, detachIf1)
	C.libusb_detach_kernel_driver(t.handle, detachIf2)
	t.detached = true

	if rc := C.libusb_set_configuration(t.handle, 1); rc != 0 {
		return ErrSetConfigFailed
	}
	if rc := C.libusb_claim_interface(t.handle, audioIf1); rc != 0 {
		return ErrClaimInterface
	}
	if rc := C.libusb_set_interface_alt_setting(t.handle, audioIf1, audioIf1Alt); rc != 0 {
		return ErrSetAltSetting
	}
	if rc := C.libusb_claim_interface(t.handle, audioIf2); rc != 0 {
		return ErrClaimInterface
	}
	if rc := C.libusb_set_interface_alt_setting(t.handle, audioIf2, audioIf2Alt); rc != 0 {
		return ErrSetAltSetting
	}
	if rc := C.libusb_claim_interface(t.handle, midiIf); rc != 0 {
		return ErrClaimInterface
	}
	if rc := C.libusb_set_interface_alt_setting(t.handle, midiIf, midiIfAlt); rc != 0 {
		return ErrSetAltSetting
	}
	if rc := C.libusb_clear_halt(t.handle, C.uchar(t.inEp)); rc != 0 {
		return ErrClearHalt
	}
	if rc := C.libusb_clear_halt(t.handle, C.uchar(t.outEp)); rc != 0 {
		return ErrClearHalt
	}
	if rc := C.libusb_clear_halt(t.handle, C.uchar(midiInEp)); rc != 0 {
		return ErrClearHalt
	}
	if rc := C.libusb_clear_halt(t.handle, C.uchar(midiOutEp)); rc != 0 {
		return ErrClearHalt
	}
	return nil
}

// Close implements Transport.
func (t *cgoTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle != nil {
		C.libusb_release_interface(t.handle, audioIf1)
		C.libusb_release_interface(t.handle, audioIf2)
		C.libusb_release_interface(t.handle, midiIf)
		if t.detached {
			C.libusb_attach_kernel_driver(t.handle, detachIf1)
			C.libusb_attach_kernel_driver(t.handle, detachIf2)
		}
		C.libusb_close(t.handle)
		t.handle = nil
	}
	if t.ctx != nil {
		C.libusb_exit(t.ctx)
		t.ctx = nil
	}
	return nil
}

func (t *cgoTransport) submit(buf []byte, endpoint uint8, timeout time.Duration, onComplete TransferCompleteFn, slot **pendingTransfer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle == nil {
		return ErrNotOpen
	}
	if *slot != nil {
		return ErrTransferPending
	}

	p := &pendingTransfer{buf: buf, onDone: onComplete}
	xfr := C.ow_alloc_transfer()
	if xfr == nil {
		return ErrTransferSubmit
	}
	p.xfr = xfr
	p.handle = cgo.NewHandle(p)

	var bufPtr *C.uchar
	if len(buf) > 0 {
		bufPtr = (*C.uchar)(unsafe.Pointer(&buf[0]))
	}
	C.ow_fill_interrupt_transfer(xfr, t.handle, C.uchar(endpoint), bufPtr,
		C.int(len(buf)), C.uint(timeout.Milliseconds()), unsafe.Pointer(&p.handle))

	if rc := C.libusb_submit_transfer(xfr); rc != 0 {
		p.handle.Delete()
		C.libusb_free_transfer(xfr)
		return ErrTransferSubmit
	}
	*slot = p
	return nil
}

// SubmitInterruptIn implements Transport.
func (t *cgoTransport) SubmitInterruptIn(buf []byte, timeout time.Duration, onComplete TransferCompleteFn) error {
	return t.submit(buf, t.inEp, timeout, onComplete, &t.inPending)
}

// SubmitInterruptOut implements Transport.
func (t *cgoTransport) SubmitInterruptOut(buf []byte, timeout time.Duration, onComplete TransferCompleteFn) error {
	return t.submit(buf, t.outEp, timeout, onComplete, &t.outPending)
}

// HandleEvents implements Transport.
func (t *cgoTransport) HandleEvents(timeout time.Duration) error {
	tv := C.struct_timeval{
		tv_sec:  C.long(timeout / time.Second),
		tv_usec: C.long((timeout % time.Second) / time.Microsecond),
	}
	if rc := C.libusb_handle_events_timeout(t.ctx, &tv); rc != 0 {
		return fmt.Errorf("usb: libusb_handle_events_timeout: %s", libusbErrString(rc))
	}
	return nil
}

// ReadSerialNumber implements Transport.
func (t *cgoTransport) ReadSerialNumber() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle == nil {
		return "", ErrNotOpen
	}
	dev := C.libusb_get_device(t.handle)
	var desc C.struct_libusb_device_descriptor
	if rc := C.libusb_get_device_descriptor(dev, &desc); rc != 0 {
		return "", fmt.Errorf("usb: libusb_get_device_descriptor: %s", libusbErrString(rc))
	}
	if desc.iSerialNumber == 0 {
		return "", nil
	}
	buf := make([]byte, 256)
	n := C.libusb_get_string_descriptor_ascii(t.handle, desc.iSerialNumber,
		(*C.uchar)(unsafe.Pointer(&buf[0])), C.int(len(buf)))
	if n < 0 {
		return "", fmt.Errorf("usb: libusb_get_string_descriptor_ascii: %s", libusbErrString(C.int(n)))
	}
	return string(buf[:n]), nil
}

func libusbErrString(rc C.int) string {
	return C.GoString(C.libusb_error_name(rc))
}

//export goTransferCallback
func goTransferCallback(xfr *C.struct_libusb_transfer) {
	handlePtr := (*cgo.Handle)(xfr.user_data)
	p := handlePtr.Value().(*pendingTransfer)
	handlePtr.Delete()

	n := int(xfr.actual_length)
	var err error
	switch xfr.status {
	case C.LIBUSB_TRANSFER_COMPLETED:
	case C.LIBUSB_TRANSFER_TIMED_OUT:
		err = ErrTransferTimeout
	default:
		err = fmt.Errorf("usb: transfer failed with status %d", int(xfr.status))
	}
	C.libusb_free_transfer(xfr)
	p.onDone(n, err)
}
