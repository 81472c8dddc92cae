package usb

import (
	"testing"
	"time"
)

func TestMockTransportOpenCloseLifecycle(t *testing.T) {
	t.Parallel()

	tr := NewMockTransport(0x81, 0x02, "SN123")
	if _, err := tr.ReadSerialNumber(); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen before Open, got %v", err)
	}
	if err := tr.Open(0x1935, 0x000c); err != nil {
		t.Fatalf("Open: %v", err)
	}
	sn, err := tr.ReadSerialNumber()
	if err != nil || sn != "SN123" {
		t.Fatalf("ReadSerialNumber: got (%q, %v)", sn, err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMockTransportFailNextOpen(t *testing.T) {
	t.Parallel()

	tr := NewMockTransport(0x81, 0x02, "SN123")
	tr.FailNextOpen()
	if err := tr.Open(0x1935, 0x000c); err != ErrDeviceNotFound {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if err := tr.Open(0x1935, 0x000c); err != nil {
		t.Fatalf("second Open should succeed, got %v", err)
	}
}

func TestMockTransportTransferCompletion(t *testing.T) {
	t.Parallel()

	tr := NewMockTransport(0x81, 0x02, "SN123")
	tr.FillIn = func(buf []byte) {
		for i := range buf {
			buf[i] = 0xAA
		}
	}
	var drained []byte
	tr.DrainOut = func(buf []byte) {
		drained = append([]byte(nil), buf...)
	}
	if err := tr.Open(0x1935, 0x000c); err != nil {
		t.Fatalf("Open: %v", err)
	}

	inBuf := make([]byte, 16)
	outBuf := []byte{1, 2, 3, 4}

	var inN int
	var inErr error
	if err := tr.SubmitInterruptIn(inBuf, time.Second, func(n int, err error) {
		inN, inErr = n, err
	}); err != nil {
		t.Fatalf("SubmitInterruptIn: %v", err)
	}

	var outN int
	if err := tr.SubmitInterruptOut(outBuf, time.Second, func(n int, err error) {
		outN = n
	}); err != nil {
		t.Fatalf("SubmitInterruptOut: %v", err)
	}

	if err := tr.HandleEvents(time.Second); err != nil {
		t.Fatalf("HandleEvents: %v", err)
	}

	if inErr != nil || inN != len(inBuf) {
		t.Fatalf("IN completion: n=%d err=%v", inN, inErr)
	}
	for i, b := range inBuf {
		if b != 0xAA {
			t.Fatalf("IN buf[%d] = %#x, want 0xAA", i, b)
		}
	}
	if outN != len(outBuf) {
		t.Fatalf("OUT completion: n=%d", outN)
	}
	if string(drained) != string(outBuf) {
		t.Fatalf("DrainOut saw %v, want %v", drained, outBuf)
	}
}

func TestMockTransportRejectsDoubleSubmit(t *testing.T) {
	t.Parallel()

	tr := NewMockTransport(0x81, 0x02, "SN")
	if err := tr.Open(0x1935, 0x000c); err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 8)
	noop := func(int, error) {}
	if err := tr.SubmitInterruptIn(buf, time.Second, noop); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := tr.SubmitInterruptIn(buf, time.Second, noop); err != ErrTransferPending {
		t.Fatalf("expected ErrTransferPending, got %v", err)
	}
}
