package usb

import "errors"

// Sentinel errors returned by Transport implementations. core.translateUsbErr
// maps these onto the module's own ErrT taxonomy so callers never need to
// import this package just to branch on failure modes.
var (
	ErrDeviceNotFound  = errors.New("usb: no matching device found")
	ErrOpenFailed      = errors.New("usb: failed to open device handle")
	ErrSetConfigFailed = errors.New("usb: failed to set device configuration")
	ErrClaimInterface  = errors.New("usb: failed to claim interface")
	ErrSetAltSetting   = errors.New("usb: failed to set interface alt setting")
	ErrClearHalt       = errors.New("usb: failed to clear endpoint halt")
	ErrTransferSubmit  = errors.New("usb: failed to submit transfer")
	ErrTransferPending = errors.New("usb: a transfer is already pending in this direction")
	ErrTransferTimeout = errors.New("usb: transfer timed out")
	ErrNotOpen         = errors.New("usb: transport is not open")
)
