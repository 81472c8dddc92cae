package wire

import "fmt"

// ElektronVendorID is the USB vendor id shared by every Overbridge
// device.
const ElektronVendorID uint16 = 0x1935

// Track describes a single audio channel carried in a wire Frame: its
// display name and the width, in bytes, of its sample slot (3 or 4).
type Track struct {
	Name       string
	SampleSize int
}

// Device is the immutable, read-only descriptor for one Overbridge
// product: its USB ids, display name, and per-direction track layout.
// InputTracks are host-to-device (h2o) samples; OutputTracks are
// device-to-host (o2h) samples, matching the device's own notion of
// "input"/"output" audio.
type Device struct {
	ProductID    uint16
	Name         string
	InputTracks  []Track
	OutputTracks []Track
}

// Inputs returns the number of host-to-device tracks.
func (d Device) Inputs() int {
	return len(d.InputTracks)
}

// Outputs returns the number of device-to-host tracks.
func (d Device) Outputs() int {
	return len(d.OutputTracks)
}

// InputFrameSize returns the byte size of one host-to-device frame: the
// sum of every input track's sample size.
func (d Device) InputFrameSize() int {
	return frameSize(d.InputTracks)
}

// OutputFrameSize returns the byte size of one device-to-host frame: the
// sum of every output track's sample size.
func (d Device) OutputFrameSize() int {
	return frameSize(d.OutputTracks)
}

func frameSize(tracks []Track) int {
	n := 0
	for _, t := range tracks {
		n += t.SampleSize
	}
	return n
}

func tracks4(names ...string) []Track {
	out := make([]Track, len(names))
	for i, n := range names {
		out[i] = Track{Name: n, SampleSize: 4}
	}
	return out
}

// Devices is the read-only table of recognised Overbridge products,
// grounded on the vendor/product ids and track layouts of the original
// Overwitch device table.
var Devices = []Device{
	{
		ProductID: 0x0004,
		Name:      "Analog Four MKI",
		InputTracks: tracks4(
			"Main L Input", "Main R Input",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "Synth Track 1", "Synth Track 2",
		),
	},
	{
		ProductID: 0x0006,
		Name:      "Analog Keys",
		InputTracks: tracks4(
			"Main L Input", "Main R Input",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "Synth Track 1", "Synth Track 2",
		),
	},
	{
		ProductID: 0x0008,
		Name:      "Analog Rytm MKI",
		InputTracks: tracks4(
			"Main L Input", "Main R Input", "Main FX L Input", "Main FX R Input",
			"BD Input", "SD Input", "RS/CP Input", "BT Input",
			"LT Input", "MT/HT Input", "CH/OH Input", "CY/CB Input",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "BD", "SD", "RS/CP",
			"BT", "LT", "MT/HT", "CH/OH", "CY/CB", "Input L", "Input R",
		),
	},
	{
		ProductID: 0x000a,
		Name:      "Analog Heat",
		InputTracks: tracks4(
			"Main L Input", "Main R Input", "FX Send L", "FX Send R",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "FX Return L", "FX Return R",
		),
	},
	{
		ProductID: 0x000c,
		Name:      "Digitakt",
		InputTracks: tracks4(
			"Main L Input", "Main R Input",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "Track 1", "Track 2", "Track 3", "Track 4",
			"Track 5", "Track 6", "Track 7", "Track 8", "Input L", "Input R",
		),
	},
	{
		ProductID: 0x000e,
		Name:      "Analog Four MKII",
		InputTracks: tracks4(
			"Main L Input", "Main R Input", "Synth Track 1 Input",
			"Synth Track 2 Input", "Synth Track 3 Input", "Synth Track 4 Input",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "Synth Track 1", "Synth Track 2",
			"Synth Track 3", "Synth Track 4", "Input L", "Input R",
		),
	},
	{
		ProductID: 0x0010,
		Name:      "Analog Rytm MKII",
		InputTracks: tracks4(
			"Main L Input", "Main R Input", "Main FX L Input", "Main FX R Input",
			"BD Input", "SD Input", "RS/CP Input", "BT Input",
			"LT Input", "MT/HT Input", "CH/OH Input", "CY/CB Input",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "BD", "SD", "RS/CP",
			"BT", "LT", "MT/HT", "CH/OH", "CY/CB", "Input L", "Input R",
		),
	},
	{
		ProductID: 0x0014,
		Name:      "Digitone",
		InputTracks: tracks4(
			"Main L Input", "Main R Input",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "Track 1 L", "Track 1 R", "Track 2 L",
			"Track 2 R", "Track 3 L", "Track 3 R", "Track 4 L", "Track 4 R",
			"Input L", "Input R",
		),
	},
	{
		ProductID: 0x0016,
		Name:      "Analog Heat MKII",
		InputTracks: tracks4(
			"Main L Input", "Main R Input", "FX Send L", "FX Send R",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "FX Return L", "FX Return R",
		),
	},
	{
		ProductID: 0x001c,
		Name:      "Digitone Keys",
		InputTracks: tracks4(
			"Main L Input", "Main R Input",
		),
		OutputTracks: tracks4(
			"Main L", "Main R", "Track 1 L", "Track 1 R", "Track 2 L",
			"Track 2 R", "Track 3 L", "Track 3 R", "Track 4 L", "Track 4 R",
			"Input L", "Input R",
		),
	},
}

// LookupDevice returns the Device descriptor for productID, and false if
// productID is not a recognised Overbridge product.
func LookupDevice(productID uint16) (Device, bool) {
	for _, d := range Devices {
		if d.ProductID == productID {
			return d, true
		}
	}
	return Device{}, false
}

func (d Device) String() string {
	return fmt.Sprintf("%s (in=%d out=%d)", d.Name, d.Inputs(), d.Outputs())
}
