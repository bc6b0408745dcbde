package hid

import (
	"encoding/binary"
	"fmt"
)

const (
	// ReportID is the HID report ID for brightness control.
	ReportID byte = 0x01

	// ReportSize is the size of the HID feature report in bytes.
	ReportSize = 7

	// AppleVendorID is the USB vendor ID for Apple.
	AppleVendorID uint16 = 0x05ac

	// StudioDisplayProductID is the USB product ID for Apple Studio Display.
	StudioDisplayProductID uint16 = 0x1114

	// BrightnessInterface is the USB interface number for brightness control.
	BrightnessInterface = 0x07
)

// ReportLayout describes where the brightness value lives inside a feature
// report. All layouts share the 7-byte report with the report ID in byte 0
// and the brightness encoded little-endian starting at Offset; bytes past
// the value are reserved and stay zero.
type ReportLayout struct {
	Size   int // total report length including the report ID byte
	Offset int // index of the first brightness byte
	Width  int // brightness field width in bytes (2 or 4)
}

var (
	// LayoutWide encodes brightness as a 32-bit value in bytes 1-4. This is
	// the layout current Studio Display firmware speaks and the one both
	// shipped backends use.
	LayoutWide = ReportLayout{Size: ReportSize, Offset: 1, Width: 4}

	// LayoutNarrow encodes brightness as a 16-bit value in bytes 1-2,
	// as seen in early brightness-control tools.
	LayoutNarrow = ReportLayout{Size: ReportSize, Offset: 1, Width: 2}
)

// NewRequest returns a zeroed report buffer with the report ID set,
// ready to be filled or passed to a feature-report read.
func (l ReportLayout) NewRequest() []byte {
	data := make([]byte, l.Size)
	data[0] = ReportID
	return data
}

// Encode builds a feature report carrying the given brightness value.
func (l ReportLayout) Encode(nits uint32) []byte {
	data := l.NewRequest()
	switch l.Width {
	case 2:
		binary.LittleEndian.PutUint16(data[l.Offset:], uint16(nits))
	default:
		binary.LittleEndian.PutUint32(data[l.Offset:], nits)
	}
	return data
}

// Decode extracts the brightness value from a feature report.
// Reports of the wrong length fail with ErrUnexpectedReportSize.
func (l ReportLayout) Decode(data []byte) (uint32, error) {
	if len(data) != l.Size {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrUnexpectedReportSize, len(data), l.Size)
	}
	switch l.Width {
	case 2:
		return uint32(binary.LittleEndian.Uint16(data[l.Offset:])), nil
	default:
		return binary.LittleEndian.Uint32(data[l.Offset:]), nil
	}
}
