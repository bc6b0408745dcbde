// Package usb implements brightness control over raw USB control transfers,
// the same path the display's vendor protocol was originally reverse
// engineered on. It talks HID class requests (GET_REPORT/SET_REPORT for
// feature reports) directly to the brightness interface instead of going
// through a hidapi binding.
package usb

import (
	"fmt"
	"time"

	"github.com/shini4i/asdctl/internal/hid"
)

const (
	// hidGetReport is the HID class bRequest for GET_REPORT.
	hidGetReport uint8 = 0x01

	// hidSetReport is the HID class bRequest for SET_REPORT.
	hidSetReport uint8 = 0x09

	// featureReportType is the HID report type placed in the high byte of wValue.
	featureReportType uint16 = 0x03

	// requestTimeout bounds every control transfer.
	requestTimeout = time.Second
)

// ControlRequest addresses one HID class control transfer. The direction and
// the Class/Interface bmRequestType bits are implied by which Handle method
// carries the request.
type ControlRequest struct {
	Request uint8         // bRequest
	Value   uint16        // wValue: (report type << 8) | report ID
	Index   uint16        // wIndex: target interface number
	Timeout time.Duration // per-transfer deadline
}

// Handle is the low-level transfer capability the protocol needs from a USB
// stack: an IN transfer, an OUT transfer, and a release that undoes the
// open/claim. Release must run on every exit path so the kernel driver gets
// the interface back even after a failed transfer.
type Handle interface {
	ControlIn(req ControlRequest, data []byte) (int, error)
	ControlOut(req ControlRequest, data []byte) (int, error)
	Release() error
}

// Device adapts a claimed Handle to the hid.Device interface, so the display
// logic is identical across backends.
type Device struct {
	handle Handle
	info   hid.DeviceInfo
}

// Verify Device implements hid.Device.
var _ hid.Device = (*Device)(nil)

// NewDevice wraps an already claimed handle.
func NewDevice(handle Handle, info hid.DeviceInfo) *Device {
	return &Device{handle: handle, info: info}
}

// featureValue builds the wValue for a feature report request:
// report type in the high byte, report ID in the low byte.
func featureValue(reportID byte) uint16 {
	return featureReportType<<8 | uint16(reportID)
}

// GetFeatureReport reads a feature report. The first byte of data carries the
// report ID and the buffer length is the expected report size.
func (d *Device) GetFeatureReport(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty report buffer")
	}

	req := ControlRequest{
		Request: hidGetReport,
		Value:   featureValue(data[0]),
		Index:   uint16(d.info.Interface),
		Timeout: requestTimeout,
	}

	n, err := d.handle.ControlIn(req, data)
	if err != nil {
		return n, fmt.Errorf("%w: %s", hid.ErrTransferFailed, err)
	}
	return n, nil
}

// SendFeatureReport writes a feature report. No response payload is expected;
// success is the absence of a transfer error.
func (d *Device) SendFeatureReport(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty report buffer")
	}

	req := ControlRequest{
		Request: hidSetReport,
		Value:   featureValue(data[0]),
		Index:   uint16(d.info.Interface),
		Timeout: requestTimeout,
	}

	n, err := d.handle.ControlOut(req, data)
	if err != nil {
		return n, fmt.Errorf("%w: %s", hid.ErrTransferFailed, err)
	}
	return n, nil
}

// Close releases the claimed interface and reattaches the kernel driver.
func (d *Device) Close() error {
	return d.handle.Release()
}

// Info returns information about the device.
func (d *Device) Info() hid.DeviceInfo {
	return d.info
}
