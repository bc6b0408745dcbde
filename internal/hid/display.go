package hid

import (
	"fmt"
	"sync"

	"github.com/shini4i/asdctl/internal/brightness"
)

// Display represents an Apple Studio Display with brightness control capabilities.
// All methods are thread-safe and can be called concurrently.
type Display struct {
	device Device
	layout ReportLayout
	mu     sync.Mutex
	closed bool
}

// NewDisplay creates a new Display instance wrapping the given device,
// speaking the wide (32-bit) report layout.
func NewDisplay(device Device) *Display {
	return NewDisplayWithLayout(device, LayoutWide)
}

// NewDisplayWithLayout creates a Display using an explicit report layout.
func NewDisplayWithLayout(device Device, layout ReportLayout) *Display {
	return &Display{device: device, layout: layout}
}

// BrightnessNits reads the current brightness from the display in nits.
func (d *Display) BrightnessNits() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nitsLocked()
}

// Brightness reads the current brightness from the display and returns it as a percentage (0-100).
func (d *Display) Brightness() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nits, err := d.nitsLocked()
	if err != nil {
		return 0, err
	}
	return brightness.NitsToPercent(nits), nil
}

// SetBrightness sets the display brightness to the specified percentage (0-100).
func (d *Display) SetBrightness(percent uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setLocked(percent)
}

// IncreaseBrightness raises the brightness by step percent, saturating at 100%.
// It returns the resulting percentage. The read and the write are two separate
// transfers; there is no transactional guarantee from the hardware.
func (d *Display) IncreaseBrightness(step uint8) (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nits, err := d.nitsLocked()
	if err != nil {
		return 0, err
	}
	next := brightness.StepUp(brightness.NitsToPercent(nits), step)
	if err := d.setLocked(next); err != nil {
		return 0, err
	}
	return next, nil
}

// DecreaseBrightness lowers the brightness by step percent, saturating at 0%.
// It returns the resulting percentage.
func (d *Display) DecreaseBrightness(step uint8) (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nits, err := d.nitsLocked()
	if err != nil {
		return 0, err
	}
	next := brightness.StepDown(brightness.NitsToPercent(nits), step)
	if err := d.setLocked(next); err != nil {
		return 0, err
	}
	return next, nil
}

func (d *Display) nitsLocked() (uint32, error) {
	if d.closed {
		return 0, ErrDisplayClosed
	}

	data := d.layout.NewRequest()
	n, err := d.device.GetFeatureReport(data)
	if err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}
	if n != d.layout.Size {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrUnexpectedReportSize, n, d.layout.Size)
	}

	return d.layout.Decode(data)
}

func (d *Display) setLocked(percent uint8) error {
	if d.closed {
		return ErrDisplayClosed
	}

	// PercentToNits clamps, so the device never sees a value outside the
	// 400-60000 nits range.
	data := d.layout.Encode(brightness.PercentToNits(percent))

	if _, err := d.device.SendFeatureReport(data); err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}
	return nil
}

// Serial returns the serial number of the display.
// This method does not require locking as device info is immutable.
func (d *Display) Serial() string {
	return d.device.Info().Serial
}

// ProductName returns the product name of the display.
// This method does not require locking as device info is immutable.
func (d *Display) ProductName() string {
	return d.device.Info().Product
}

// Close closes the underlying device handle.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil // Already closed
	}

	d.closed = true
	return d.device.Close()
}
