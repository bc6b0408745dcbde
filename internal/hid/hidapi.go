package hid

import (
	"fmt"
	"path/filepath"

	karalabehid "github.com/karalabe/hid"
	"github.com/rs/zerolog/log"
)

// DefaultNodePattern is the glob checked by the fast discovery path. A udev
// rule typically installs a stable symlink for the display's hidraw node,
// which lets discovery skip a full enumeration pass.
const DefaultNodePattern = "/dev/studio-display*"

// HIDAPIDevice wraps a karalabe/hid device to implement the Device interface.
type HIDAPIDevice struct {
	device karalabehid.Device // karalabe/hid.Device is an interface
	info   DeviceInfo
}

// Verify HIDAPIDevice implements Device interface.
var _ Device = (*HIDAPIDevice)(nil)

// NewHIDAPIDevice creates a new HIDAPIDevice from an open hid.Device.
func NewHIDAPIDevice(device karalabehid.Device, info DeviceInfo) *HIDAPIDevice {
	return &HIDAPIDevice{
		device: device,
		info:   info,
	}
}

// GetFeatureReport reads a feature report from the device.
func (d *HIDAPIDevice) GetFeatureReport(data []byte) (int, error) {
	n, err := d.device.GetFeatureReport(data)
	if err != nil {
		return n, fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}
	return n, nil
}

// SendFeatureReport writes a feature report to the device.
func (d *HIDAPIDevice) SendFeatureReport(data []byte) (int, error) {
	n, err := d.device.SendFeatureReport(data)
	if err != nil {
		return n, fmt.Errorf("%w: %s", ErrTransferFailed, err)
	}
	return n, nil
}

// Close closes the device handle.
func (d *HIDAPIDevice) Close() error {
	return d.device.Close()
}

// Info returns information about the device.
func (d *HIDAPIDevice) Info() DeviceInfo {
	return d.info
}

// enumerator lists attached HID devices. It exists so discovery can be
// tested against a fake enumeration without hardware.
type enumerator func(vendorID, productID uint16) ([]karalabehid.DeviceInfo, error)

// EnumerateDisplays returns a list of all connected Apple Studio Displays.
// Returns an error if device enumeration fails.
func EnumerateDisplays() ([]DeviceInfo, error) {
	candidates, err := findCandidates(karalabehid.Enumerate)
	if err != nil {
		return nil, err
	}

	displays := make([]DeviceInfo, 0, len(candidates))
	for _, device := range candidates {
		displays = append(displays, deviceInfoFrom(device))
	}
	return displays, nil
}

// OpenDisplay opens a connection to the first attached Apple Studio Display.
// When nodePattern is non-empty and a stable device node matching it exists,
// that node selects the display; otherwise discovery falls back to full HID
// enumeration filtered on vendor, product and interface. When several
// displays are attached the first enumerated one wins.
func OpenDisplay(nodePattern string) (*HIDAPIDevice, error) {
	return openDisplay(nodePattern, karalabehid.Enumerate)
}

func openDisplay(nodePattern string, enumerate enumerator) (*HIDAPIDevice, error) {
	candidates, err := findCandidates(enumerate)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrDeviceNotFound
	}
	if len(candidates) > 1 {
		log.Warn().Int("count", len(candidates)).Msg("Multiple displays attached, using the first one")
	}

	selected := selectCandidate(candidates, lookupNode(nodePattern))

	device, err := selected.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOpenFailed, err)
	}

	return NewHIDAPIDevice(device, deviceInfoFrom(selected)), nil
}

// findCandidates enumerates by vendor and product and keeps the devices
// exposing the brightness interface.
func findCandidates(enumerate enumerator) ([]karalabehid.DeviceInfo, error) {
	devices, err := enumerate(AppleVendorID, StudioDisplayProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	var candidates []karalabehid.DeviceInfo
	for _, deviceInfo := range devices {
		if deviceInfo.Interface == BrightnessInterface {
			candidates = append(candidates, deviceInfo)
		}
	}
	return candidates, nil
}

// selectCandidate picks the candidate the stable node refers to, falling back
// to the first enumerated one. The node is typically a udev symlink to the
// real hidraw device, so it is resolved before comparing.
func selectCandidate(candidates []karalabehid.DeviceInfo, node string) karalabehid.DeviceInfo {
	if node == "" {
		return candidates[0]
	}
	if resolved, err := filepath.EvalSymlinks(node); err == nil {
		node = resolved
	}
	for _, deviceInfo := range candidates {
		if deviceInfo.Path == node || filepath.Base(deviceInfo.Path) == filepath.Base(node) {
			return deviceInfo
		}
	}
	return candidates[0]
}

// lookupNode resolves the fast discovery path: the first filesystem entry
// matching the pattern, or "" when none exists.
func lookupNode(pattern string) string {
	if pattern == "" {
		return ""
	}
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}
	log.Debug().Str("node", matches[0]).Msg("Found stable device node")
	return matches[0]
}

func deviceInfoFrom(device karalabehid.DeviceInfo) DeviceInfo {
	return DeviceInfo{
		Path:         device.Path,
		VendorID:     device.VendorID,
		ProductID:    device.ProductID,
		Serial:       device.Serial,
		Manufacturer: device.Manufacturer,
		Product:      device.Product,
		Interface:    device.Interface,
	}
}
