package usb

import (
	"errors"
	"fmt"

	"github.com/google/gousb"
	"github.com/rs/zerolog/log"

	"github.com/shini4i/asdctl/internal/hid"
)

// gousbHandle implements Handle over a libusb device with the brightness
// interface claimed and the kernel driver detached.
type gousbHandle struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
}

// Verify gousbHandle implements Handle.
var _ Handle = (*gousbHandle)(nil)

// Open discovers the display on the USB bus by vendor and product ID, detaches
// the kernel driver from the brightness interface and claims it. The returned
// device must be closed so the interface is released and the kernel driver
// reattached; this holds even when a later transfer fails.
func Open() (*Device, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(
		gousb.ID(hid.AppleVendorID), gousb.ID(hid.StudioDisplayProductID))
	if err != nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("%w: %s", hid.ErrOpenFailed, err)
	}
	if dev == nil {
		_ = ctx.Close()
		return nil, hid.ErrDeviceNotFound
	}

	// Auto-detach takes the kernel driver off the interface on claim and
	// puts it back on release.
	if err := dev.SetAutoDetach(true); err != nil {
		closeQuietly(dev, ctx)
		return nil, fmt.Errorf("%w: auto-detach: %s", hid.ErrClaimFailed, err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		closeQuietly(dev, ctx)
		return nil, fmt.Errorf("%w: config: %s", hid.ErrClaimFailed, err)
	}

	intf, err := cfg.Interface(hid.BrightnessInterface, 0)
	if err != nil {
		_ = cfg.Close()
		closeQuietly(dev, ctx)
		return nil, fmt.Errorf("%w: %s", hid.ErrClaimFailed, err)
	}

	dev.ControlTimeout = requestTimeout

	info := hid.DeviceInfo{
		VendorID:  hid.AppleVendorID,
		ProductID: hid.StudioDisplayProductID,
		Interface: hid.BrightnessInterface,
	}
	// String descriptors are informational only; the device works without them.
	if serial, err := dev.SerialNumber(); err == nil {
		info.Serial = serial
	}
	if product, err := dev.Product(); err == nil {
		info.Product = product
	}
	if manufacturer, err := dev.Manufacturer(); err == nil {
		info.Manufacturer = manufacturer
	}

	log.Debug().
		Str("serial", info.Serial).
		Int("interface", info.Interface).
		Msg("Claimed brightness interface")

	return NewDevice(&gousbHandle{ctx: ctx, dev: dev, cfg: cfg, intf: intf}, info), nil
}

// ControlIn issues a class IN control transfer to the claimed interface.
func (h *gousbHandle) ControlIn(req ControlRequest, data []byte) (int, error) {
	h.dev.ControlTimeout = req.Timeout
	return h.dev.Control(
		gousb.ControlIn|gousb.ControlClass|gousb.ControlInterface,
		req.Request, req.Value, req.Index, data)
}

// ControlOut issues a class OUT control transfer to the claimed interface.
func (h *gousbHandle) ControlOut(req ControlRequest, data []byte) (int, error) {
	h.dev.ControlTimeout = req.Timeout
	return h.dev.Control(
		gousb.ControlOut|gousb.ControlClass|gousb.ControlInterface,
		req.Request, req.Value, req.Index, data)
}

// Release gives the interface back to the kernel driver and closes everything
// acquired by Open, in reverse order.
func (h *gousbHandle) Release() error {
	h.intf.Close()
	return errors.Join(h.cfg.Close(), h.dev.Close(), h.ctx.Close())
}

func closeQuietly(dev *gousb.Device, ctx *gousb.Context) {
	if err := dev.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close USB device")
	}
	if err := ctx.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close USB context")
	}
}
