package hid

import "errors"

var (
	// ErrDeviceNotFound is returned when no Apple Studio Display is attached.
	ErrDeviceNotFound = errors.New("no Apple Studio Display found")

	// ErrOpenFailed is returned when a discovered display cannot be opened.
	ErrOpenFailed = errors.New("failed to open display")

	// ErrClaimFailed is returned when the brightness interface cannot be claimed,
	// typically because the process lacks the required device permissions or a
	// kernel driver holds the interface.
	ErrClaimFailed = errors.New("failed to claim brightness interface")

	// ErrTransferFailed is returned when a control transfer errors or times out.
	ErrTransferFailed = errors.New("control transfer failed")

	// ErrUnexpectedReportSize is returned when the device answers with a feature
	// report of the wrong length.
	ErrUnexpectedReportSize = errors.New("unexpected feature report size")

	// ErrDisplayClosed is returned when an operation is attempted on a closed display.
	ErrDisplayClosed = errors.New("display is closed")
)
