// Package udev provides hot-plug detection for the Apple Studio Display via netlink/udev events.
package udev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// USB hot-plug generates many netlink messages rapidly; 2MB handles
	// typical scenarios without ENOBUFS.
	netlinkBufferSize = 2 * 1024 * 1024 // 2 MB
)

const (
	// AppleVendorID is the USB vendor ID for Apple devices (udev format, no leading zero).
	AppleVendorID = "5ac"

	// StudioDisplayProductID is the USB product ID for Apple Studio Display.
	StudioDisplayProductID = "1114"
)

// EventType represents the type of device event.
type EventType int

const (
	// EventAdd indicates the display was connected.
	EventAdd EventType = iota
	// EventRemove indicates the display was disconnected.
	EventRemove
	// EventResync indicates netlink events may have been dropped and the
	// caller should re-check the device state.
	EventResync
)

// Event represents a device hot-plug event.
type Event struct {
	Type EventType
}

// Handler is called when a device event occurs.
type Handler func(event Event)

// Monitor watches for Apple Studio Display connect/disconnect events.
type Monitor struct {
	conn    *netlink.UEventConn
	handler Handler
	quit    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler Handler) *Monitor {
	return &Monitor{
		handler: handler,
	}
}

// Start begins monitoring for device events.
// This method is non-blocking; events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	// Enlarge the socket receive buffer to avoid ENOBUFS during rapid
	// hot-plug event bursts.
	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.quit = m.conn.Monitor(queue, errs, m.createMatcher())
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	// Signal the monitor goroutine to stop
	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher creates a matcher for Apple Studio Display events.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	// The PRODUCT env var format is "vendorId/productId/bcdDevice"
	// (e.g., "5ac/1114/157"). The regex is anchored so "5ac/11149"
	// cannot match.
	addAction := "add"
	removeAction := "remove"
	productPattern := fmt.Sprintf("^%s/%s/[^/]+$", AppleVendorID, StudioDisplayProductID)

	rules.AddRule(netlink.RuleDefinition{
		Action: &addAction,
		Env: map[string]string{
			"SUBSYSTEM": "^usb$",
			"PRODUCT":   productPattern,
		},
	})

	rules.AddRule(netlink.RuleDefinition{
		Action: &removeAction,
		Env: map[string]string{
			"SUBSYSTEM": "^usb$",
			"PRODUCT":   productPattern,
		},
	})

	return rules
}

// processEvents handles incoming udev events.
func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			m.mu.Unlock()
			if stopped {
				return
			}

			// On a netlink buffer overflow events may have been dropped,
			// so tell the caller to re-check the device state.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, requesting resync")
				m.dispatch(Event{Type: EventResync})
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	// Filter for usb_device type only (not usb_interface) on ADD events.
	// On REMOVE, DEVTYPE may be absent since the device is already gone;
	// the matcher already limits us to Studio Display events.
	devtype := uevent.Env["DEVTYPE"]
	if uevent.Action == netlink.ADD && devtype != "usb_device" {
		return
	}

	log.Debug().
		Str("action", string(uevent.Action)).
		Str("devpath", uevent.KObj).
		Str("product", uevent.Env["PRODUCT"]).
		Msg("USB device event")

	switch uevent.Action {
	case netlink.ADD:
		log.Info().Str("product", uevent.Env["PRODUCT"]).Msg("Apple Studio Display connected")
		m.dispatch(Event{Type: EventAdd})
	case netlink.REMOVE:
		log.Info().Str("product", uevent.Env["PRODUCT"]).Msg("Apple Studio Display disconnected")
		m.dispatch(Event{Type: EventRemove})
	}
}

func (m *Monitor) dispatch(event Event) {
	if m.handler != nil {
		m.handler(event)
	}
}

// setSocketBufferSize sets the receive buffer size for a socket.
// It first tries SO_RCVBUFFORCE (requires CAP_NET_ADMIN), then falls back to SO_RCVBUF.
func setSocketBufferSize(fd int, size int) error {
	err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size)
	if err == nil {
		return nil
	}

	// SO_RCVBUF is capped by the net.core.rmem_max sysctl
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// Fallback for non-wrapped errors surfaced by the udev library
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}
