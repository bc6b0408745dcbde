// SPDX-License-Identifier: GPL-3.0-only

// Package dbus provides the D-Bus service implementation for Apple Studio Display brightness control.
package dbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/shini4i/asdctl/internal/brightness"
	"github.com/shini4i/asdctl/internal/hid"
)

// ErrRateLimitExceeded is returned when brightness change requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

const (
	// rateLimitPerSecond is the maximum number of brightness changes per second.
	rateLimitPerSecond = 20

	// rateLimitBurst is the maximum burst size for brightness changes.
	rateLimitBurst = 5
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.shini4i.Asdctl"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/shini4i/Asdctl"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.shini4i.Asdctl"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="GetBrightness">
      <arg name="brightness" type="u" direction="out"/>
    </method>
    <method name="SetBrightness">
      <arg name="brightness" type="u" direction="in"/>
    </method>
    <method name="IncreaseBrightness">
      <arg name="step" type="u" direction="in"/>
      <arg name="brightness" type="u" direction="out"/>
    </method>
    <method name="DecreaseBrightness">
      <arg name="step" type="u" direction="in"/>
      <arg name="brightness" type="u" direction="out"/>
    </method>
    <signal name="BrightnessChanged">
      <arg name="brightness" type="u"/>
    </signal>
    <signal name="DisplayAdded">
      <arg name="serial" type="s"/>
      <arg name="productName" type="s"/>
    </signal>
    <signal name="DisplayRemoved"/>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// DisplayProvider supplies the display the service operates on and lets the
// service drop a stale handle after a device error.
type DisplayProvider interface {
	// Display returns the current display, opening one if necessary.
	Display() (*hid.Display, error)

	// Reset drops the cached display so the next Display call reopens it.
	Reset()
}

// Server implements the D-Bus service for brightness control.
//
// Thread safety:
//   - The DisplayProvider and hid.Display types are individually thread-safe.
//   - The connMu mutex protects the D-Bus connection field for signal emission.
//   - Note: IncreaseBrightness and DecreaseBrightness perform non-atomic
//     read-modify-write operations. Concurrent calls may result in missed
//     increments. This is acceptable for typical keyboard shortcut usage.
type Server struct {
	conn        *dbus.Conn
	connMu      sync.RWMutex // Protects conn field only
	provider    DisplayProvider
	rateLimiter *rate.Limiter
}

// NewServer creates a new D-Bus server backed by the given display provider.
func NewServer(provider DisplayProvider) *Server {
	return &Server{
		provider:    provider,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
}

// Start connects to the session bus and exports the service.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	// Export the server object
	err = conn.Export(s, ObjectPath, InterfaceName)
	if err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	// Export introspectable interface
	err = conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	// Request the service name
	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	// Store connection with mutex protection
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// display fetches the current display from the provider.
func (s *Server) display() (*hid.Display, *dbus.Error) {
	display, err := s.provider.Display()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open display")
		return nil, dbus.MakeFailedError(err)
	}
	return display, nil
}

// dropOnDeviceError resets the provider so a disconnected or wedged display
// gets reopened on the next call.
func (s *Server) dropOnDeviceError(err error) {
	log.Warn().Err(err).Msg("Device error, dropping display handle")
	s.provider.Reset()
}

// GetBrightness returns the display brightness as a percentage (0-100).
func (s *Server) GetBrightness() (uint32, *dbus.Error) {
	display, derr := s.display()
	if derr != nil {
		return 0, derr
	}

	percent, err := display.Brightness()
	if err != nil {
		s.dropOnDeviceError(err)
		log.Error().Err(err).Msg("Failed to get brightness")
		return 0, dbus.MakeFailedError(err)
	}

	log.Debug().Uint8("brightness", percent).Msg("Got brightness")
	return uint32(percent), nil
}

// SetBrightness sets the display brightness to a percentage (0-100).
func (s *Server) SetBrightness(percent uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetBrightness")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if percent > 100 {
		return dbus.MakeFailedError(brightness.ErrInvalidPercent)
	}

	display, derr := s.display()
	if derr != nil {
		return derr
	}

	// #nosec G115 -- percent is validated to 0-100, safe for uint8
	if err := display.SetBrightness(uint8(percent)); err != nil {
		s.dropOnDeviceError(err)
		log.Error().Err(err).Msg("Failed to set brightness")
		return dbus.MakeFailedError(err)
	}

	log.Debug().Uint32("brightness", percent).Msg("Set brightness")
	s.emitBrightnessChanged(percent)

	return nil
}

// IncreaseBrightness raises the brightness by a step between 1 and 100 and
// returns the resulting percentage.
func (s *Server) IncreaseBrightness(step uint32) (uint32, *dbus.Error) {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for IncreaseBrightness")
		return 0, dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if step < 1 || step > 100 {
		return 0, dbus.MakeFailedError(brightness.ErrInvalidStep)
	}

	display, derr := s.display()
	if derr != nil {
		return 0, derr
	}

	// #nosec G115 -- step is validated to 1-100, safe for uint8
	next, err := display.IncreaseBrightness(uint8(step))
	if err != nil {
		s.dropOnDeviceError(err)
		return 0, dbus.MakeFailedError(err)
	}

	log.Debug().Uint32("step", step).Uint8("new", next).Msg("Increased brightness")
	s.emitBrightnessChanged(uint32(next))

	return uint32(next), nil
}

// DecreaseBrightness lowers the brightness by a step between 1 and 100 and
// returns the resulting percentage.
func (s *Server) DecreaseBrightness(step uint32) (uint32, *dbus.Error) {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for DecreaseBrightness")
		return 0, dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if step < 1 || step > 100 {
		return 0, dbus.MakeFailedError(brightness.ErrInvalidStep)
	}

	display, derr := s.display()
	if derr != nil {
		return 0, derr
	}

	// #nosec G115 -- step is validated to 1-100, safe for uint8
	next, err := display.DecreaseBrightness(uint8(step))
	if err != nil {
		s.dropOnDeviceError(err)
		return 0, dbus.MakeFailedError(err)
	}

	log.Debug().Uint32("step", step).Uint8("new", next).Msg("Decreased brightness")
	s.emitBrightnessChanged(uint32(next))

	return uint32(next), nil
}

// emitBrightnessChanged emits the BrightnessChanged signal.
func (s *Server) emitBrightnessChanged(percent uint32) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".BrightnessChanged", percent)
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit BrightnessChanged signal")
	}
}

// EmitDisplayAdded emits the DisplayAdded signal.
func (s *Server) EmitDisplayAdded(serial, productName string) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".DisplayAdded", serial, productName)
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit DisplayAdded signal")
	}
	log.Info().Str("serial", serial).Str("product", productName).Msg("Display added")
}

// EmitDisplayRemoved emits the DisplayRemoved signal.
func (s *Server) EmitDisplayRemoved() {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	err := conn.Emit(ObjectPath, InterfaceName+".DisplayRemoved")
	if err != nil {
		log.Error().Err(err).Msg("Failed to emit DisplayRemoved signal")
	}
	log.Info().Msg("Display removed")
}
