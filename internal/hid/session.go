// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Session caches one open display and reopens it on demand. Long-lived
// callers such as the D-Bus service go through a Session so a hot-plugged
// or errored display is picked up again on the next operation instead of
// paying an open/claim cycle per call.
type Session struct {
	open    Opener
	mu      sync.Mutex
	display *Display
}

// NewSession creates a session that opens display handles with the given opener.
func NewSession(open Opener) *Session {
	return &Session{open: open}
}

// Display returns the cached display, opening one if necessary.
func (s *Session) Display() (*Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.display != nil {
		return s.display, nil
	}

	device, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open display: %w", err)
	}

	s.display = NewDisplay(device)
	log.Info().
		Str("serial", s.display.Serial()).
		Str("product", s.display.ProductName()).
		Msg("Display connected")
	return s.display, nil
}

// Reset drops the cached display so the next Display call reopens it.
// Called after device errors and hot-plug events.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.display == nil {
		return
	}
	if err := s.display.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close display during reset")
	}
	s.display = nil
}

// Connected reports whether a display handle is currently open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display != nil
}

// Close closes the cached display, if any.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.display == nil {
		return nil
	}
	err := s.display.Close()
	s.display = nil
	return err
}
