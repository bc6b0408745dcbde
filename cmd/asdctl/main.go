// Package main provides the asdctl command for controlling Apple Studio Display brightness.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/asdctl/internal/brightness"
	asddbus "github.com/shini4i/asdctl/internal/dbus"
	"github.com/shini4i/asdctl/internal/hid"
	"github.com/shini4i/asdctl/internal/udev"
	"github.com/shini4i/asdctl/internal/usb"
)

const (
	backendUSB    = "usb"
	backendHIDAPI = "hidapi"

	defaultStep = 10

	// enumerationDelay gives a freshly plugged display time to enumerate all
	// of its interfaces before the brightness interface is probed.
	enumerationDelay = 500 * time.Millisecond
)

var (
	verbose bool
	backend string
	step    int

	rootCmd = &cobra.Command{
		Use:   "asdctl",
		Short: "Control Apple Studio Display brightness via USB HID",
		Long: `asdctl queries and sets the backlight brightness of an Apple Studio
Display by sending HID feature reports over USB.

One-shot commands (get, set, up, down, list) open the display, perform a
single operation and release it. The serve command runs a D-Bus service
with hot-plug detection instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
			warnPrivileges()
		},
	}

	getCmd = &cobra.Command{
		Use:   "get",
		Short: "Print the current brightness in percent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			display, err := openDisplay()
			if err != nil {
				return err
			}
			defer closeDisplay(display)

			nits, err := display.BrightnessNits()
			if err != nil {
				return err
			}
			log.Debug().Uint32("nits", nits).Msg("Read brightness")
			fmt.Println(brightness.NitsToPercent(nits))
			return nil
		},
	}

	setCmd = &cobra.Command{
		Use:   "set <percent>",
		Short: "Set the brightness to a percentage (0-100)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			percent, err := parsePercent(args[0])
			if err != nil {
				return err
			}

			display, err := openDisplay()
			if err != nil {
				return err
			}
			defer closeDisplay(display)

			// #nosec G115 -- percent is validated to 0-100, safe for uint8
			if err := display.SetBrightness(uint8(percent)); err != nil {
				return err
			}
			log.Debug().Uint32("nits", brightness.PercentToNits(uint8(percent))).Msg("Wrote brightness")
			fmt.Println(percent)
			return nil
		},
	}

	upCmd = &cobra.Command{
		Use:   "up",
		Short: "Increase the brightness by a step (default 10%)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(func(display *hid.Display, step uint8) (uint8, error) {
				return display.IncreaseBrightness(step)
			})
		},
	}

	downCmd = &cobra.Command{
		Use:   "down",
		Short: "Decrease the brightness by a step (default 10%)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStep(func(display *hid.Display, step uint8) (uint8, error) {
				return display.DecreaseBrightness(step)
			})
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List attached Apple Studio Displays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			displays, err := hid.EnumerateDisplays()
			if err != nil {
				return err
			}
			if len(displays) == 0 {
				return hid.ErrDeviceNotFound
			}
			if len(displays) > 1 {
				log.Warn().Int("count", len(displays)).Msg("Multiple displays attached, commands target the first one")
			}
			for _, d := range displays {
				fmt.Printf("%s\t%s\t%s\n", d.Serial, d.Product, d.Path)
			}
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the D-Bus brightness service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", backendUSB,
		"device access backend: usb (raw control transfers) or hidapi")
	upCmd.Flags().IntVarP(&step, "step", "s", defaultStep, "step size in percent (1-100)")
	downCmd.Flags().IntVarP(&step, "step", "s", defaultStep, "step size in percent (1-100)")

	rootCmd.AddCommand(getCmd, setCmd, upCmd, downCmd, listCmd, serveCmd)
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// warnPrivileges is advisory only: claiming the brightness interface usually
// requires udev rules granting device-node access, or root.
func warnPrivileges() {
	if os.Geteuid() != 0 {
		log.Warn().Msg("Running without root, device access requires matching udev rules")
	}
}

// openerFor maps a backend name to its device opener.
func openerFor(name string) (hid.Opener, error) {
	switch name {
	case backendUSB:
		return func() (hid.Device, error) { return usb.Open() }, nil
	case backendHIDAPI:
		return func() (hid.Device, error) { return hid.OpenDisplay(hid.DefaultNodePattern) }, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", name, backendUSB, backendHIDAPI)
	}
}

func openDisplay() (*hid.Display, error) {
	open, err := openerFor(backend)
	if err != nil {
		return nil, err
	}
	device, err := open()
	if err != nil {
		return nil, err
	}
	return hid.NewDisplay(device), nil
}

// closeDisplay releases the display; close errors are logged, not returned,
// because the operation result has already been decided by then.
func closeDisplay(display *hid.Display) {
	if err := display.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close display")
	}
}

func parsePercent(arg string) (int, error) {
	percent, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid percent %q: %w", arg, brightness.ErrInvalidPercent)
	}
	if err := brightness.ValidatePercent(percent); err != nil {
		return 0, err
	}
	return percent, nil
}

func runStep(adjust func(display *hid.Display, step uint8) (uint8, error)) error {
	if err := brightness.ValidateStep(step); err != nil {
		return err
	}

	display, err := openDisplay()
	if err != nil {
		return err
	}
	defer closeDisplay(display)

	// #nosec G115 -- step is validated to 1-100, safe for uint8
	next, err := adjust(display, uint8(step))
	if err != nil {
		return err
	}
	fmt.Println(next)
	return nil
}

func runServe() error {
	open, err := openerFor(backend)
	if err != nil {
		return err
	}

	session := hid.NewSession(open)
	if _, err := session.Display(); err != nil {
		log.Warn().Err(err).Msg("No display available yet, waiting for hot-plug")
	}

	server := asddbus.NewServer(session)
	if err := server.Start(); err != nil {
		if closeErr := session.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close display session")
		}
		return fmt.Errorf("failed to start D-Bus server: %w", err)
	}

	monitor := udev.NewMonitor(createHotplugHandler(session, server))
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Service running, press Ctrl+C to stop")
	<-sigChan

	log.Info().Msg("Shutting down...")
	if err := monitor.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop udev monitor")
	}
	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop D-Bus server")
	}
	if err := session.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close display session")
	}

	log.Info().Msg("Service stopped")
	return nil
}

// createHotplugHandler reconnects the session on hot-plug events and emits
// the corresponding D-Bus signals.
func createHotplugHandler(session *hid.Session, server *asddbus.Server) udev.Handler {
	return func(event udev.Event) {
		switch event.Type {
		case udev.EventAdd:
			// USB devices need time to enumerate all interfaces before the
			// brightness interface becomes accessible.
			time.Sleep(enumerationDelay)
			session.Reset()
			display, err := session.Display()
			if err != nil {
				log.Warn().Err(err).Msg("Display announced but not yet accessible")
				return
			}
			server.EmitDisplayAdded(display.Serial(), display.ProductName())
		case udev.EventRemove:
			session.Reset()
			server.EmitDisplayRemoved()
		case udev.EventResync:
			// Events may have been dropped; rebuild the handle from scratch.
			session.Reset()
			if _, err := session.Display(); err != nil {
				log.Debug().Err(err).Msg("No display found during resync")
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
