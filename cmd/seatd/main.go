// Command seatd is the seat broker daemon: it listens on a unix socket
// and arbitrates evdev/DRM device access across competing session
// clients, per spec.md's overview.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/canonical/seatd/internal/config"
	"github.com/canonical/seatd/internal/logger"
	"github.com/canonical/seatd/internal/vtterm"
	"github.com/canonical/seatd/seat"
	"github.com/canonical/seatd/server"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		socketPath string
		logLevel   string
		vtBound    bool
		controlTTY string
		ttyPathFmt string
	)

	cmd := &cobra.Command{
		Use:   "seatd",
		Short: "Seat and session access broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(config.ResolveLogLevel(logLevel))

			d := server.New(server.Config{
				SocketPath: config.ResolveSocketPath(socketPath),
				Log:        log,
			})

			var term seat.Terminal
			if vtBound {
				term = vtterm.NewLinuxTerminal(controlTTY, ttyPathFmt)
			}

			d.Seats().Add(seat.New("seat0", vtBound, term, server.NewDeviceOpener(), log))

			stop := make(chan struct{})
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
			go func() {
				<-sigCh
				close(stop)
			}()

			return d.Run(stop)
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "unix socket path to listen on (default "+config.DefaultSocketPath+", overridable by SEATD_SOCK)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: silent, debug, info, warn, error (default "+config.DefaultLogLevel+", overridable by SEATD_LOGLEVEL)")
	cmd.Flags().BoolVar(&vtBound, "vt-bound", false, "bind seat0 to kernel VT switching")
	cmd.Flags().StringVar(&controlTTY, "control-tty", "/dev/tty0", "control tty used for VT_GETSTATE/VT_ACTIVATE when vt-bound")
	cmd.Flags().StringVar(&ttyPathFmt, "tty-path-format", "/dev/tty%d", "printf-style path format for per-VT tty nodes when vt-bound")

	return cmd
}
