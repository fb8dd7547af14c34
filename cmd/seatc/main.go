// Command seatc is an operator debug client: it opens a seat through
// seatclient, prints what it was granted, and waits for async
// enable/disable notifications until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/canonical/seatd/seatclient"
	"github.com/olekukonko/tablewriter"
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
	cmd := &cobra.Command{
		Use:   "seatc",
		Short: "Seat broker debug client",
		RunE:  runWatch,
	}
	return cmd
}

type cliListener struct{ table *tablewriter.Table }

func (l *cliListener) EnableSeat(h *seatclient.Handle, userdata any) {
	l.row("ENABLE_SEAT", h.SeatName())
}

func (l *cliListener) DisableSeat(h *seatclient.Handle, userdata any) {
	l.row("DISABLE_SEAT", h.SeatName())
	_ = h.DisableSeat()
}

func (l *cliListener) row(event, seatName string) {
	l.table.Append([]string{time.Now().Format(time.RFC3339), event, seatName})
	l.table.Render()
}

func runWatch(cmd *cobra.Command, args []string) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"time", "event", "seat"})

	listener := &cliListener{table: table}

	h, err := seatclient.OpenSeat(listener, nil)
	if err != nil {
		return fmt.Errorf("open seat: %w", err)
	}
	defer h.Close()

	fmt.Fprintf(os.Stdout, "opened seat %q\n", h.SeatName())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, unix.SIGINT, unix.SIGTERM)

	for {
		select {
		case <-stop:
			return h.CloseSeat()
		default:
		}

		if _, err := h.Dispatch(1000); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}
}
