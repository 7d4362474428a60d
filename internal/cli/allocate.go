package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portjar/internal/model"
	"github.com/mmr-tortoise/portjar/internal/port"
)

// allocateFlags holds the flag values for the allocate command.
type allocateFlags struct {
	// release drops the reservation when the command exits.
	release bool
}

// NewAllocateCommand creates the "allocate" cobra command.
func NewAllocateCommand() *cobra.Command {
	flags := &allocateFlags{}

	cmd := &cobra.Command{
		Use:   "allocate LINE",
		Short: "Reserve a port and hold its sockets open",
		Long: `Reserve a port, then bind it and keep the sockets open until
interrupted. A line without a protocol binds tcp and udp on the same port.

If binding fails the reservation is rolled back. With --release the
reservation is also dropped when the command exits.

Examples:
  portjar allocate "web 0"
  portjar allocate --release "dns/udp 5353"`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllocate(cmd.Context(), cmd.OutOrStdout(), args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.release, "release", false, "Drop the reservation on exit")

	return cmd
}

// runAllocate holds the jar lock only while changing the jar, not while
// the sockets are held, so other commands keep working.
func runAllocate(ctx context.Context, w io.Writer, line string, flags *allocateFlags) error {
	var (
		r        model.Reservation
		bindHost string
	)
	want, ok := model.ParseReservation(line)
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrInvalidLine, line)
	}
	err := withSession(ctx, true, func(s *session) error {
		reserved, err := s.jar.ReserveAll([]model.Reservation{want})
		if err != nil {
			return err
		}
		r = reserved[0]
		bindHost = s.cfg.BindHost
		return nil
	})
	if err != nil {
		return err
	}
	VerboseLog("Reserved %s", r)

	alloc, err := port.NewAllocator(bindHost).Allocate(ctx, r)
	if err != nil {
		if dropErr := dropReservation(context.WithoutCancel(ctx), r); dropErr != nil {
			return errors.Join(err, dropErr)
		}
		return err
	}

	printAllocation(w, r)
	<-ctx.Done()
	VerboseLog("Releasing sockets for %s", r)

	closeErr := alloc.Close()
	if flags.release {
		if err := dropReservation(context.WithoutCancel(ctx), r); err != nil {
			return errors.Join(closeErr, err)
		}
	}
	return closeErr
}

func dropReservation(ctx context.Context, r model.Reservation) error {
	return withSession(ctx, true, func(s *session) error {
		return s.jar.DropReservation(r)
	})
}

func printAllocation(w io.Writer, r model.Reservation) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]model.Reservation{"allocated": r}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintf(w, "Allocated %s (%s), press Ctrl+C to release\n", r, r.Protocol.Label())
}
