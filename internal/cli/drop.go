package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portjar/internal/model"
)

// NewDropCommand creates the "drop" cobra command.
func NewDropCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop LINE...",
		Short: "Release reserved ports",
		Long: `Release reservations. Each argument must name the exact service,
protocol and port that was reserved.

Examples:
  portjar drop "web 8080"
  portjar drop "api/tcp 9090" "dns/udp 53"`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrop(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}

	return cmd
}

func runDrop(ctx context.Context, w io.Writer, lines []string) error {
	return withSession(ctx, true, func(s *session) error {
		var dropped []model.Reservation
		defer func() { printReservations(w, "dropped", dropped) }()

		for _, line := range lines {
			r, ok := model.ParseReservation(line)
			if !ok {
				return fmt.Errorf("%w: %q", model.ErrInvalidLine, line)
			}
			if err := s.jar.DropReservation(r); err != nil {
				return err
			}
			dropped = append(dropped, r)
		}
		return nil
	})
}
