package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portjar/internal/model"
)

// NewReserveCommand creates the "reserve" cobra command.
func NewReserveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reserve [LINE...]",
		Short: "Reserve ports for services",
		Long: `Reserve one port per line. Each argument is a line; with no arguments,
lines are read from stdin.

A line is "<service>[/tcp|/udp] <port>". Port 0 picks a free port from the
configured range. Lines are applied in order and the first failure stops
the batch; lines before it stay reserved.

Examples:
  portjar reserve "web 8080" "api/tcp 0"
  printf 'web 0\ndb 0\n' | portjar reserve
  portjar reserve --json "dns/udp 53"`,

		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, "\n")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return model.WrapCLIError(model.ExitGeneralError, "failed to read stdin", err)
				}
				text = string(data)
			}
			return runReserve(cmd.Context(), cmd.OutOrStdout(), text)
		},
	}

	return cmd
}

func runReserve(ctx context.Context, w io.Writer, text string) error {
	return withSession(ctx, true, func(s *session) error {
		reserved, err := s.jar.Reserve(text)
		printReservations(w, "reserved", reserved)
		if err != nil {
			return err
		}
		VerboseLog("Reserved %d ports", len(reserved))
		return nil
	})
}

// printReservations writes reservations as registry lines, or as
// {"<key>": [...]} in JSON mode.
func printReservations(w io.Writer, key string, list []model.Reservation) {
	if IsJSONOutput() {
		if list == nil {
			list = []model.Reservation{}
		}
		data, _ := json.MarshalIndent(map[string][]model.Reservation{key: list}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	for _, r := range list {
		fmt.Fprintln(w, r.String())
	}
}
