package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portjar/internal/model"
	"github.com/mmr-tortoise/portjar/internal/port"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// check probes each port and reports whether something is bound to it.
	check bool

	// portsOnly prints a comma-separated port list, for shell scripts.
	portsOnly bool
}

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list [SERVICE]",
		Short: "List reservations",
		Long: `List every reservation, or only those of SERVICE, in the order they
were made.

Examples:
  portjar list
  portjar list web --ports
  portjar list --check --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			service := ""
			if len(args) == 1 {
				service = args[0]
			}
			return runList(cmd.Context(), cmd.OutOrStdout(), service, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.check, "check", false, "Probe each port and show whether it is in use")
	cmd.Flags().BoolVar(&flags.portsOnly, "ports", false, "Print only the ports, comma-separated")

	return cmd
}

// listEntry is one row of list output.
type listEntry struct {
	model.Reservation
	InUse *bool `json:"inUse,omitempty"`
}

func runList(ctx context.Context, w io.Writer, service string, flags *listFlags) error {
	return withSession(ctx, false, func(s *session) error {
		var list []model.Reservation
		if service == "" {
			list = s.jar.Reservations()
		} else {
			var err error
			if list, err = s.jar.ReservationsFor(service); err != nil {
				return err
			}
		}

		if flags.portsOnly {
			fmt.Fprintln(w, FormatPortsList(list))
			return nil
		}

		entries := make([]listEntry, 0, len(list))
		scanner := port.NewScanner(s.cfg.BindHost)
		for _, r := range list {
			e := listEntry{Reservation: r}
			if flags.check {
				inUse := !scanner.IsPortAvailable(r.Port, r.Protocol)
				e.InUse = &inUse
			}
			entries = append(entries, e)
		}

		printListResult(w, entries, flags.check)
		return nil
	})
}

func printListResult(w io.Writer, entries []listEntry, check bool) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string][]listEntry{"reservations": entries}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	printListResultText(w, entries, check)
}

// printListResultText prints an aligned table:
//
//	SERVICE              PROTOCOL   PORT   STATUS
//	web                  tcp+udp    8080   in use
//	dns                  udp        53     free
func printListResultText(w io.Writer, entries []listEntry, check bool) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No reservations found.")
		return
	}

	if check {
		fmt.Fprintf(w, "%-20s %-10s %-6s %s\n", "SERVICE", "PROTOCOL", "PORT", "STATUS")
	} else {
		fmt.Fprintf(w, "%-20s %-10s %s\n", "SERVICE", "PROTOCOL", "PORT")
	}

	for _, e := range entries {
		if !check {
			fmt.Fprintf(w, "%-20s %-10s %d\n", e.Service, e.Protocol.Label(), e.Port)
			continue
		}
		status := "free"
		if e.InUse != nil && *e.InUse {
			status = "in use"
		}
		fmt.Fprintf(w, "%-20s %-10s %-6d %s\n", e.Service, e.Protocol.Label(), e.Port, status)
	}
}

// FormatPortsList converts reservations into a comma-separated, numerically
// sorted list of ports. Returns "-" if there are none.
//
// Example:
//
//	[{Port: 8080}, {Port: 53}] → "53,8080"
//	[]                         → "-"
func FormatPortsList(list []model.Reservation) string {
	if len(list) == 0 {
		return "-"
	}

	portNums := make([]int, 0, len(list))
	for _, r := range list {
		portNums = append(portNums, r.Port)
	}
	sort.Ints(portNums)

	ports := make([]string, 0, len(portNums))
	for _, p := range portNums {
		ports = append(ports, strconv.Itoa(p))
	}
	return strings.Join(ports, ",")
}
