package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portjar/internal/docker"
	"github.com/mmr-tortoise/portjar/internal/jar"
	"github.com/mmr-tortoise/portjar/internal/model"
)

// importFlags holds the flag values for the import-docker command.
type importFlags struct {
	// dryRun reports what would be imported without changing the jar.
	dryRun bool
}

// NewImportDockerCommand creates the "import-docker" cobra command.
func NewImportDockerCommand() *cobra.Command {
	flags := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import-docker",
		Short: "Reserve ports published by running Docker containers",
		Long: `Reserve every host port published by a running container, so that
portjar never hands those ports to another service.

The service name is taken from the "portjar.service" label, then the
compose service label, then the container name. Ports already reserved by
the same service are skipped; ports held by another service are reported
as conflicts and left alone.

Examples:
  portjar import-docker
  portjar import-docker --dry-run --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportDocker(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show what would be imported without changing the jar")

	return cmd
}

// importResult is the outcome of an import.
type importResult struct {
	Imported  []model.Reservation `json:"imported"`
	Existing  []model.Reservation `json:"existing"`
	Conflicts []importConflict    `json:"conflicts"`
}

type importConflict struct {
	Reservation model.Reservation `json:"reservation"`
	HeldBy      model.Reservation `json:"heldBy"`
}

func runImportDocker(ctx context.Context, w io.Writer, flags *importFlags) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	published, err := cli.ListPublishedPorts(ctx)
	if err != nil {
		return err
	}
	VerboseLog("Found %d published ports", len(published))

	var result importResult
	err = withSession(ctx, !flags.dryRun, func(s *session) error {
		var err error
		result, err = importReservations(s.jar, published, flags.dryRun)
		return err
	})
	if err != nil {
		return err
	}

	printImportResult(w, result)
	return nil
}

// importReservations adds each published port that is not yet in the jar.
func importReservations(j *jar.Jar, published []model.Reservation, dryRun bool) (importResult, error) {
	result := importResult{
		Imported:  []model.Reservation{},
		Existing:  []model.Reservation{},
		Conflicts: []importConflict{},
	}

	for _, r := range published {
		if held, ok := j.Lookup(r.Port); ok {
			if held.Matches(r) {
				result.Existing = append(result.Existing, r)
			} else {
				result.Conflicts = append(result.Conflicts, importConflict{Reservation: r, HeldBy: held})
			}
			continue
		}
		if !dryRun {
			if _, err := j.ReserveAll([]model.Reservation{r}); err != nil {
				if errors.Is(err, model.ErrPortOccupied) {
					continue
				}
				return result, err
			}
		}
		result.Imported = append(result.Imported, r)
	}
	return result, nil
}

func printImportResult(w io.Writer, result importResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	for _, r := range result.Imported {
		fmt.Fprintf(w, "imported  %s\n", r)
	}
	for _, c := range result.Conflicts {
		fmt.Fprintf(w, "conflict  %s (held by %s)\n", c.Reservation, c.HeldBy)
	}
	fmt.Fprintf(w, "%d imported, %d already reserved, %d conflicts\n",
		len(result.Imported), len(result.Existing), len(result.Conflicts))
}
