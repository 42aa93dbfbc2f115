package commands

import (
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"

	"taskvoice/internal/domain"
)

func newUsageCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Fetch backend usage telemetry once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, _, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			if !services.UsageConfigured() {
				return errors.New("usage telemetry is not configured (AIRTABLE_TELEMETRY_URL, AIRTABLE_TOKEN)")
			}
			snapshot, err := services.Usage.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), snapshot)
			}
			printUsage(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}
}

func printUsage(w io.Writer, snapshot domain.UsageSnapshot) {
	if snapshot.FetchedAt.IsZero() {
		printf(w, "no usage telemetry yet\n")
		return
	}
	printf(w, "usage:   %.1f%%\n", snapshot.Percentage)
	printf(w, "health:  %s\n", snapshot.Health)
	if snapshot.RefreshAt != nil {
		printf(w, "refresh: %s\n", snapshot.RefreshAt.Local().Format(time.DateTime))
	}
	printf(w, "samples: %d\n", len(snapshot.History))
}
