package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"taskvoice/internal/domain"
)

func newThreadsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect and manage conversation threads",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List threads, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, _, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			threads, err := services.Conversations.List(cmd.Context())
			if err != nil {
				return err
			}
			current, err := services.Conversations.CurrentID(cmd.Context())
			if err != nil {
				return err
			}
			if opts.outputJSON {
				if threads == nil {
					threads = []domain.Thread{}
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"threads": threads, "current": current})
			}
			return printThreads(cmd.OutOrStdout(), threads, current)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print one thread with its turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, _, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			thread, err := services.Threads.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), thread)
			}
			printTurns(cmd.OutOrStdout(), thread)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, _, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer services.Close()

			if err := services.Conversations.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func printThreads(w io.Writer, threads []domain.Thread, current string) error {
	if len(threads) == 0 {
		printf(w, "no threads\n")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tUPDATED\tTITLE")
	for _, thread := range threads {
		marker := ""
		if thread.ID == current {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", marker, thread.ID, thread.UpdatedAt.Local().Format(time.DateTime), thread.Title)
	}
	return tw.Flush()
}

func printTurns(w io.Writer, thread domain.Thread) {
	printf(w, "%s\n", thread.Title)
	for _, turn := range thread.Turns {
		status := ""
		if turn.Status != domain.TurnStatusNone {
			status = " (" + string(turn.Status) + ")"
		}
		printf(w, "[%s] %s%s: %s\n", turn.Timestamp.Local().Format(time.TimeOnly), turn.Role, status, turn.Text)
	}
}
