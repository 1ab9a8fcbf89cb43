package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"email-task-extractor/internal/routing"
	"email-task-extractor/internal/store"
)

type historyOptions struct {
	limit  int
	clear  bool
	status string
}

// NewHistoryCommand creates the history subcommand.
func NewHistoryCommand(root *rootOptions) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded extractions and routing totals",
		Example: `  taskx history --limit 5
  taskx history --status urgent_review
  taskx history --clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, root, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "number of rows to show")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "delete all recorded extractions")
	cmd.Flags().StringVar(&opts.status, "status", "", "list tasks routed to this status instead of emails")
	return cmd
}

func runHistory(cmd *cobra.Command, root *rootOptions, opts *historyOptions) error {
	if opts.status != "" && !routing.ReviewStatus(opts.status).Valid() {
		return fmt.Errorf("unknown status %q: expected auto_approved, needs_review or urgent_review", opts.status)
	}
	rt, err := loadRuntime(cmd, root)
	if err != nil {
		return err
	}
	defer rt.Close()
	if root.noHistory || rt.cfg.Store.Disabled {
		return errors.New("history is disabled")
	}
	if err := rt.openStore(root); err != nil {
		return err
	}

	if opts.clear {
		if err := rt.db.ClearHistory(); err != nil {
			return err
		}
		rt.printer.Success("History cleared")
		return nil
	}

	stats, err := rt.db.Stats()
	if err != nil {
		return err
	}
	rt.printer.Stats(stats)
	fmt.Fprintln(cmd.OutOrStdout())

	if opts.status != "" {
		return printTaskHistory(cmd, rt, opts)
	}

	rows, total, err := rt.db.ListExtractions(0, opts.limit)
	if err != nil {
		return err
	}
	if total == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No extractions recorded yet.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tSENDER\tTASKS\tAUTO\tREVIEW\tURGENT")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			shortID(row.ID), row.ExtractedAt.Local().Format("2006-01-02 15:04"), orDefault(row.Sender, "-"),
			row.TaskCount, row.AutoApproved, row.NeedsReview, row.UrgentReview)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if int64(len(rows)) < total {
		fmt.Fprintf(cmd.OutOrStdout(), "\nShowing %d of %d extractions.\n", len(rows), total)
	}
	return nil
}

func printTaskHistory(cmd *cobra.Command, rt *runtime, opts *historyOptions) error {
	tasks, total, err := rt.db.ListTasks(store.TaskQuery{Status: opts.status, Sort: "confidence_asc", Limit: opts.limit})
	if err != nil {
		return err
	}
	if total == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s tasks recorded.\n", opts.status)
		return nil
	}
	for i, task := range tasks {
		rt.printer.Task(i, task.Scored())
	}
	if int64(len(tasks)) < total {
		fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d tasks.\n", len(tasks), total)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
