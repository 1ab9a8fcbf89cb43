// Package cli implements the taskx command line.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is the current version of the taskx CLI.
const Version = "0.3.0"

type rootOptions struct {
	configPath string
	noColor    bool
	dbPath     string
	noHistory  bool
}

// NewRootCommand creates the top-level taskx command.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "taskx",
		Short: "Extract and route action items from email",
		Long: `taskx sends email text to a hosted LLM, asks it for actionable tasks,
adjusts each task's confidence with rule-based penalties and routes it to
auto_approved, needs_review or urgent_review.`,
		Version:      Version,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.StringVar(&opts.dbPath, "db", "", "history database path (overrides store.path)")
	flags.BoolVar(&opts.noHistory, "no-history", false, "do not record extractions")

	cmd.AddCommand(NewExtractCommand(opts))
	cmd.AddCommand(NewInteractiveCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}
