package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"email-task-extractor/internal/email"
	"email-task-extractor/internal/export"
	"email-task-extractor/internal/pipeline"
)

type extractOptions struct {
	sender    string
	sample    bool
	stdin     bool
	format    string
	save      bool
	workers   int
	threshold float64
}

// NewExtractCommand creates the extract subcommand.
func NewExtractCommand(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract [files...]",
		Short: "Extract and route tasks from one or more emails",
		Long: `Extract tasks from .txt or .eml files, from standard input or from the
bundled sample email. Each email is sent to the configured model and the
returned tasks are scored and routed.`,
		Example: `  taskx extract --sample
  taskx extract inbox/*.eml --workers 4 --format md --save
  cat email.txt | taskx extract --stdin --sender boss@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, root, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.sender, "sender", "", "sender address used when the email has none")
	cmd.Flags().BoolVar(&opts.sample, "sample", false, "process the bundled sample email")
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "read one email from standard input")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json, csv, md, html or yaml")
	cmd.Flags().BoolVar(&opts.save, "save", false, "also write the results to the export directory")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 2, "emails processed concurrently")
	cmd.Flags().Float64Var(&opts.threshold, "auto-approve-threshold", 0, "override the auto-approve threshold for this run")

	return cmd
}

func runExtract(cmd *cobra.Command, root *rootOptions, opts *extractOptions, args []string) error {
	var format export.Format
	if opts.format != "text" {
		f, err := export.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		format = f
	}

	messages, err := collectMessages(cmd, opts, args)
	if err != nil {
		return err
	}

	rt, err := loadRuntime(cmd, root)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cmd.Flags().Changed("auto-approve-threshold") {
		rt.routing = rt.routing.WithAutoApproveThreshold(opts.threshold)
	}
	proc, err := rt.processor(root)
	if err != nil {
		return err
	}

	inputs := make([]pipeline.Input, 0, len(messages))
	for _, msg := range messages {
		inputs = append(inputs, pipeline.Input{Email: msg.Text(), Sender: senderFor(msg, opts.sender)})
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := proc.ProcessBatch(ctx, inputs, opts.workers)
	if err != nil {
		return err
	}

	succeeded := make([]*pipeline.Result, 0, len(results))
	failed := 0
	for _, res := range results {
		if res == nil || !res.Success {
			failed++
			continue
		}
		succeeded = append(succeeded, res)
	}

	if format == "" {
		for i, res := range results {
			if i > 0 {
				rt.printer.Separator()
			}
			if res != nil {
				rt.printer.Result(res)
			}
		}
	} else if err := export.Write(cmd.OutOrStdout(), format, succeeded...); err != nil {
		return err
	}

	if opts.save && len(succeeded) > 0 {
		saveFormat := format
		if saveFormat == "" {
			saveFormat = export.FormatJSON
		}
		path, err := export.Save(rt.cfg.Export.Dir, saveFormat, succeeded...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Results saved to: %s\n", path)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d emails failed", failed, len(results))
	}
	return nil
}

func collectMessages(cmd *cobra.Command, opts *extractOptions, args []string) ([]email.Message, error) {
	var messages []email.Message
	if opts.sample {
		messages = append(messages, email.Sample())
	}
	if opts.stdin {
		msg, err := email.Parse(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		messages = append(messages, msg)
	}
	for _, path := range args {
		if !email.IsSupported(path) {
			return nil, fmt.Errorf("unsupported file %s: expected .txt or .eml", path)
		}
		msg, err := email.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil, errors.New("no input: pass email files, --stdin or --sample")
	}
	return messages, nil
}

func senderFor(msg email.Message, override string) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	return msg.From
}
