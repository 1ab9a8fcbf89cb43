package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"email-task-extractor/internal/export"
	"email-task-extractor/internal/pipeline"
	"email-task-extractor/internal/routing"
)

// taskInput accepts both engine field names and the model's reply field names.
type taskInput struct {
	Description     string   `json:"description" yaml:"description"`
	TaskDescription string   `json:"task_description" yaml:"task_description"`
	Assignee        string   `json:"assignee" yaml:"assignee"`
	Deadline        string   `json:"deadline" yaml:"deadline"`
	Priority        string   `json:"priority" yaml:"priority"`
	LLMConfidence   *float64 `json:"llm_confidence" yaml:"llm_confidence"`
	ConfidenceScore *float64 `json:"confidence_score" yaml:"confidence_score"`
	Reasoning       string   `json:"reasoning" yaml:"reasoning"`
}

func (t taskInput) raw() routing.RawTask {
	out := routing.RawTask{
		Description: t.Description,
		Assignee:    t.Assignee,
		Deadline:    t.Deadline,
		Priority:    routing.Priority(strings.ToLower(strings.TrimSpace(t.Priority))),
		Reasoning:   t.Reasoning,
	}
	if out.Description == "" {
		out.Description = t.TaskDescription
	}
	switch {
	case t.LLMConfidence != nil:
		out.LLMConfidence = *t.LLMConfidence
	case t.ConfidenceScore != nil:
		out.LLMConfidence = *t.ConfidenceScore
	}
	return out
}

type scoreOptions struct {
	format    string
	threshold float64
}

// NewScoreCommand creates the offline score subcommand.
func NewScoreCommand(root *rootOptions) *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score <tasks.json|tasks.yaml|->",
		Short: "Score and route already-extracted tasks without calling a model",
		Long: `Score reads a list of tasks, either bare or under a "tasks" key, applies
the rule penalties and prints the routed result. Use "-" to read JSON from
standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json, csv, md, html or yaml")
	cmd.Flags().Float64Var(&opts.threshold, "auto-approve-threshold", 0, "override the auto-approve threshold")
	return cmd
}

func runScore(cmd *cobra.Command, root *rootOptions, opts *scoreOptions, source string) error {
	var format export.Format
	if opts.format != "text" {
		f, err := export.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		format = f
	}

	data, err := readSource(cmd.InOrStdin(), source)
	if err != nil {
		return err
	}
	tasks, err := decodeTasks(data, isYAMLPath(source))
	if err != nil {
		return err
	}

	rt, err := loadRuntime(cmd, root)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.routing
	if cmd.Flags().Changed("auto-approve-threshold") {
		cfg = cfg.WithAutoApproveThreshold(opts.threshold)
	}
	scored, err := routing.Score(tasks, cfg)
	if err != nil {
		return err
	}

	res := &pipeline.Result{
		ID:           uuid.NewString(),
		Success:      true,
		Tasks:        scored,
		Summary:      routing.Summarize(scored),
		AutoApproved: routing.Filter(scored, routing.StatusAutoApproved),
		ReviewTasks:  routing.ReviewQueue(scored),
		Config:       cfg,
		RoutedAt:     time.Now().UTC(),
	}
	if format == "" {
		rt.printer.Tasks(res.Tasks)
		return nil
	}
	return export.Write(cmd.OutOrStdout(), format, res)
}

func readSource(stdin io.Reader, source string) ([]byte, error) {
	if source == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return data, nil
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func decodeTasks(data []byte, asYAML bool) ([]routing.RawTask, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var inputs []taskInput
	var doc struct {
		Tasks []taskInput `json:"tasks" yaml:"tasks"`
	}
	var err error
	switch {
	case asYAML:
		if err = yaml.Unmarshal(trimmed, &doc); err != nil || doc.Tasks == nil {
			err = yaml.Unmarshal(trimmed, &inputs)
		} else {
			inputs = doc.Tasks
		}
	case trimmed[0] == '[':
		err = json.Unmarshal(trimmed, &inputs)
	default:
		err = json.Unmarshal(trimmed, &doc)
		inputs = doc.Tasks
	}
	if err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	out := make([]routing.RawTask, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, in.raw())
	}
	return out, nil
}
