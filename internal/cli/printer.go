package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"email-task-extractor/internal/pipeline"
	"email-task-extractor/internal/routing"
	"email-task-extractor/internal/store"
)

const separatorWidth = 80

// Printer renders results for a terminal.
type Printer struct {
	w      io.Writer
	bold   *color.Color
	cyan   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
}

// NewPrinter writes to w, coloring only when w is a terminal and noColor is unset.
func NewPrinter(w io.Writer, noColor bool) *Printer {
	enabled := !noColor && isTerminal(w)
	p := &Printer{
		w:      w,
		bold:   color.New(color.Bold),
		cyan:   color.New(color.FgCyan, color.Bold),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
	}
	for _, c := range []*color.Color{p.bold, p.cyan, p.green, p.yellow, p.red} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Separator prints a horizontal rule.
func (p *Printer) Separator() {
	fmt.Fprintf(p.w, "\n%s\n\n", strings.Repeat("=", separatorWidth))
}

// Heading prints a section title.
func (p *Printer) Heading(title string) {
	p.cyan.Fprintln(p.w, title)
}

// Printf writes plain formatted text.
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

// Success prints a green line.
func (p *Printer) Success(format string, args ...any) {
	p.green.Fprintf(p.w, "✅ "+format+"\n", args...)
}

// Warn prints a yellow line.
func (p *Printer) Warn(format string, args ...any) {
	p.yellow.Fprintf(p.w, "⚠️  "+format+"\n", args...)
}

// Fail prints a red line.
func (p *Printer) Fail(format string, args ...any) {
	p.red.Fprintf(p.w, "❌ "+format+"\n", args...)
}

// Summary prints queue counts.
func (p *Printer) Summary(s routing.Summary) {
	p.Heading("📊 EXTRACTION SUMMARY")
	fmt.Fprintf(p.w, "   Total tasks extracted: %d\n", s.Total)
	fmt.Fprint(p.w, "   ✅ Auto-approved: ")
	p.green.Fprintf(p.w, "%d\n", s.AutoApproved)
	fmt.Fprint(p.w, "   ⚠️  Need review: ")
	p.yellow.Fprintf(p.w, "%d\n", s.StandardReview)
	fmt.Fprint(p.w, "   🔴 Need urgent review: ")
	p.red.Fprintf(p.w, "%d\n", s.HighPriorityReview)
}

// Task prints one routed task.
func (p *Printer) Task(index int, task routing.ScoredTask) {
	c := p.statusColor(task.ReviewStatus)
	c.Fprintf(p.w, "%s Task %d: %s\n", statusEmoji(task.ReviewStatus), index+1, task.Description)
	fmt.Fprintf(p.w, "   Assignee: %s\n", orDefault(task.Assignee, "unspecified"))
	fmt.Fprintf(p.w, "   Deadline: %s\n", orDefault(task.Deadline, "Not specified"))
	fmt.Fprintf(p.w, "   Priority: %s\n", task.Priority)
	fmt.Fprintf(p.w, "   Confidence: %.2f (LLM: %.2f)\n", task.FinalConfidence, task.LLMConfidence)
	fmt.Fprint(p.w, "   Status: ")
	c.Fprintln(p.w, statusTitle(task.ReviewStatus))
	if labels := task.AdjustmentLabels(); len(labels) > 0 {
		fmt.Fprintf(p.w, "   Adjustments: %s\n", strings.Join(labels, ", "))
	}
	if task.Reasoning != "" {
		fmt.Fprintf(p.w, "   Reasoning: %s\n", task.Reasoning)
	}
	fmt.Fprintln(p.w)
}

// Tasks prints a summary followed by every task.
func (p *Printer) Tasks(tasks []routing.ScoredTask) {
	p.Summary(routing.Summarize(tasks))
	p.Separator()
	p.Heading("📋 EXTRACTED TASKS")
	fmt.Fprintln(p.w)
	if len(tasks) == 0 {
		fmt.Fprintln(p.w, "No tasks found.")
		return
	}
	for i, task := range tasks {
		p.Task(i, task)
	}
}

// Result prints a processed email.
func (p *Printer) Result(res *pipeline.Result) {
	if res.Sender != "" {
		p.bold.Fprintf(p.w, "From: %s\n", res.Sender)
	}
	if !res.Success {
		p.Fail("Error: %s", res.Error)
		return
	}
	p.Tasks(res.Tasks)
	if len(res.Extraction.Ambiguities) > 0 {
		p.Separator()
		p.Heading("⚠️  AMBIGUITIES DETECTED")
		fmt.Fprintln(p.w)
		for _, note := range res.Extraction.Ambiguities {
			fmt.Fprintf(p.w, "  • %s\n", note)
		}
		fmt.Fprintln(p.w)
	}
	if res.Extraction.Cached {
		fmt.Fprintln(p.w, "(served from cache)")
	}
}

// Stats prints history totals.
func (p *Printer) Stats(stats store.Stats) {
	p.Heading("📈 HISTORY")
	fmt.Fprintf(p.w, "   Emails processed: %d\n", stats.EmailsProcessed)
	fmt.Fprintf(p.w, "   Tasks extracted: %d\n", stats.TasksExtracted)
	fmt.Fprint(p.w, "   ✅ Auto-approved: ")
	p.green.Fprintf(p.w, "%d\n", stats.AutoApproved)
	fmt.Fprint(p.w, "   ⚠️  Needs review: ")
	p.yellow.Fprintf(p.w, "%d\n", stats.NeedsReview)
	fmt.Fprint(p.w, "   🔴 Urgent review: ")
	p.red.Fprintf(p.w, "%d\n", stats.UrgentReview)
	if stats.TasksExtracted > 0 {
		fmt.Fprintf(p.w, "   Average confidence: %.2f\n", stats.AverageConfidence)
	}
}

func (p *Printer) statusColor(s routing.ReviewStatus) *color.Color {
	switch s {
	case routing.StatusAutoApproved:
		return p.green
	case routing.StatusNeedsReview:
		return p.yellow
	default:
		return p.red
	}
}

func statusEmoji(s routing.ReviewStatus) string {
	switch s {
	case routing.StatusAutoApproved:
		return "✅"
	case routing.StatusNeedsReview:
		return "⚠️"
	case routing.StatusUrgentReview:
		return "🔴"
	default:
		return "❓"
	}
}

func statusTitle(s routing.ReviewStatus) string {
	words := strings.Split(string(s), "_")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
