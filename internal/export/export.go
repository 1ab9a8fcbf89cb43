// Package export renders routed results as downloadable documents.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"email-task-extractor/internal/pipeline"
	"email-task-extractor/internal/routing"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatYAML     Format = "yaml"
)

// ErrUnknownFormat is returned for unsupported format names.
var ErrUnknownFormat = errors.New("unknown export format")

// Formats lists every supported encoding.
func Formats() []Format {
	return []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatHTML, FormatYAML}
}

// ParseFormat resolves a format name or file extension.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), ".")) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatYAML:
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}

// Filename builds a timestamped export name such as tasks_20250115_093000.json.
func Filename(prefix string, f Format, t time.Time) string {
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "tasks"
	}
	return fmt.Sprintf("%s_%s.%s", prefix, t.Format("20060102_150405"), f)
}

// Write encodes results in format f.
func Write(w io.Writer, f Format, results ...*pipeline.Result) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, results...)
	case FormatCSV:
		return WriteCSV(w, results...)
	case FormatMarkdown:
		return WriteMarkdown(w, results...)
	case FormatHTML:
		return WriteHTML(w, results...)
	case FormatYAML:
		return WriteYAML(w, results...)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Render encodes results in format f into memory.
func Render(f Format, results ...*pipeline.Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, f, results...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes a single result as an object and several as an array.
func WriteJSON(w io.Writer, results ...*pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(results) == 1 {
		return enc.Encode(results[0])
	}
	return enc.Encode(nonNil(results))
}

// WriteYAML mirrors WriteJSON in YAML.
func WriteYAML(w io.Writer, results ...*pipeline.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	var err error
	if len(results) == 1 {
		err = enc.Encode(results[0])
	} else {
		err = enc.Encode(nonNil(results))
	}
	if err != nil {
		return err
	}
	return enc.Close()
}

var csvHeader = []string{"Task", "Assignee", "Deadline", "Priority", "Confidence", "Status"}

// WriteCSV writes one row per task across all results.
func WriteCSV(w io.Writer, results ...*pipeline.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, res := range nonNil(results) {
		for _, task := range res.Tasks {
			line := []string{
				task.Description,
				displayOr(task.Assignee, "unspecified"),
				displayOr(task.Deadline, "TBD"),
				string(task.Priority),
				fmt.Sprintf("%.2f", task.FinalConfidence),
				string(task.ReviewStatus),
			}
			if err := writer.Write(line); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMarkdown writes a readable task list.
func WriteMarkdown(w io.Writer, results ...*pipeline.Result) error {
	_, err := io.WriteString(w, Markdown(results...))
	return err
}

// Markdown renders results as a Markdown document.
func Markdown(results ...*pipeline.Result) string {
	b := &strings.Builder{}
	b.WriteString("# Extracted Tasks\n\n")
	n := 0
	for _, res := range nonNil(results) {
		if res.Sender != "" && len(results) > 1 {
			fmt.Fprintf(b, "_From %s_\n\n", res.Sender)
		}
		for _, task := range res.Tasks {
			n++
			fmt.Fprintf(b, "## Task %d: %s\n", n, task.Description)
			fmt.Fprintf(b, "- **Assignee:** %s\n", displayOr(task.Assignee, "unspecified"))
			fmt.Fprintf(b, "- **Deadline:** %s\n", displayOr(task.Deadline, "TBD"))
			fmt.Fprintf(b, "- **Priority:** %s\n", task.Priority)
			fmt.Fprintf(b, "- **Confidence:** %s (%s)\n", Percent(task.FinalConfidence), statusLabel(task.ReviewStatus))
			for _, adj := range task.Adjustments {
				fmt.Fprintf(b, "  - %s\n", adj)
			}
			b.WriteString("\n")
		}
		if len(res.Extraction.Ambiguities) > 0 {
			b.WriteString("### Ambiguities\n\n")
			for _, note := range res.Extraction.Ambiguities {
				fmt.Fprintf(b, "- %s\n", note)
			}
			b.WriteString("\n")
		}
	}
	if n == 0 {
		b.WriteString("_No tasks found._\n")
	}
	return b.String()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// WriteHTML renders the Markdown export as an HTML document.
func WriteHTML(w io.Writer, results ...*pipeline.Result) error {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(results...)), &body); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	if _, err := io.WriteString(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Extracted Tasks</title></head><body>\n"); err != nil {
		return err
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</body></html>\n")
	return err
}

// Percent formats a confidence as a whole percentage.
func Percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func statusLabel(s routing.ReviewStatus) string {
	switch s {
	case routing.StatusAutoApproved:
		return "auto-approved"
	case routing.StatusNeedsReview:
		return "needs review"
	case routing.StatusUrgentReview:
		return "urgent review"
	default:
		return string(s)
	}
}

func displayOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func nonNil(results []*pipeline.Result) []*pipeline.Result {
	out := make([]*pipeline.Result, 0, len(results))
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}
