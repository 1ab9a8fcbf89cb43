package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"email-task-extractor/internal/email"
	"email-task-extractor/internal/export"
	"email-task-extractor/internal/pipeline"
)

// pasteTerminator ends a pasted email when it appears alone on a line.
const pasteTerminator = "."

// NewInteractiveCommand creates the menu-driven interactive subcommand.
func NewInteractiveCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i"},
		Short:   "Process emails from an interactive menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd, root)
			if err != nil {
				return err
			}
			defer rt.Close()
			proc, err := rt.processor(root)
			if err != nil {
				return err
			}
			session := &interactiveSession{
				in:   bufio.NewReader(cmd.InOrStdin()),
				out:  cmd.OutOrStdout(),
				rt:   rt,
				proc: proc,
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return session.run(ctx)
		},
	}
}

type interactiveSession struct {
	in   *bufio.Reader
	out  io.Writer
	rt   *runtime
	proc *pipeline.Processor
}

func (s *interactiveSession) run(ctx context.Context) error {
	s.rt.printer.Heading("📧 EMAIL TASK EXTRACTOR")
	for {
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out, "Options:")
		fmt.Fprintln(s.out, "  1. Use sample email")
		fmt.Fprintln(s.out, "  2. Paste your own email")
		fmt.Fprintln(s.out, "  3. Load email from file")
		fmt.Fprintln(s.out, "  4. Exit")
		choice, err := s.prompt("\nSelect option (1-4): ")
		if errors.Is(err, io.EOF) && choice == "" {
			fmt.Fprintln(s.out, "\nGoodbye!")
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		var msg email.Message
		switch choice {
		case "1":
			msg = email.Sample()
		case "2":
			msg, err = s.readPasted()
		case "3":
			msg, err = s.readFile()
		case "4":
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(s.out, "Invalid option. Please choose 1-4.")
			continue
		}
		if err != nil {
			s.rt.printer.Fail("%v", err)
			continue
		}
		if err := s.process(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *interactiveSession) process(ctx context.Context, msg email.Message) error {
	fmt.Fprintln(s.out, "\n🔄 Processing email...")
	res, err := s.proc.Process(ctx, pipeline.Input{Email: msg.Text(), Sender: msg.From})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.rt.printer.Fail("Error: %v", err)
		return nil
	}
	s.rt.printer.Separator()
	s.rt.printer.Result(res)

	answer, _ := s.prompt("\nSave results to JSON file? (y/n): ")
	if strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes") {
		path, err := export.Save(s.rt.cfg.Export.Dir, export.FormatJSON, res)
		if err != nil {
			s.rt.printer.Fail("Save failed: %v", err)
			return nil
		}
		s.rt.printer.Success("Results saved to: %s", path)
	}
	return nil
}

func (s *interactiveSession) readPasted() (email.Message, error) {
	fmt.Fprintf(s.out, "\nPaste your email below. Finish with a line containing only %q (or EOF):\n", pasteTerminator)
	var lines []string
	for {
		line, err := s.in.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == pasteTerminator {
			break
		}
		if line != "" {
			lines = append(lines, trimmed)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return email.Message{}, err
		}
	}
	body := strings.TrimSpace(strings.Join(lines, "\n"))
	if body == "" {
		return email.Message{}, email.ErrEmpty
	}
	sender, _ := s.prompt("Sender email (optional): ")
	return email.Message{Body: body, From: sender}, nil
}

func (s *interactiveSession) readFile() (email.Message, error) {
	path, err := s.prompt("Enter file path: ")
	if err != nil && path == "" {
		return email.Message{}, err
	}
	msg, err := email.ParseFile(path)
	if err != nil {
		return email.Message{}, fmt.Errorf("load %s: %w", path, err)
	}
	if msg.From == "" {
		sender, _ := s.prompt("Sender email (optional): ")
		msg.From = sender
	}
	return msg, nil
}

func (s *interactiveSession) prompt(label string) (string, error) {
	fmt.Fprint(s.out, label)
	line, err := s.in.ReadString('\n')
	return strings.TrimSpace(line), err
}
