package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"email-task-extractor/internal/config"
	"email-task-extractor/internal/pipeline"
)

const (
	checkSender  = "test@example.com"
	checkEmail   = "Hi team, Please finish the project report by Friday. Thanks!"
	keyPrefixLen = 10
)

// ErrKeyNotConfigured is returned by check when no usable API key is present.
var ErrKeyNotConfigured = errors.New("api key not configured")

// NewCheckCommand creates the installation check subcommand.
func NewCheckCommand(root *rootOptions) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and API key setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, root, live)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "send a short test email to the model")
	return cmd
}

func runCheck(cmd *cobra.Command, root *rootOptions, live bool) error {
	rt, err := loadRuntime(cmd, root)
	if err != nil {
		return err
	}
	defer rt.Close()
	p := rt.printer

	p.Heading("🔍 Checking setup")
	p.Printf("   Provider: %s\n", rt.cfg.AI.Provider)
	if rt.cfg.AI.Fallback != "" {
		p.Printf("   Fallback: %s\n", rt.cfg.AI.Fallback)
	}
	p.Printf("   Thresholds: auto >= %.2f, review >= %.2f\n", rt.routing.AutoApproveThreshold, rt.routing.UrgentThreshold)

	primary := rt.cfg.AI.Primary()
	switch rt.cfg.AI.KeyStatus() {
	case "missing":
		p.Fail("No API key found for %s", primary.Provider)
		p.Printf("   Set ANTHROPIC_API_KEY or OPENAI_API_KEY, or ai.*_api_key in the config file.\n")
		return ErrKeyNotConfigured
	case "placeholder":
		p.Fail("API key is still the placeholder %q", config.APIKeyPlaceholder)
		p.Printf("   Replace it with your real key.\n")
		return ErrKeyNotConfigured
	default:
		p.Success("API key found (starts with: %s...)", keyPrefix(primary.APIKey))
	}

	if !live {
		return nil
	}

	liveOpts := *root
	liveOpts.noHistory = true
	proc, err := rt.processor(&liveOpts)
	if err != nil {
		return err
	}
	p.Printf("\n🧪 Sending test email...\n")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := proc.Process(ctx, pipeline.Input{Email: checkEmail, Sender: checkSender})
	if err != nil {
		p.Fail("Test extraction failed: %v", err)
		return err
	}
	p.Success("Extraction works: %d task(s) found", len(res.Tasks))
	for _, task := range res.Tasks {
		p.Printf("   - %s (confidence %.2f, %s)\n", task.Description, task.FinalConfidence, task.ReviewStatus)
	}
	return nil
}

func keyPrefix(key string) string {
	if len(key) <= keyPrefixLen {
		return fmt.Sprintf("%.*s", len(key)/2, key)
	}
	return key[:keyPrefixLen]
}
