package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pylearn/internal/storage"
)

var (
	exportFormat string
	exportOutput string
	summaryFlag  bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Inspect stored grading feedback",
}

var feedbackListCmd = &cobra.Command{
	Use:   "list <exercise-id>",
	Short: "List feedback for an exercise, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeedbackList,
}

var feedbackExportCmd = &cobra.Command{
	Use:   "export <exercise-id>",
	Short: "Export the feedback history of an exercise as markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeedbackExport,
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Show language model token usage",
	RunE:  runTokens,
}

func init() {
	rootCmd.AddCommand(feedbackCmd, tokensCmd)
	feedbackCmd.AddCommand(feedbackListCmd, feedbackExportCmd)

	feedbackExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	feedbackExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	tokensCmd.Flags().BoolVar(&summaryFlag, "summary", false, "Show per-model totals and estimated cost")
}

func runFeedbackList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListFeedback(context.Background(), args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No feedback found.")
		return nil
	}

	fmt.Printf("%-6s %-12s %-50s %s\n", "ID", "RESULT", "SUMMARY", "WHEN")
	fmt.Println(strings.Repeat("─", 85))
	for _, r := range records {
		fmt.Printf("%-6d %-12s %-50s %s\n",
			r.ID, r.Feedback.Correctness, truncate(r.Feedback.OverallFeedback, 47), timeAgo(r.Timestamp))
	}
	return nil
}

func runFeedbackExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListFeedback(context.Background(), args[0])
	if err != nil {
		return err
	}

	var output string
	switch exportFormat {
	case "json":
		data, err := storage.ExportJSON(args[0], records)
		if err != nil {
			return err
		}
		output = string(data) + "\n"
	case "md", "markdown":
		output = storage.ExportMarkdown(args[0], records)
	default:
		return fmt.Errorf("unknown export format %q (want md or json)", exportFormat)
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}

func runTokens(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	totals, err := store.TokenTotals(ctx)
	if err != nil {
		return err
	}
	usage, err := store.TokenUsage(ctx)
	if err != nil {
		return err
	}

	if summaryFlag {
		sum := storage.Summarize(totals.TotalTokens, usage)
		fmt.Printf("Total tokens:   %d\n", sum.TotalTokens)
		fmt.Printf("Estimated cost: $%.4f\n\n", sum.EstimatedCostUSD)
		for model, n := range sum.ModelBreakdown {
			fmt.Printf("  %-30s %d\n", model, n)
		}
		return nil
	}

	fmt.Printf("Requests: %d | Prompt: %d | Completion: %d | Total: %d\n\n",
		totals.Requests, totals.PromptTokens, totals.CompletionTokens, totals.TotalTokens)
	if len(usage) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	fmt.Printf("%-6s %-20s %-16s %8s %s\n", "ID", "MODEL", "ENDPOINT", "TOKENS", "WHEN")
	fmt.Println(strings.Repeat("─", 70))
	for _, u := range usage {
		endpoint := u.Endpoint
		if endpoint == "" {
			endpoint = "-"
		}
		fmt.Printf("%-6d %-20s %-16s %8d %s\n", u.ID, truncate(u.Model, 17), endpoint, u.TotalTokens, timeAgo(u.Timestamp))
	}
	return nil
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
