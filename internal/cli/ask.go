package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/careguide/careguide-go/internal/classify"
	"github.com/careguide/careguide-go/internal/models"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer with citations",
	Long: `Ask the agent one question, wait for the complete reply and print it.

The reply is polled to completion, so this can take a while for questions
that trigger a literature search. Ctrl+C stops waiting and prints whatever
arrived so far.

Examples:
  careguide ask "Which foods are high in potassium?"
  careguide ask -p researcher "What does recent evidence say about SGLT2 inhibitors in CKD?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]

	profile, err := resolveProfile()
	if err != nil {
		return err
	}

	orch, cleanup, err := newOrchestrator(profile, false)
	if err != nil {
		return err
	}
	defer cleanup()

	// Ctrl+C asks the poll loop to stop; partial progress still prints.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		orch.RequestStop()
	}()

	if err := orch.Bootstrap(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	sendErr := orch.SendMessage(ctx, question)

	st := orch.Snapshot()
	printAnswer(st.Messages, st.Citations)

	if verbose {
		printMetrics()
	}
	if sendErr != nil && len(st.Messages) <= 1 {
		// Nothing arrived; surface the failure as the command result.
		return sendErr
	}
	if sendErr != nil {
		fmt.Fprintf(os.Stderr, "\nWarning: reply may be incomplete: %v\n", sendErr)
	}
	return nil
}

var (
	answerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7D7D7"))
	disclaimerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C")).Italic(true)
	citationStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7"))
	headingStyle    = lipgloss.NewStyle().Bold(true)
)

func printAnswer(messages []models.ConversationMessage, citations []models.CitationRecord) {
	printed := 0
	for _, msg := range messages {
		if msg.Role != models.RoleAssistant {
			continue
		}
		if strings.Contains(msg.Text, classify.DisclaimerMarker) {
			fmt.Println(disclaimerStyle.Render(msg.Text))
			continue
		}
		fmt.Println(answerStyle.Render(msg.Text))
		fmt.Println()
		printed++
	}
	if printed == 0 {
		fmt.Println("No answer received.")
	}

	if len(citations) > 0 {
		fmt.Println(headingStyle.Render(fmt.Sprintf("References (%d)", len(citations))))
		for i, c := range citations {
			line := fmt.Sprintf("  %d. %s", i+1, c.Title)
			if len(c.Authors) > 0 {
				line += " - " + strings.Join(c.Authors, ", ")
			}
			if c.URL != "" {
				line += "\n     " + c.URL
			}
			fmt.Println(citationStyle.Render(line))
		}
		fmt.Println()
	}
}

func printMetrics() {
	snap := collector.Snapshot()
	fmt.Println(headingStyle.Render("Timings"))
	for op, stats := range snap.Operations {
		fmt.Printf("  %-16s count=%d avg=%.0fms max=%dms\n", op, stats.Count, stats.AvgTimeMs, stats.MaxTimeMs)
	}
}
