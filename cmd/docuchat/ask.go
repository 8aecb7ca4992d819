package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docuchat/internal/aiservice"
	"github.com/fyrsmithlabs/docuchat/internal/conversation"
)

var (
	askProvider string
	askMemory   string
	askTopK     int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask questions about the ingested documents",
	Long: `Ask a single question, or start an interactive session when no
question is given. Answers are grounded in the top-k most similar
chunks from the vector index. When the chosen provider fails, the next
enabled provider is tried.

Examples:
  docuchat ask "What does the warranty cover?"
  docuchat ask --provider deepseek --memory window
  docuchat ask -k 8`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askProvider, "provider", "", "AI provider (default: first enabled)")
	askCmd.Flags().StringVar(&askMemory, "memory", aiservice.MemoryBuffer, "chain memory: buffer or window")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 4, "number of chunks to retrieve per question")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Load(cmd.Context()); err != nil {
		return fmt.Errorf("no document index: %w (run ingest first)", err)
	}

	provider := askProvider
	if provider == "" {
		enabled := a.cfg.EnabledServices()
		if len(enabled) == 0 {
			return fmt.Errorf("no AI providers enabled in %s", configPath)
		}
		provider = enabled[0]
	}
	chain, err := a.ai.NewChain(provider, a.store, askMemory, askTopK)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return a.askOnce(cmd, chain, args[0])
	}
	return a.repl(cmd, chain)
}

func (a *app) askOnce(cmd *cobra.Command, chain *aiservice.Chain, question string) error {
	answer, err := a.answerWithFallback(cmd.Context(), cmd.ErrOrStderr(), &chain, question)
	if err != nil {
		return err
	}
	a.recordExchange(question, answer)
	fmt.Fprintln(cmd.OutOrStdout(), answer.Content)
	printSources(cmd.OutOrStdout(), answer)
	return a.conv.SaveSession(sessionPath)
}

func (a *app) repl(cmd *cobra.Command, chain *aiservice.Chain) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "docuchat — provider %s. Type a question, or exit to quit.\n", chain.Provider())

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "exit", "quit":
			return a.conv.SaveSession(sessionPath)
		case "summary":
			fmt.Fprintln(out, a.conv.ContextSummary())
			continue
		}

		answer, err := a.answerWithFallback(cmd.Context(), cmd.ErrOrStderr(), &chain, question)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		a.recordExchange(question, answer)
		fmt.Fprintln(out, answer.Content)
		printSources(out, answer)
		if err := a.conv.SaveSession(sessionPath); err != nil {
			a.logger.Warn("saving session", zap.Error(err))
		}
	}
	return a.conv.SaveSession(sessionPath)
}

// answerWithFallback asks the chain and, on a provider-side failure,
// retries once with the next enabled provider. The chain pointer is
// replaced so the session stays on the working provider.
func (a *app) answerWithFallback(ctx context.Context, errOut io.Writer, chain **aiservice.Chain, question string) (aiservice.Answer, error) {
	answer, err := (*chain).Ask(ctx, question)
	if err == nil || !errors.Is(err, aiservice.ErrProvider) {
		return answer, err
	}

	current := (*chain).Provider()
	next, ferr := a.ai.Fallback(current)
	if ferr != nil {
		return aiservice.Answer{}, err
	}
	fmt.Fprintf(errOut, "provider %s failed (%v), retrying with %s\n", current, err, next)

	fallback, cerr := a.ai.NewChain(next, a.store, askMemory, askTopK)
	if cerr != nil {
		return aiservice.Answer{}, err
	}
	answer, err = fallback.Ask(ctx, question)
	if err == nil {
		*chain = fallback
	}
	return answer, err
}

func (a *app) recordExchange(question string, answer aiservice.Answer) {
	a.conv.Append(conversation.RoleUser, question, nil)
	a.conv.Append(conversation.RoleAssistant, answer.Content, answer.Sources)
	a.conv.TrimToTokenLimit()
}

func printSources(out io.Writer, answer aiservice.Answer) {
	seen := make(map[string]bool)
	var names []string
	for _, src := range answer.Sources {
		if name := src.Metadata["source"]; name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		fmt.Fprintf(out, "[sources: %s]\n", strings.Join(names, ", "))
	}
}
