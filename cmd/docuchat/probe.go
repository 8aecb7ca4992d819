package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe [provider]",
	Short: "Check that AI providers respond",
	Long: `Send a trivial completion to one provider, or to every enabled
provider when none is named.

Examples:
  docuchat probe
  docuchat probe deepseek`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	providers := a.cfg.EnabledServices()
	if len(args) == 1 {
		providers = args
	}
	if len(providers) == 0 {
		return fmt.Errorf("no AI providers enabled in %s", configPath)
	}
	sort.Strings(providers)

	failed := 0
	for _, name := range providers {
		status := "ok"
		if !a.ai.Probe(cmd.Context(), name) {
			status = "unreachable"
			failed++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", name, status)
	}
	if failed > 0 {
		return fmt.Errorf("%d provider(s) unreachable", failed)
	}
	return nil
}
