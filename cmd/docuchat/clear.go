package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docuchat/internal/vectorstore"
)

var clearCmd = &cobra.Command{
	Use:       "clear [index|session|all]",
	Short:     "Delete the vector index, the saved conversation, or both",
	ValidArgs: []string{"index", "session", "all"},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE:      runClear,
}

func runClear(cmd *cobra.Command, args []string) error {
	target := "all"
	if len(args) == 1 {
		target = args[0]
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if target == "index" || target == "all" {
		if err := a.store.Clear(cmd.Context()); err != nil && !errors.Is(err, vectorstore.ErrIndexNotFound) {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "vector index cleared")
	}
	if target == "session" || target == "all" {
		if err := os.Remove(sessionPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "conversation session cleared")
	}
	return nil
}
