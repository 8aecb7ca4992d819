package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the saved conversation",
	Long: `Render the saved conversation session as markdown, json, or txt.
Without --out the export is printed to stdout.

Examples:
  docuchat export --format markdown --out chat.md
  docuchat export --format json`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "markdown", "export format: markdown, json, or txt")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write the export to this path")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if len(a.conv.Messages()) == 0 {
		return fmt.Errorf("no conversation recorded in %s", sessionPath)
	}

	content, err := a.conv.Export(exportFormat, exportOut)
	if err != nil {
		return err
	}
	if exportOut == "" {
		fmt.Fprintln(cmd.OutOrStdout(), content)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "exported conversation to %s\n", exportOut)
	}
	return nil
}
