// Command toolctl is a thin development CLI that exercises a running
// orchestratord facade over HTTP: attach, prune, sync and health
// subcommands, grounded on liteclaw-liteclaw's cobra-based CLI shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var baseURL string

	root := &cobra.Command{
		Use:   "toolctl",
		Short: "Drive a running Tool Orchestration Service facade",
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:8090", "orchestratord base URL")

	root.AddCommand(newAttachCommand(&baseURL))
	root.AddCommand(newPruneCommand(&baseURL))
	root.AddCommand(newSyncCommand(&baseURL))
	root.AddCommand(newHealthCommand(&baseURL))
	root.AddCommand(newToolsCommand(&baseURL))

	return root
}
