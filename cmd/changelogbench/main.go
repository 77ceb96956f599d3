// Command changelogbench runs one changelog emission invocation and reports
// its memory use.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "changelogbench",
		Short:        "Bounded memory changelog emission harness.",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
