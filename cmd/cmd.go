package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tracelake/tracelake/cmd/start"
	"github.com/tracelake/tracelake/utils/log"
)

// Version is set at build time.
var Version = "dev"

// flagPrintVersion set flag to show the current tracelake version.
var flagPrintVersion bool

// Execute builds the command tree and executes commands.
func Execute() error {
	// c is the root command.
	c := &cobra.Command{
		Use: "tracelake",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Print version if specified.
			if flagPrintVersion {
				log.Info("version: %s", Version)
				return nil
			}
			// Print information regarding usage.
			return cmd.Usage()
		},
	}

	c.AddCommand(start.Cmd)
	c.Flags().BoolVarP(&flagPrintVersion, "version", "v", false, "show the version info and exit")

	return c.Execute()
}
