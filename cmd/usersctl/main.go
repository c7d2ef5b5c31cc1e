package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts globalOptions
	root := &cobra.Command{
		Use:           "usersctl",
		Short:         "List and edit users through a normalized cache",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to normcache.yaml")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format: table or json")

	root.AddCommand(listCmd(&opts))
	root.AddCommand(createCmd(&opts))
	root.AddCommand(updateCmd(&opts))
	root.AddCommand(deleteCmd(&opts))
	root.AddCommand(seedCmd(&opts))
	root.AddCommand(versionCmd())
	return root
}
