package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docview",
	Short: "document view tracking tool",
	Example: `docview serve
docview db migrate
docview context set --server http://localhost:4001 --token <token>
docview document register -n <name> -p <pages>
docview link issue -d <doc-id>
docview report rollup -d <doc-id> --from 2024-03-01
docview session sweep --inactivity 30m`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(contextCommand)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(documentCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
