package cmd

import (
	"github.com/emrgen/docview/internal/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var httpPort string

	command := &cobra.Command{
		Use:   "serve",
		Short: "start the http server",
		Run: func(cmd *cobra.Command, args []string) {
			server.NewServer(httpPort).Start()
		},
	}

	command.Flags().StringVar(&httpPort, "http-port", envOr("HTTP_PORT", "4001"), "http port")

	return command
}
