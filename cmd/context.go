package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emrgen/docview"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "context"
	defaultServer  = "http://localhost:4001"
)

var contextCommand = &cobra.Command{
	Use:   "context",
	Short: "context commands",
}

func init() {
	contextCommand.AddCommand(setContextCommand())
	contextCommand.AddCommand(currentContextCommand())
	contextCommand.AddCommand(resetContextCommand())
}

// Context is the server and admin token the cli talks to.
type Context struct {
	Server string
	Token  string
}

// saves the context info to the config file in ~/.config/docview
func setContextCommand() *cobra.Command {
	var server string
	var token string
	command := &cobra.Command{
		Use:   "set",
		Short: "set context",
		Run: func(cmd *cobra.Command, args []string) {
			if server == "" && token == "" {
				color.Red(`missing: --server or --token`)
				return
			}

			current := readContext()
			if server != "" {
				current.Server = server
			}
			if token != "" {
				current.Token = token
			}

			if err := writeContext(current); err != nil {
				color.Red("error writing config file: %v", err)
				return
			}
			color.Green("context saved")
		},
	}

	command.Flags().StringVarP(&server, "server", "s", "", "server url")
	command.Flags().StringVarP(&token, "token", "t", "", "admin capability token")

	return command
}

func currentContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "current",
		Short: "current context",
		Run: func(cmd *cobra.Command, args []string) {
			current := readContext()
			fmt.Printf("server: %s\n", current.Server)
			if current.Token == "" {
				fmt.Println("token:  <none>")
			} else {
				fmt.Println("token:  set")
			}
		},
	}

	return command
}

func resetContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "reset",
		Short: "reset context",
		Run: func(cmd *cobra.Command, args []string) {
			if err := writeContext(Context{Server: defaultServer}); err != nil {
				color.Red("error writing config file: %v", err)
				return
			}
			color.Green("context reset")
		},
	}

	return command
}

func contextDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./.tmp"
	}

	return filepath.Join(dir, "docview")
}

func contextViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(configFileName)
	v.SetConfigType("yml")
	v.AddConfigPath(contextDir())
	v.SetDefault("context.server", defaultServer)
	_ = v.BindEnv("context.server", "DOCVIEW_SERVER")
	_ = v.BindEnv("context.token", "DOCVIEW_TOKEN")

	return v
}

func writeContext(current Context) error {
	if err := os.MkdirAll(contextDir(), 0o700); err != nil {
		return err
	}

	v := contextViper()
	v.Set("context.server", current.Server)
	v.Set("context.token", current.Token)

	return v.WriteConfigAs(filepath.Join(contextDir(), configFileName+".yml"))
}

// readContext loads the saved context. DOCVIEW_SERVER and DOCVIEW_TOKEN override the file.
func readContext() Context {
	v := contextViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			color.Yellow("error reading config file: %v", err)
		}
	}

	current := Context{
		Server: v.GetString("context.server"),
		Token:  v.GetString("context.token"),
	}
	if current.Server == "" {
		current.Server = defaultServer
	}

	return current
}

func apiClient() *docview.Client {
	current := readContext()
	return docview.NewClient(current.Server, current.Token)
}
