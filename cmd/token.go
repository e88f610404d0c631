package cmd

import (
	"fmt"
	"time"

	"github.com/emrgen/docview/internal/config"
	"github.com/emrgen/docview/internal/module"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "capability token commands",
}

func init() {
	tokenCmd.AddCommand(adminTokenCmd())
}

// adminTokenCmd mints an admin token with the server's CAPABILITY_SECRET.
func adminTokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	var save bool

	command := &cobra.Command{
		Use:     "admin",
		Short:   "issue an admin capability token",
		Example: "docview token admin -s alice --ttl 1h --save",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			if ttl <= 0 {
				ttl = cfg.CapabilityTTL
			}

			issuer := module.NewCapabilityIssuer(cfg.CapabilitySecret, ttl)
			token, expiresAt, err := issuer.Issue(subject)
			if err != nil {
				color.Red("error issuing token: %v", err)
				return
			}

			if save {
				current := readContext()
				current.Token = token
				if err := writeContext(current); err != nil {
					color.Red("error saving token: %v", err)
					return
				}
				color.Green("token saved to context, expires at %s", expiresAt.Format(time.RFC3339))
				return
			}

			fmt.Println(token)
		},
	}

	command.Flags().StringVarP(&subject, "subject", "s", "admin", "who the token is issued to")
	command.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to CAPABILITY_TTL")
	command.Flags().BoolVar(&save, "save", false, "save the token to the current context")

	return command
}
