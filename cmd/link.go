package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/emrgen/docview"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "public link commands",
}

func init() {
	linkCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	linkCmd.AddCommand(issueLinkCmd())
	linkCmd.AddCommand(currentLinkCmd())
	linkCmd.AddCommand(resolveLinkCmd())
}

func renderLink(link *docview.Link) {
	lastUsed := "-"
	if link.LastUsedAt != nil {
		lastUsed = link.LastUsedAt.Format(time.DateTime)
	}

	renderTable(
		[]string{"Public Token", "Document ID", "Active", "Views", "Last Used"},
		[][]string{{link.PublicToken, link.DocumentID, strconv.FormatBool(link.Active), strconv.FormatInt(link.ViewCount, 10), lastUsed}},
	)
}

func issueLinkCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "issue",
		Short:   "issue a new public link, deactivating the previous one",
		Example: "docview link issue -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			link, err := apiClient().IssueLink(context.Background(), docID)
			if err != nil {
				color.Red("error issuing link: %v", err)
				return
			}

			renderLink(link)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	return command
}

func currentLinkCmd() *cobra.Command {
	var docID string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "current",
		Short:   "show the active public link of a document",
		Example: "docview link current -d <doc-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			link, err := apiClient().CurrentLink(context.Background(), docID)
			if err != nil {
				color.Red("error getting link: %v", err)
				return
			}

			renderLink(link)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")

	return command
}

func resolveLinkCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "resolve <public-token>",
		Short:   "resolve a public link as a viewer would",
		Args:    cobra.ExactArgs(1),
		Example: "docview link resolve <public-token>",
		Run: func(cmd *cobra.Command, args []string) {
			view, err := apiClient().Resolve(context.Background(), args[0])
			if err != nil {
				if docview.IsNotFound(err) {
					color.Yellow("link %s is not active", args[0])
					return
				}
				color.Red("error resolving link: %v", err)
				return
			}

			renderTable(
				[]string{"Document ID", "Name", "Pages"},
				[][]string{{view.DocumentID, view.Name, strconv.Itoa(view.PageCount)}},
			)
		},
	}

	return command
}
