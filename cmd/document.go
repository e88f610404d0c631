package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/emrgen/docview"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"doc"},
	Short:   "document commands",
}

func init() {
	documentCmd.AddCommand(registerDocCmd())
	documentCmd.AddCommand(listDocCmd())
	documentCmd.AddCommand(pagesDocCmd())
	documentCmd.AddCommand(deleteDocCmd())
}

func documentRows(docs ...docview.Document) [][]string {
	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, []string{
			doc.ID,
			doc.Name,
			strconv.Itoa(doc.PageCount),
			doc.PublicToken,
			doc.CreatedAt.Format(time.DateTime),
		})
	}
	return rows
}

var documentHeader = []string{"ID", "Name", "Pages", "Public Token", "Created At"}

func registerDocCmd() *cobra.Command {
	var docID string
	var name string
	var pages int

	var required = []string{"name"}

	command := &cobra.Command{
		Use:     "register",
		Short:   "register a document",
		Long:    `register a document and issue its first public link`,
		Example: "docview document register -n <name> -p <pages> [-d <doc-id>]",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			doc, err := apiClient().RegisterDocument(context.Background(), docview.RegisterRequest{
				ID:        docID,
				Name:      name,
				PageCount: pages,
			})
			if err != nil {
				color.Red("error registering document: %v", err)
				return
			}

			renderTable(documentHeader, documentRows(*doc))
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "stable document id, generated when empty")
	command.Flags().StringVarP(&name, "name", "n", "", "document name (required)")
	command.Flags().IntVarP(&pages, "pages", "p", 0, "page count")

	command.Flags().SortFlags = false

	return command
}

func listDocCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "list",
		Short: "list documents",
		Run: func(cmd *cobra.Command, args []string) {
			docs, err := apiClient().ListDocuments(context.Background())
			if err != nil {
				color.Red("error listing documents: %v", err)
				return
			}

			renderTable(documentHeader, documentRows(docs...))
		},
	}

	return command
}

func pagesDocCmd() *cobra.Command {
	var docID string
	var pages int

	var required = []string{"doc-id", "pages"}

	command := &cobra.Command{
		Use:     "pages",
		Short:   "set the page count of a document",
		Example: "docview document pages -d <doc-id> -p <pages>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			doc, err := apiClient().SetPageCount(context.Background(), docID, pages)
			if err != nil {
				color.Red("error setting page count: %v", err)
				return
			}

			renderTable(documentHeader, documentRows(*doc))
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().IntVarP(&pages, "pages", "p", 0, "page count (required)")

	return command
}

func deleteDocCmd() *cobra.Command {
	var docID string
	var erase bool

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "delete",
		Short:   "delete a document",
		Long:    `soft delete a document, or erase it with all of its sessions and page events`,
		Example: "docview document delete -d <doc-id> [--erase]",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			if err := apiClient().DeleteDocument(context.Background(), docID, erase); err != nil {
				color.Red("error deleting document: %v", err)
				return
			}

			if erase {
				color.Green("document %s erased", docID)
			} else {
				color.Green("document %s deleted", docID)
			}
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().BoolVar(&erase, "erase", false, "erase sessions and page events too")

	return command
}
