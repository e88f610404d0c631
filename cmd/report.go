package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "analytics commands",
}

func init() {
	reportCmd.AddCommand(rollupReportCmd())
	reportCmd.AddCommand(sessionsReportCmd())
	reportCmd.AddCommand(dashboardReportCmd())
}

func rollupReportCmd() *cobra.Command {
	var docID, from, to string

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "rollup",
		Short:   "daily and device rollup of a document",
		Example: "docview report rollup -d <doc-id> --from 2024-03-01 --to 2024-03-31",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			rollup, err := apiClient().Rollup(context.Background(), docID, from, to)
			if err != nil {
				color.Red("error getting rollup: %v", err)
				return
			}

			color.Cyan("%s: %d sessions, %d page views, %s total", rollup.Name, rollup.Sessions, rollup.Views, seconds(rollup.TotalDuration))

			daily := make([][]string, 0, len(rollup.Daily))
			for _, b := range rollup.Daily {
				daily = append(daily, []string{b.Date, strconv.Itoa(b.Sessions), strconv.Itoa(b.Views), seconds(b.AverageDuration)})
			}
			renderTable([]string{"Date", "Sessions", "Views", "Avg Duration"}, daily)

			devices := make([][]string, 0, len(rollup.Devices))
			for _, d := range rollup.Devices {
				devices = append(devices, []string{d.DeviceType, d.Browser, d.OperatingSystem, strconv.Itoa(d.Sessions)})
			}
			renderTable([]string{"Device", "Browser", "OS", "Sessions"}, devices)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVar(&from, "from", "", "window start, RFC3339 or YYYY-MM-DD")
	command.Flags().StringVar(&to, "to", "", "window end, RFC3339 or YYYY-MM-DD")

	return command
}

func sessionsReportCmd() *cobra.Command {
	var docID, from, to string
	var limit int

	var required = []string{"doc-id"}

	command := &cobra.Command{
		Use:     "sessions",
		Short:   "list the public sessions of a document",
		Example: "docview report sessions -d <doc-id> -l 20",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			sessions, err := apiClient().ListSessions(context.Background(), docID, from, to, limit)
			if err != nil {
				color.Red("error listing sessions: %v", err)
				return
			}

			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				email := "-"
				if s.Email != nil {
					email = *s.Email
				}
				rows = append(rows, []string{
					s.Token,
					s.Status,
					s.StartedAt.Format(time.DateTime),
					seconds(s.TotalDuration),
					strconv.Itoa(s.UniquePages),
					s.DeviceType,
					email,
				})
			}
			renderTable([]string{"Session", "Status", "Started", "Duration", "Pages", "Device", "Email"}, rows)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id (required)")
	command.Flags().StringVar(&from, "from", "", "window start, RFC3339 or YYYY-MM-DD")
	command.Flags().StringVar(&to, "to", "", "window end, RFC3339 or YYYY-MM-DD")
	command.Flags().IntVarP(&limit, "limit", "l", 50, "maximum sessions")

	return command
}

func dashboardReportCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "dashboard",
		Short: "totals per document with their public links",
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := apiClient().Dashboard(context.Background())
			if err != nil {
				color.Red("error getting dashboard: %v", err)
				return
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.DocumentID,
					e.Name,
					e.PublicToken,
					strconv.FormatInt(e.Sessions, 10),
					strconv.FormatInt(e.Views, 10),
					seconds(e.TotalDuration),
				})
			}
			renderTable([]string{"ID", "Name", "Public Token", "Sessions", "Views", "Duration"}, rows)
		},
	}

	return command
}
