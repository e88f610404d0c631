package cmd

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/emrgen/docview/internal/config"
	"github.com/emrgen/docview/internal/jobs"
	"github.com/emrgen/docview/internal/server"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "viewing session commands",
}

func init() {
	sessionCmd.AddCommand(sweepSessionCmd())
	sessionCmd.AddCommand(showSessionCmd())
}

// sweepSessionCmd runs one abandonment sweep directly against the database.
func sweepSessionCmd() *cobra.Command {
	var inactivity time.Duration
	var batch int

	command := &cobra.Command{
		Use:     "sweep",
		Short:   "abandon sessions idle for longer than the inactivity threshold",
		Example: "docview session sweep --inactivity 30m",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			if inactivity <= 0 {
				inactivity = cfg.SweepInactivity
			}
			if inactivity <= 0 {
				color.Red("missing: --inactivity (or SWEEP_INACTIVITY)")
				return
			}
			if batch <= 0 {
				batch = cfg.SweepBatch
			}

			backend, err := server.NewBackend(cfg, config.GetDb(cfg))
			if err != nil {
				logrus.Fatalf("error starting backend: %v", err)
			}
			defer backend.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			sweep := jobs.NewSessionSweepTask(backend.Services.Sessions, "", inactivity, batch)
			n, err := sweep.Sweep(ctx)
			if err != nil {
				color.Red("sweep failed after %d sessions: %v", n, err)
				return
			}

			color.Green("abandoned %d sessions", n)
		},
	}

	command.Flags().DurationVar(&inactivity, "inactivity", 0, "inactivity threshold, defaults to SWEEP_INACTIVITY")
	command.Flags().IntVar(&batch, "batch", 0, "sessions per batch, defaults to SWEEP_BATCH")

	return command
}

func showSessionCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "show <session-token>",
		Short:   "show a session with its page views",
		Args:    cobra.ExactArgs(1),
		Example: "docview session show <session-token>",
		Run: func(cmd *cobra.Command, args []string) {
			detail, err := apiClient().SessionDetail(context.Background(), args[0])
			if err != nil {
				color.Red("error getting session: %v", err)
				return
			}

			s := detail.Session
			renderTable(
				[]string{"Session", "Status", "Started", "Duration", "Pages", "Device", "Browser", "OS"},
				[][]string{{
					s.Token,
					s.Status,
					s.StartedAt.Format(time.DateTime),
					seconds(s.TotalDuration),
					strconv.Itoa(s.UniquePages) + "/" + strconv.Itoa(s.TotalPages),
					s.DeviceType,
					s.Browser,
					s.OperatingSystem,
				}},
			)

			sort.Slice(detail.Pages, func(i, j int) bool {
				return detail.Pages[i].Page < detail.Pages[j].Page
			})

			rows := make([][]string, 0, len(detail.Pages))
			for _, p := range detail.Pages {
				rows = append(rows, []string{
					strconv.Itoa(p.Page),
					seconds(p.Duration),
					strconv.FormatFloat(p.ScrollDepth, 'f', 0, 64) + "%",
					strconv.FormatFloat(p.ZoomLevel, 'f', 2, 64),
					strconv.FormatBool(p.IsComplete),
				})
			}
			renderTable([]string{"Page", "Duration", "Scroll", "Zoom", "Complete"}, rows)
		},
	}

	return command
}
