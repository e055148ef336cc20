package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/tradedesk/internal/artifact"
	"github.com/msageha/tradedesk/internal/presenter"
)

func reportsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "reports", Short: "Browse session report directories"}
	cmd.AddCommand(reportsListCmd())
	return cmd
}

func reportsListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List session directories under the reports root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := artifact.ListSessions(cfg.ReportsRoot)
			if err != nil {
				return err
			}
			if asJSON {
				if sessions == nil {
					sessions = []artifact.SessionListing{}
				}
				return printJSON(sessions)
			}
			if len(sessions) == 0 {
				presenter.Info("No reports under " + cfg.ReportsRoot)
				return nil
			}
			tw := newTable("Directory", "Session", "Reports")
			for _, s := range sessions {
				tw.AppendRow([]any{s.Dir, s.SessionID, strings.Join(s.Reports, ", ")})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print listings as JSON")
	return cmd
}
