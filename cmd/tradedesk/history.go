package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/tradedesk/internal/history"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/presenter"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "history", Short: "Browse archived sessions"}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyShowCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.G(ctx).WithError(err).Warn("failed to close history")
				}
			}()

			runs, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				if runs == nil {
					runs = []history.Run{}
				}
				return printJSON(runs)
			}
			if len(runs) == 0 {
				presenter.Info("No sessions archived yet.")
				return nil
			}
			tw := newTable("Session", "Subject", "Tier", "Status", "Finished", "Degraded")
			for _, r := range runs {
				degraded := "-"
				if len(r.Degraded) > 0 {
					degraded = strings.Join(r.Degraded, ", ")
				}
				tw.AppendRow([]any{r.SessionID, r.Subject, r.Tier, r.Status, formatTime(r.FinishedAt), degraded})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print sessions as JSON")
	return cmd
}

func historyShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Show one archived session and its task outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(run)
			}
			printRun(run)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

func printRun(r history.Run) {
	presenter.Section(fmt.Sprintf("%s (%s)", r.SessionID, r.Status))
	presenter.Info(fmt.Sprintf("Request:  %s", r.Request))
	presenter.Info(fmt.Sprintf("Subject:  %s", r.Subject))
	presenter.Info(fmt.Sprintf("Tier:     %s", r.Tier))
	presenter.Info(fmt.Sprintf("Started:  %s", formatTime(r.CreatedAt)))
	presenter.Info(fmt.Sprintf("Finished: %s", formatTime(r.FinishedAt)))
	if r.ReportPath != "" {
		presenter.Info(fmt.Sprintf("Report:   %s", r.ReportPath))
	}

	tw := newTable("Phase", "Worker", "Status", "Note")
	for _, t := range r.Tasks {
		status := t.Status
		switch {
		case t.Degraded:
			status += " (degraded)"
		case t.Late:
			status += " (late)"
		}
		tw.AppendRow([]any{t.Phase, t.Worker, status, t.Note})
	}
	tw.Render()
}
