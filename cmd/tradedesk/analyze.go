package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/msageha/tradedesk/internal/coordinator"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/presenter"
)

func analyzeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze <request...>",
		Short: "Run an analysis session and print the consolidated report",
		Example: `  tradedesk analyze full analysis of BTC
  tradedesk analyze "ETH rsi and macd"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.G(ctx).WithError(err).Warn("failed to release resources")
				}
			}()

			out, err := a.coordinator.Run(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(out)
			}
			printConsolidated(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session outcome as JSON")
	return cmd
}

func printConsolidated(out *coordinator.ConsolidatedArtifact) {
	presenter.Markdown(out.Content)
	presenter.Separator()
	presenter.Success(fmt.Sprintf("session %s finalized: %s", out.SessionID, out.Path))
	for _, m := range out.Degraded {
		presenter.Warning(fmt.Sprintf("%s: %s", m.Worker, m.Note))
	}
}
