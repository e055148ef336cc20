package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/msageha/tradedesk/internal/router"
)

func routeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "route <request...>",
		Short: "Show which tier and workers a request would be routed to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := router.New(cfg.Routing.Rules)
			if err != nil {
				return errors.Wrap(err, "invalid routing rules")
			}
			d := r.Route(strings.Join(args, " "))
			if asJSON {
				return printJSON(d)
			}
			printDecision(d)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	return cmd
}

func printDecision(d router.Decision) {
	rule := d.Rule
	if rule == "" {
		rule = "(fallback)"
	}
	tw := newTable("Tier", "Subject", "Rule", "Workers")
	tw.AppendRow([]any{d.Tier, d.Subject, rule, strings.Join(d.Workers, ", ")})
	tw.Render()
}
