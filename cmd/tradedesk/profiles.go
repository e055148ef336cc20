package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/msageha/tradedesk/internal/model"
	"github.com/msageha/tradedesk/internal/presenter"
	"github.com/msageha/tradedesk/internal/profile"
)

func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "profiles", Short: "Inspect worker capability profiles"}
	cmd.AddCommand(profilesListCmd())
	cmd.AddCommand(profilesShowCmd())
	return cmd
}

func profilesListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the loaded profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := profile.Load(cmd.Context(), cfg.Profiles.Dir)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(set.List())
			}
			tw := newTable("Name", "Model", "Runner", "Best effort", "Timeout", "Report", "Source")
			for _, p := range set.List() {
				timeout := "-"
				if p.Timeout > 0 {
					timeout = p.Timeout.String()
				}
				tw.AppendRow([]any{p.Name, p.ModelTier, p.Runner, p.BestEffort, timeout, p.Report(), p.Path})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print profiles as JSON")
	return cmd
}

func profilesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one profile and its instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := profile.Load(cmd.Context(), cfg.Profiles.Dir)
			if err != nil {
				return err
			}
			p, err := set.Get(args[0])
			if err != nil {
				return err
			}
			return printProfile(p)
		},
	}
}

func printProfile(p model.Profile) error {
	front, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	presenter.Section(p.Name)
	fmt.Fprint(stdout, string(front))
	if prompt := strings.TrimSpace(p.SystemPrompt); prompt != "" {
		presenter.Separator()
		presenter.Markdown(prompt)
	}
	return nil
}
