package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/tradedesk/internal/desk"
	"github.com/msageha/tradedesk/internal/presenter"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Inspect and update the desk's paper-trading ledgers"}
	cmd.AddCommand(ledgerScorecardsCmd())
	cmd.AddCommand(ledgerPredictionsCmd())
	cmd.AddCommand(ledgerPortfolioCmd())
	cmd.AddCommand(ledgerResolveCmd())
	return cmd
}

func openDesk() *desk.Desk {
	return desk.Open(cfg.StateDir, cfg.Scorecard)
}

func ledgerScorecardsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scorecards",
		Short: "Show per-agent accuracy and confidence adjustments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDesk().Scorecards.Load(cmd.Context())
			if err != nil {
				return err
			}
			cards := s.Sorted()
			if asJSON {
				return printJSON(cards)
			}
			if len(cards) == 0 {
				presenter.Info("No resolved predictions yet.")
				return nil
			}
			tw := newTable("Agent", "Total", "Correct", "Accuracy", "Adjustment", "Updated")
			for _, sc := range cards {
				tw.AppendRow([]any{sc.Agent, sc.Total, sc.Correct, percent(sc.Accuracy), fmt.Sprintf("%.2f", sc.ConfidenceAdjustment), formatTime(sc.UpdatedAt)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print scorecards as JSON")
	return cmd
}

func ledgerPredictionsCmd() *cobra.Command {
	var (
		openOnly bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "predictions",
		Short: "List recorded predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := openDesk().Predictions.Load(cmd.Context())
			if err != nil {
				return err
			}
			list := filterPredictions(ps.Predictions, openOnly)
			if asJSON {
				return printJSON(list)
			}
			if len(list) == 0 {
				presenter.Info("No predictions.")
				return nil
			}
			tw := newTable("ID", "Subject", "Action", "Confidence", "Price", "Created", "Outcome")
			for _, p := range list {
				tw.AppendRow([]any{p.ID, p.Subject, presenter.Action(p.Action), percent(p.Confidence), fmt.Sprintf("%.2f", p.Price), formatTime(p.CreatedAt), outcome(p)})
			}
			tw.Render()
			if acc, n := ps.Accuracy(); n > 0 {
				presenter.Info(fmt.Sprintf("Accuracy: %s over %d resolved", percent(acc), n))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&openOnly, "open", false, "only list unresolved predictions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print predictions as JSON")
	return cmd
}

// filterPredictions returns predictions newest first, optionally without the
// resolved ones.
func filterPredictions(in []desk.Prediction, openOnly bool) []desk.Prediction {
	out := make([]desk.Prediction, 0, len(in))
	for _, p := range in {
		if openOnly && p.Resolved {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func outcome(p desk.Prediction) string {
	switch {
	case !p.Resolved:
		return "open"
	case p.Correct != nil && *p.Correct:
		return "correct"
	default:
		return "incorrect"
	}
}

func ledgerPortfolioCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Show cash, positions and recent trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openDesk().Portfolio.Load(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(p)
			}
			presenter.Section("Portfolio")
			presenter.Info(fmt.Sprintf("Cash: %.2f", p.Cash))

			symbols := make([]string, 0, len(p.Positions))
			for s := range p.Positions {
				symbols = append(symbols, s)
			}
			sort.Strings(symbols)
			if len(symbols) > 0 {
				tw := newTable("Symbol", "Quantity", "Avg price", "Cost basis")
				for _, s := range symbols {
					pos := p.Positions[s]
					tw.AppendRow([]any{s, fmt.Sprintf("%.6f", pos.Quantity), fmt.Sprintf("%.2f", pos.AvgPrice), fmt.Sprintf("%.2f", pos.Quantity*pos.AvgPrice)})
				}
				tw.Render()
			}
			if len(p.Trades) > 0 {
				tw := newTable("Trade", "Side", "Symbol", "Quantity", "Price", "At")
				for _, t := range p.Trades {
					tw.AppendRow([]any{t.ID, strings.ToUpper(t.Side), t.Symbol, fmt.Sprintf("%.6f", t.Quantity), fmt.Sprintf("%.2f", t.Price), formatTime(t.At)})
				}
				tw.Render()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the portfolio as JSON")
	return cmd
}

func ledgerResolveCmd() *cobra.Command {
	var correct, incorrect bool
	cmd := &cobra.Command{
		Use:   "resolve <prediction>",
		Short: "Resolve a prediction and update the contributing agents' scorecards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openDesk().ResolvePrediction(cmd.Context(), args[0], correct)
			if err != nil {
				return err
			}
			presenter.Success(fmt.Sprintf("prediction %s resolved as %s; updated %s", p.ID, outcome(p), strings.Join(p.Agents, ", ")))
			return nil
		},
	}
	cmd.Flags().BoolVar(&correct, "correct", false, "the prediction was right")
	cmd.Flags().BoolVar(&incorrect, "incorrect", false, "the prediction was wrong")
	cmd.MarkFlagsMutuallyExclusive("correct", "incorrect")
	cmd.MarkFlagsOneRequired("correct", "incorrect")
	return cmd
}
