package worker

import (
	"context"
	"math"
	"sort"

	"github.com/msageha/tradedesk/internal/desk"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/marketdata"
	"github.com/msageha/tradedesk/internal/model"
)

// DecisionInputs are the upstream figures a trade decision is made from.
type DecisionInputs struct {
	SignalScore  int
	HasSignal    bool
	Sentiment    float64
	HasSentiment bool
	RiskScore    int
	HasRisk      bool
	// Adjustment scales confidence; 1.0 is neutral.
	Adjustment float64
}

type Decision struct {
	Action        string   `json:"action"`
	Confidence    float64  `json:"confidence"`
	AllocationPct float64  `json:"allocation_pct"`
	Reasons       []string `json:"reasons"`
}

// RiskVeto is the risk score at and above which a BUY is downgraded to HOLD.
const RiskVeto = 8

// Decide combines the technical score with a sentiment vote, applies the risk
// veto and scales confidence by the scorecard adjustment.
func Decide(in DecisionInputs) Decision {
	var d Decision
	combined := 0
	missing := 0

	if in.HasSignal {
		combined += in.SignalScore
	} else {
		missing++
		d.Reasons = append(d.Reasons, "no technical signal available")
	}
	if in.HasSentiment {
		switch ClassifySentiment(in.Sentiment) {
		case "BULLISH":
			combined++
			d.Reasons = append(d.Reasons, "news sentiment is bullish")
		case "BEARISH":
			combined--
			d.Reasons = append(d.Reasons, "news sentiment is bearish")
		}
	} else {
		missing++
		d.Reasons = append(d.Reasons, "no sentiment data available")
	}
	risk := 5
	if in.HasRisk {
		risk = in.RiskScore
	} else {
		missing++
		d.Reasons = append(d.Reasons, "no risk assessment available")
	}

	switch {
	case combined >= 2:
		d.Action = "BUY"
	case combined <= -2:
		d.Action = "SELL"
	default:
		d.Action = "HOLD"
	}
	if d.Action == "BUY" && in.HasRisk && risk >= RiskVeto {
		d.Action = "HOLD"
		d.Reasons = append(d.Reasons, "risk score vetoes new long exposure")
	}

	conf := math.Min(0.9, 0.5+0.05*math.Abs(float64(combined)))
	conf -= 0.1 * float64(missing)
	adj := in.Adjustment
	if adj == 0 {
		adj = 1
	}
	conf *= adj
	d.Confidence = math.Round(math.Max(0.05, math.Min(0.95, conf))*100) / 100

	if d.Action == "BUY" {
		// One percent of cash per point of headroom below the maximum risk.
		d.AllocationPct = float64(10 - risk)
	}
	return d
}

// PortfolioManager makes the final call and records it as a prediction.
type PortfolioManager struct {
	deps Deps
}

func (w *PortfolioManager) Name() string { return model.WorkerPortfolioManager }

func (w *PortfolioManager) Run(ctx context.Context, in Input) (string, error) {
	var di DecisionInputs
	var agents []string

	if body, ok := in.Upstream[model.WorkerTechnicalAnalyst]; ok {
		if v, ok := NumberField(body, "Signal score"); ok {
			di.SignalScore, di.HasSignal = int(v), true
			agents = append(agents, model.WorkerTechnicalAnalyst)
		}
	}
	if body, ok := in.Upstream[model.WorkerNewsSentiment]; ok {
		if v, ok := NumberField(body, "Sentiment score"); ok {
			di.Sentiment, di.HasSentiment = v, true
			agents = append(agents, model.WorkerNewsSentiment)
		}
	}
	if body, ok := in.Upstream[model.WorkerRiskSpecialist]; ok {
		if v, ok := NumberField(body, "Risk score"); ok {
			di.RiskScore, di.HasRisk = int(v), true
			agents = append(agents, model.WorkerRiskSpecialist)
		}
	}

	di.Adjustment = 1
	portfolio := desk.Portfolio{Cash: desk.DefaultCash}
	if w.deps.Desk != nil {
		adj, err := w.deps.Desk.Adjustment(ctx, w.Name())
		if err != nil {
			return "", err
		}
		di.Adjustment = adj
		if p, err := w.deps.Desk.Portfolio.Load(ctx); err == nil {
			portfolio = p
		} else {
			logger.G(ctx).WithError(err).Warn("failed to load portfolio, assuming default cash")
		}
	}

	price := w.price(ctx, in)
	d := Decide(di)
	agents = append(agents, w.Name())
	sort.Strings(agents)

	r := newReport(in.Subject + " Trade Decision")
	r.section("Decision")
	r.field("Action", "%s", d.Action)
	r.field("Confidence", "%.2f", d.Confidence)
	r.field("Confidence adjustment", "%.2f", di.Adjustment)
	if price > 0 {
		r.field("Reference price", "%s", money(price))
	}
	if d.Action == "BUY" {
		r.field("Allocation", "%.1f%% of cash (%s)", d.AllocationPct, money(portfolio.Cash*d.AllocationPct/100))
	}
	if price > 0 {
		if exp := portfolio.Exposure(in.Subject, price); exp > 0 {
			r.field("Current exposure", "%s", money(exp))
		}
	}
	r.section("Inputs")
	if di.HasSignal {
		r.field("Signal score", "%d", di.SignalScore)
	}
	if di.HasSentiment {
		r.field("Sentiment score", "%.2f", di.Sentiment)
	}
	if di.HasRisk {
		r.field("Risk score", "%d/10", di.RiskScore)
	}
	if len(d.Reasons) > 0 {
		r.section("Notes")
		for _, reason := range d.Reasons {
			r.line("- %s", reason)
		}
	}
	writeGaps(r, in)

	if w.deps.Desk != nil {
		p, err := w.deps.Desk.RecordPrediction(ctx, desk.Prediction{
			SessionID:  in.SessionID,
			Subject:    in.Subject,
			Action:     d.Action,
			Confidence: d.Confidence,
			Price:      price,
			Agents:     agents,
		})
		if err != nil {
			return "", err
		}
		r.section("Tracking")
		r.field("Prediction", "%s", p.ID)
	}
	return r.String(), nil
}

func (w *PortfolioManager) price(ctx context.Context, in Input) float64 {
	if body, ok := in.Upstream[model.WorkerMarketMonitor]; ok {
		if v, ok := NumberField(body, "Price"); ok {
			return v
		}
	}
	if w.deps.Source == nil {
		return 0
	}
	candles, err := w.deps.Source.Candles(ctx, in.Subject, "1d", 1)
	if err != nil || len(candles) == 0 {
		logger.G(ctx).WithError(err).WithField("subject", in.Subject).Debug("no reference price")
		return 0
	}
	return marketdata.Closes(candles)[len(candles)-1]
}
