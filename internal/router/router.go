// Package router classifies free-form requests into routing tiers.
package router

import (
	"sort"
	"strings"
	"unicode"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/model"
)

// DefaultSubject is used when the request names no ticker.
const DefaultSubject = "BTC"

// Decision is the outcome of routing one request.
type Decision struct {
	Tier    model.Tier `json:"tier"`
	Workers []string   `json:"workers"`
	// Rule is the pattern that matched; empty for the fallback.
	Rule    string `json:"rule,omitempty"`
	Subject string `json:"subject"`
}

type compiledRule struct {
	rule  model.RoutingRule
	globs []glob.Glob
}

type Router struct {
	rules []compiledRule
}

// DefaultRules is the built-in rule table.
func DefaultRules() []model.RoutingRule {
	return []model.RoutingRule{
		{
			Tier:     model.TierSpecial,
			Patterns: []string{"*scorecard*", "*performance review*", "*post-mortem*", "*postmortem*", "*backtest*"},
			Workers:  []string{model.WorkerPerformanceReviewer},
		},
		{
			Tier:     model.TierFull,
			Patterns: []string{"*full analysis*", "*analy[sz]e*", "*analysis*", "*should i buy*", "*should i sell*", "*trade*"},
			Workers: []string{
				model.WorkerMarketMonitor,
				model.WorkerTechnicalAnalyst,
				model.WorkerNewsSentiment,
				model.WorkerRiskSpecialist,
				model.WorkerPortfolioManager,
			},
		},
		{
			Tier:     model.TierStandard,
			Patterns: []string{"*sentiment*", "*news*"},
			Workers:  []string{model.WorkerNewsSentiment},
		},
		{
			Tier:     model.TierStandard,
			Patterns: []string{"*rsi*", "*macd*", "*technical*", "*chart*", "*risk*", "*volatility*"},
			Workers:  []string{model.WorkerTechnicalAnalyst, model.WorkerRiskSpecialist},
		},
		{
			Tier:     model.TierQuick,
			Patterns: []string{"*"},
			Workers:  []string{model.WorkerMarketMonitor},
		},
	}
}

// New compiles rules. An empty list selects DefaultRules. Rules are tried
// by descending tier rank and, within a tier, in the order given.
func New(rules []model.RoutingRule) (*Router, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	var result *multierror.Error
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if !r.Tier.Valid() {
			result = multierror.Append(result, errors.Errorf("rules[%d]: unknown tier %q", i, r.Tier))
		}
		if len(r.Patterns) == 0 {
			result = multierror.Append(result, errors.Errorf("rules[%d]: at least one pattern is required", i))
		}
		if len(r.Workers) == 0 {
			result = multierror.Append(result, errors.Errorf("rules[%d]: at least one worker is required", i))
		}

		cr := compiledRule{rule: r}
		for j, p := range r.Patterns {
			g, err := glob.Compile(strings.ToLower(p))
			if err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "rules[%d].patterns[%d]", i, j))
				continue
			}
			cr.globs = append(cr.globs, g)
		}
		compiled = append(compiled, cr)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, errors.Wrap(err, "invalid routing rules")
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].rule.Tier.Rank() > compiled[j].rule.Tier.Rank()
	})
	return &Router{rules: compiled}, nil
}

// Rules returns the rule table in evaluation order.
func (r *Router) Rules() []model.RoutingRule {
	out := make([]model.RoutingRule, len(r.rules))
	for i, cr := range r.rules {
		out[i] = cr.rule
	}
	return out
}

// Route applies the first matching rule. Requests nothing matches fall back
// to the Quick tier with the market monitor.
func (r *Router) Route(request string) Decision {
	subject := ExtractSubject(request)
	text := strings.ToLower(strings.TrimSpace(request))
	tokens := strings.FieldsFunc(text, func(c rune) bool {
		return unicode.IsSpace(c) || strings.ContainsRune(",.;:!?()\"'", c)
	})

	for _, cr := range r.rules {
		for i, g := range cr.globs {
			if matches(g, text, tokens) {
				return Decision{
					Tier:    cr.rule.Tier,
					Workers: append([]string(nil), cr.rule.Workers...),
					Rule:    cr.rule.Patterns[i],
					Subject: subject,
				}
			}
		}
	}
	return Decision{
		Tier:    model.TierQuick,
		Workers: []string{model.WorkerMarketMonitor},
		Subject: subject,
	}
}

func matches(g glob.Glob, text string, tokens []string) bool {
	if g.Match(text) {
		return true
	}
	for _, tok := range tokens {
		if g.Match(tok) {
			return true
		}
	}
	return false
}
