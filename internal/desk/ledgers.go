package desk

import (
	"math"
	"sort"
	"time"

	"github.com/msageha/tradedesk/internal/model"
)

// DefaultCash seeds a new paper portfolio.
const DefaultCash = 10000.0

type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

type Trade struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	PredictionID string    `json:"prediction_id,omitempty"`
	At           time.Time `json:"at"`
}

type Portfolio struct {
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"`
	Trades    []Trade             `json:"trades"`
}

// Exposure returns the value of the position in symbol at price.
func (p Portfolio) Exposure(symbol string, price float64) float64 {
	return p.Positions[symbol].Quantity * price
}

// Prediction is a recorded call awaiting resolution.
type Prediction struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Subject    string     `json:"subject"`
	Action     string     `json:"action"`
	Confidence float64    `json:"confidence"`
	Price      float64    `json:"price"`
	Agents     []string   `json:"agents"`
	CreatedAt  time.Time  `json:"created_at"`
	Resolved   bool       `json:"resolved"`
	Correct    *bool      `json:"correct,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type Predictions struct {
	Predictions []Prediction `json:"predictions"`
}

func (p *Predictions) find(id string) int {
	for i := range p.Predictions {
		if p.Predictions[i].ID == id {
			return i
		}
	}
	return -1
}

// Accuracy returns the share of resolved predictions that were correct and
// the number resolved.
func (p Predictions) Accuracy() (float64, int) {
	var resolved, correct int
	for _, pr := range p.Predictions {
		if !pr.Resolved {
			continue
		}
		resolved++
		if pr.Correct != nil && *pr.Correct {
			correct++
		}
	}
	if resolved == 0 {
		return 0, 0
	}
	return float64(correct) / float64(resolved), resolved
}

type Scorecard struct {
	Agent                string    `json:"agent"`
	Total                int       `json:"total"`
	Correct              int       `json:"correct"`
	Accuracy             float64   `json:"accuracy"`
	ConfidenceAdjustment float64   `json:"confidence_adjustment"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type Scorecards struct {
	Agents map[string]Scorecard `json:"agents"`
}

// Adjustment returns the agent's confidence multiplier, 1.0 for an agent
// without history.
func (s Scorecards) Adjustment(agent string) float64 {
	sc, ok := s.Agents[agent]
	if !ok {
		return 1.0
	}
	return sc.ConfidenceAdjustment
}

// Record applies one resolved outcome to the agent's scorecard.
func (s *Scorecards) Record(agent string, correct bool, policy model.ScorecardPolicy, at time.Time) Scorecard {
	if s.Agents == nil {
		s.Agents = make(map[string]Scorecard)
	}
	sc, ok := s.Agents[agent]
	if !ok {
		sc = Scorecard{Agent: agent, ConfidenceAdjustment: 1.0}
	}

	sc.Total++
	if correct {
		sc.Correct++
		sc.ConfidenceAdjustment += policy.Reward
	} else {
		sc.ConfidenceAdjustment -= policy.Penalty
	}
	sc.ConfidenceAdjustment = clamp(round4(sc.ConfidenceAdjustment), policy.Min, policy.Max)
	sc.Accuracy = round4(float64(sc.Correct) / float64(sc.Total))
	sc.UpdatedAt = at

	s.Agents[agent] = sc
	return sc
}

// Sorted returns the scorecards ordered by agent name.
func (s Scorecards) Sorted() []Scorecard {
	out := make([]Scorecard, 0, len(s.Agents))
	for _, sc := range s.Agents {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

// Pattern is a recurring market setup noticed across sessions.
type Pattern struct {
	Name        string    `json:"name"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Occurrences int       `json:"occurrences"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

type Patterns struct {
	Patterns []Pattern `json:"patterns"`
}

// Observe counts one sighting of the named pattern on subject.
func (p *Patterns) Observe(name, subject, description string, at time.Time) Pattern {
	for i := range p.Patterns {
		pt := &p.Patterns[i]
		if pt.Name == name && pt.Subject == subject {
			pt.Occurrences++
			pt.LastSeen = at
			if description != "" {
				pt.Description = description
			}
			return *pt
		}
	}
	pt := Pattern{
		Name:        name,
		Subject:     subject,
		Description: description,
		Occurrences: 1,
		FirstSeen:   at,
		LastSeen:    at,
	}
	p.Patterns = append(p.Patterns, pt)
	return pt
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
