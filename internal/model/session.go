package model

import "time"

// Worker names of the fixed analysis pipeline.
const (
	WorkerMarketMonitor       = "market-monitor"
	WorkerTechnicalAnalyst    = "technical-analyst"
	WorkerNewsSentiment       = "news-sentiment"
	WorkerRiskSpecialist      = "risk-specialist"
	WorkerPortfolioManager    = "portfolio-manager"
	WorkerPerformanceReviewer = "performance-reviewer"

	// ProducerCoordinator owns the consolidated report.
	ProducerCoordinator = "coordinator"
)

type PhaseIndex int

const (
	PhaseGather PhaseIndex = iota + 1
	PhaseAssess
	PhaseDecide
)

func (p PhaseIndex) String() string {
	switch p {
	case PhaseGather:
		return "gather"
	case PhaseAssess:
		return "assess-risk"
	case PhaseDecide:
		return "decide"
	default:
		return "unknown"
	}
}

// Task is one entry of the task ledger.
type Task struct {
	ID             string        `yaml:"id" json:"id"`
	Description    string        `yaml:"description" json:"description"`
	AssignedWorker string        `yaml:"assigned_worker" json:"assigned_worker"`
	// Label names the data the task contributes, used in degradation notes.
	Label          string        `yaml:"label,omitempty" json:"label,omitempty"`
	BlockedBy      []string      `yaml:"blocked_by" json:"blocked_by"`
	Status         TaskStatus    `yaml:"status" json:"status"`
	BestEffort     bool          `yaml:"best_effort" json:"best_effort"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	Waived         bool          `yaml:"waived" json:"waived"`
	WaiveReason    string        `yaml:"waive_reason,omitempty" json:"waive_reason,omitempty"`
	CreatedAt      time.Time     `yaml:"created_at" json:"created_at"`
	StartedAt      *time.Time    `yaml:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt    *time.Time    `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand outside the ledger.
func (t Task) Clone() Task {
	c := t
	c.BlockedBy = append([]string(nil), t.BlockedBy...)
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return c
}

type Phase struct {
	Index  PhaseIndex `yaml:"index" json:"index"`
	Tasks  []string   `yaml:"tasks" json:"tasks"`
	Gating Gating     `yaml:"gating" json:"gating"`
}

type Session struct {
	ID        string        `yaml:"session_id" json:"session_id"`
	Subject   string        `yaml:"subject" json:"subject"`
	Request   string        `yaml:"request" json:"request"`
	Tier      Tier          `yaml:"tier" json:"tier"`
	Status    SessionStatus `yaml:"status" json:"status"`
	CreatedAt time.Time     `yaml:"created_at" json:"created_at"`
	Dir       string        `yaml:"dir" json:"dir"`
	Phases    []Phase       `yaml:"phases" json:"phases"`
}

// Phase returns the phase with the given index.
func (s *Session) Phase(idx PhaseIndex) (Phase, bool) {
	for _, p := range s.Phases {
		if p.Index == idx {
			return p, true
		}
	}
	return Phase{}, false
}

// TaskIDs returns every task id in phase order.
func (s *Session) TaskIDs() []string {
	var ids []string
	for _, p := range s.Phases {
		ids = append(ids, p.Tasks...)
	}
	return ids
}
