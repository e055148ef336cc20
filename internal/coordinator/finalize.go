package coordinator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/msageha/tradedesk/internal/artifact"
	"github.com/msageha/tradedesk/internal/events"
	"github.com/msageha/tradedesk/internal/history"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/model"
	"github.com/msageha/tradedesk/internal/worker"
)

// ConsolidatedReport is the file stem of the coordinator's own report.
const ConsolidatedReport = "consolidated-report"

// Section is one worker report included in the consolidated report.
type Section struct {
	Worker string           `json:"worker"`
	TaskID string           `json:"task_id"`
	Phase  model.PhaseIndex `json:"phase"`
	Path   string           `json:"path"`
	Body   string           `json:"body"`
	Late   bool             `json:"late,omitempty"`
}

// ConsolidatedArtifact is the outcome of a finalized session.
type ConsolidatedArtifact struct {
	SessionID  string               `json:"session_id"`
	Subject    string               `json:"subject"`
	Request    string               `json:"request"`
	Tier       model.Tier           `json:"tier"`
	Dir        string               `json:"dir"`
	Path       string               `json:"path"`
	Content    string               `json:"content"`
	Sections   []Section            `json:"sections"`
	Degraded   []worker.MissingNote `json:"degraded"`
	CreatedAt  time.Time            `json:"created_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Finalize reads every report of the session, writes the consolidated report,
// archives the run and tears the session down. The ledger is empty afterwards.
func (c *Coordinator) Finalize(ctx context.Context, s *Session) (*ConsolidatedArtifact, error) {
	reports, err := c.store.ReadAll(s.ID)
	if err != nil {
		return nil, err
	}

	late := make(map[string]bool)
	for _, id := range s.Late() {
		late[id] = true
	}

	out := &ConsolidatedArtifact{
		SessionID: s.ID,
		Subject:   s.Subject,
		Request:   s.Request,
		Tier:      s.Tier,
		Dir:       s.Dir,
		Degraded:  s.Missing(),
		CreatedAt: s.CreatedAt,
	}
	last := model.PhaseGather
	for _, phase := range s.Phases {
		last = phase.Index
		for _, id := range phase.Tasks {
			t, err := s.Ledger.Get(id)
			if err != nil {
				return nil, err
			}
			a, ok := reports[t.AssignedWorker]
			if !ok || t.Waived {
				continue
			}
			out.Sections = append(out.Sections, Section{
				Worker: t.AssignedWorker,
				TaskID: id,
				Phase:  phase.Index,
				Path:   a.Path,
				Body:   a.Body,
				Late:   late[id],
			})
		}
	}

	out.FinishedAt = c.now()
	notes := make(map[string]string, len(out.Degraded))
	for _, m := range out.Degraded {
		notes[m.Worker] = m.Note
	}
	content := renderConsolidated(out)
	a, err := c.store.Write(ctx, s.ID, model.ProducerCoordinator, artifact.Meta{
		Subject:   s.Subject,
		Phase:     int(last),
		WrittenAt: out.FinishedAt,
		Notes:     notes,
	}, content)
	if err != nil {
		return nil, err
	}
	out.Path = a.Path
	out.Content = content

	s.Status = model.SessionFinalized
	c.archive(ctx, s, out.Path)
	c.publish(events.EventSessionFinalized, s.ID, map[string]any{
		"report":   out.Path,
		"sections": len(out.Sections),
		"degraded": len(out.Degraded),
	})

	s.Ledger.Discard()
	c.store.Close(s.ID)
	if c.stateDir != "" {
		path := c.snapshotPath(s.ID)
		for _, p := range []string{path, path + ".bak"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				logger.G(ctx).WithError(err).Warn("failed to remove ledger snapshot")
			}
		}
	}

	logger.G(ctx).WithField("report", out.Path).WithField("degraded", len(out.Degraded)).Info("session finalized")
	return out, nil
}

func renderConsolidated(a *ConsolidatedArtifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Consolidated Report\n\n", a.Subject)
	fmt.Fprintf(&b, "- **Session:** %s\n", a.SessionID)
	fmt.Fprintf(&b, "- **Request:** %s\n", a.Request)
	fmt.Fprintf(&b, "- **Tier:** %s\n", a.Tier)
	fmt.Fprintf(&b, "- **Generated:** %s\n", a.FinishedAt.UTC().Format(time.RFC3339))

	b.WriteString("\n## Summary\n\n")
	if pm := a.section(model.WorkerPortfolioManager); pm != nil {
		for _, name := range []string{"Action", "Confidence", "Allocation"} {
			if v, ok := worker.Field(pm.Body, name); ok {
				fmt.Fprintf(&b, "- **%s:** %s\n", name, v)
			}
		}
	}
	fmt.Fprintf(&b, "- **Reports:** %d\n", len(a.Sections))

	b.WriteString("\n## Degradations\n\n")
	if len(a.Degraded) == 0 {
		b.WriteString("None.\n")
	}
	for _, m := range a.Degraded {
		fmt.Fprintf(&b, "- %s: %s\n", m.Worker, m.Note)
	}

	var phase model.PhaseIndex
	for _, sec := range a.Sections {
		if sec.Phase != phase {
			phase = sec.Phase
			fmt.Fprintf(&b, "\n## Phase %d: %s\n", int(phase), phase)
		}
		fmt.Fprintf(&b, "\n### %s", sec.Worker)
		if sec.Late {
			b.WriteString(" (late)")
		}
		b.WriteString("\n\n")
		b.WriteString(demote(strings.TrimSpace(sec.Body)))
		b.WriteString("\n")
	}
	return b.String()
}

func (a *ConsolidatedArtifact) section(worker string) *Section {
	for i := range a.Sections {
		if a.Sections[i].Worker == worker {
			return &a.Sections[i]
		}
	}
	return nil
}

// demote pushes every heading of an embedded report three levels down so it
// nests under its worker heading.
func demote(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "#") {
			lines[i] = "###" + line
		}
	}
	return strings.Join(lines, "\n")
}

func (c *Coordinator) archive(ctx context.Context, s *Session, reportPath string) {
	if c.history == nil {
		return
	}
	late := make(map[string]bool)
	for _, id := range s.Late() {
		late[id] = true
	}

	run := history.Run{
		SessionID:  s.ID,
		Subject:    s.Subject,
		Request:    s.Request,
		Tier:       string(s.Tier),
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt,
		FinishedAt: c.now(),
		ReportPath: reportPath,
	}
	for _, m := range s.Missing() {
		run.Degraded = append(run.Degraded, m.Worker)
	}
	for _, phase := range s.Phases {
		for _, id := range phase.Tasks {
			t, err := s.Ledger.Get(id)
			if err != nil {
				continue
			}
			run.Tasks = append(run.Tasks, history.TaskOutcome{
				TaskID:   id,
				Worker:   t.AssignedWorker,
				Phase:    int(phase.Index),
				Status:   string(t.Status),
				Degraded: t.Waived,
				Late:     late[id],
				Note:     t.WaiveReason,
			})
		}
	}

	if _, err := c.history.Save(ctx, run); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to archive session")
	}
}
