package coordinator

import (
	"fmt"
	"time"

	"github.com/msageha/tradedesk/internal/ledger"
	"github.com/msageha/tradedesk/internal/model"
)

// ArtifactChecker reports whether a worker's report is on disk.
type ArtifactChecker interface {
	Exists(sessionID, worker string) bool
}

// Resolution is how a timed-out best-effort task leaves its phase.
type Resolution struct {
	TaskID string
	Worker string
	Label  string
	// Late means the artifact exists and the task counts as completed.
	Late bool
	// Note is the degradation note handed downstream when Late is false.
	Note string
}

// Evaluation is the result of one phase check.
type Evaluation struct {
	Satisfied bool
	Resolved  []Resolution
	// Waiting lists the tasks that still hold the phase open.
	Waiting []string
	// NextDeadline is the earliest pending timeout, zero when none remains.
	NextDeadline time.Time
}

func TimeoutNote(label string) string {
	return fmt.Sprintf("timeout — proceeding without %s data", label)
}

func FailureNote(label string) string {
	return fmt.Sprintf("worker failed — proceeding without %s data", label)
}

// EvaluatePhase decides whether phase is done at now. It does not mutate the
// ledger: a best-effort task past its timeout is returned as a Resolution,
// late if its artifact exists and degraded otherwise, and the caller applies
// it.
func EvaluatePhase(sess *model.Session, phase model.Phase, l *ledger.Ledger, store ArtifactChecker, startedAt, now time.Time) (Evaluation, error) {
	var ev Evaluation
	for _, id := range phase.Tasks {
		t, err := l.Get(id)
		if err != nil {
			return Evaluation{}, err
		}
		if t.Status == model.StatusCompleted || t.Waived {
			continue
		}

		dl := deadline(t, startedAt)
		if dl.IsZero() || now.Before(dl) {
			ev.Waiting = append(ev.Waiting, id)
			if !dl.IsZero() && (ev.NextDeadline.IsZero() || dl.Before(ev.NextDeadline)) {
				ev.NextDeadline = dl
			}
			continue
		}

		r := Resolution{TaskID: id, Worker: t.AssignedWorker, Label: t.Label}
		if store.Exists(sess.ID, t.AssignedWorker) {
			r.Late = true
		} else {
			r.Note = TimeoutNote(t.Label)
		}
		ev.Resolved = append(ev.Resolved, r)
	}
	ev.Satisfied = len(ev.Waiting) == 0
	return ev, nil
}
