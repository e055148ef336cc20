package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/logger"
)

var ErrNotFound = errors.New("run not found")

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// TaskOutcome is how one task of a session ended.
type TaskOutcome struct {
	TaskID   string `json:"task_id"`
	Worker   string `json:"worker"`
	Phase    int    `json:"phase"`
	Status   string `json:"status"`
	Degraded bool   `json:"degraded,omitempty"`
	Late     bool   `json:"late,omitempty"`
	Note     string `json:"note,omitempty"`
}

// Run is the archived record of one finalized session.
type Run struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Subject    string        `json:"subject"`
	Request    string        `json:"request"`
	Tier       string        `json:"tier"`
	Status     string        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt time.Time     `json:"finished_at"`
	ReportPath string        `json:"report_path"`
	Degraded   []string      `json:"degraded"`
	Tasks      []TaskOutcome `json:"tasks"`
}

type runRow struct {
	ID         string `db:"id"`
	SessionID  string `db:"session_id"`
	Subject    string `db:"subject"`
	Request    string `db:"request"`
	Tier       string `db:"tier"`
	Status     string `db:"status"`
	CreatedAt  string `db:"created_at"`
	FinishedAt string `db:"finished_at"`
	ReportPath string `db:"report_path"`
	Degraded   string `db:"degraded"`
	Tasks      string `db:"tasks"`
}

type Store struct {
	db *sqlx.DB
}

// Open opens the archive at path, creating and migrating it as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save archives run, replacing any earlier record of the same session. A
// missing ID is generated.
func (s *Store) Save(ctx context.Context, run Run) (Run, error) {
	if run.SessionID == "" {
		return Run{}, errors.New("run needs a session id")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Degraded == nil {
		run.Degraded = []string{}
	}
	if run.Tasks == nil {
		run.Tasks = []TaskOutcome{}
	}

	row, err := toRow(run)
	if err != nil {
		return Run{}, err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, session_id, subject, request, tier, status, created_at, finished_at, report_path, degraded, tasks)
		VALUES (:id, :session_id, :subject, :request, :tier, :status, :created_at, :finished_at, :report_path, :degraded, :tasks)
		ON CONFLICT(session_id) DO UPDATE SET
			subject = excluded.subject,
			request = excluded.request,
			tier = excluded.tier,
			status = excluded.status,
			created_at = excluded.created_at,
			finished_at = excluded.finished_at,
			report_path = excluded.report_path,
			degraded = excluded.degraded,
			tasks = excluded.tasks
	`, row)
	if err != nil {
		return Run{}, errors.Wrap(err, "failed to save run")
	}

	logger.G(ctx).WithField("session", run.SessionID).WithField("run", run.ID).Debug("run archived")
	return s.Get(ctx, run.SessionID)
}

// List returns the most recent runs first. A limit of zero or less returns
// every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT * FROM runs ORDER BY created_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		run, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM runs WHERE session_id = ?", sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, errors.Wrapf(ErrNotFound, "session %s", sessionID)
	}
	if err != nil {
		return Run{}, errors.Wrap(err, "failed to get run")
	}
	return fromRow(row)
}

func toRow(run Run) (runRow, error) {
	degraded, err := json.Marshal(run.Degraded)
	if err != nil {
		return runRow{}, errors.Wrap(err, "failed to encode degraded workers")
	}
	tasks, err := json.Marshal(run.Tasks)
	if err != nil {
		return runRow{}, errors.Wrap(err, "failed to encode task outcomes")
	}
	return runRow{
		ID:         run.ID,
		SessionID:  run.SessionID,
		Subject:    run.Subject,
		Request:    run.Request,
		Tier:       run.Tier,
		Status:     run.Status,
		CreatedAt:  run.CreatedAt.UTC().Format(timeLayout),
		FinishedAt: run.FinishedAt.UTC().Format(timeLayout),
		ReportPath: run.ReportPath,
		Degraded:   string(degraded),
		Tasks:      string(tasks),
	}, nil
}

func fromRow(row runRow) (Run, error) {
	run := Run{
		ID:         row.ID,
		SessionID:  row.SessionID,
		Subject:    row.Subject,
		Request:    row.Request,
		Tier:       row.Tier,
		Status:     row.Status,
		ReportPath: row.ReportPath,
	}
	var err error
	if run.CreatedAt, err = time.Parse(timeLayout, row.CreatedAt); err != nil {
		return Run{}, errors.Wrapf(err, "run %s: bad created_at", row.ID)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, row.FinishedAt); err != nil {
		return Run{}, errors.Wrapf(err, "run %s: bad finished_at", row.ID)
	}
	if err := json.Unmarshal([]byte(row.Degraded), &run.Degraded); err != nil {
		return Run{}, errors.Wrapf(err, "run %s: bad degraded list", row.ID)
	}
	if err := json.Unmarshal([]byte(row.Tasks), &run.Tasks); err != nil {
		return Run{}, errors.Wrapf(err, "run %s: bad task outcomes", row.ID)
	}
	return run, nil
}
