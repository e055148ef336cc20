// Package artifact stores one markdown report per (session, worker) under a
// date and subject keyed directory.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/msageha/tradedesk/internal/fsio"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/model"
)

var (
	ErrAlreadyWritten = errors.New("artifact already written")
	ErrNotFound       = errors.New("artifact not found")
	ErrUnknownSession = errors.New("session not opened in artifact store")
)

const sessionMarker = ".session"

// Artifact is one published report.
type Artifact struct {
	Meta
	Path string `json:"path"`
	Body string `json:"body"`
}

type Store struct {
	root  string
	names map[string]string
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[string]string

	group singleflight.Group
}

type Option func(*Store)

// WithReportNames maps worker names to report file stems. Unmapped workers
// use their own name.
func WithReportNames(names map[string]string) Option {
	return func(s *Store) {
		for k, v := range names {
			s.names[k] = v
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:     root,
		names:    make(map[string]string),
		now:      time.Now,
		sessions: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Root() string { return s.root }

// Open claims the session directory {root}/{date}-{subject} and records it
// on sess.Dir. A directory already claimed by another session gets a numeric
// suffix.
func (s *Store) Open(sess *model.Session) (string, error) {
	created := sess.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	base := fmt.Sprintf("%s-%s", created.Format("2006-01-02"), Slug(sess.Subject))

	for n := 1; ; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		dir := filepath.Join(s.root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrap(err, "create session dir")
		}

		owned, err := claim(dir, sess.ID)
		if err != nil {
			return "", err
		}
		if !owned {
			continue
		}

		s.mu.Lock()
		s.sessions[sess.ID] = dir
		s.mu.Unlock()
		sess.Dir = dir
		return dir, nil
	}
}

func claim(dir, sessionID string) (bool, error) {
	marker := filepath.Join(dir, sessionMarker)
	err := fsio.CreateExclusive(marker, []byte(sessionID+"\n"))
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return false, errors.Wrap(err, "claim session dir")
	}
	owner, err := os.ReadFile(marker)
	if err != nil {
		return false, errors.Wrap(err, "read session marker")
	}
	return strings.TrimSpace(string(owner)) == sessionID, nil
}

// Attach registers an existing directory for sessionID without claiming it.
func (s *Store) Attach(sessionID, dir string) {
	s.mu.Lock()
	s.sessions[sessionID] = dir
	s.mu.Unlock()
}

// Close forgets the session. Files on disk are kept.
func (s *Store) Close(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Store) Dir(sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, ok := s.sessions[sessionID]
	if !ok {
		return "", errors.Wrapf(ErrUnknownSession, "%s", sessionID)
	}
	return dir, nil
}

// ReportName returns the file stem used for worker.
func (s *Store) ReportName(worker string) string {
	if name, ok := s.names[worker]; ok && name != "" {
		return name
	}
	return worker
}

func (s *Store) Path(sessionID, worker string) (string, error) {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, s.ReportName(worker)+".md"), nil
}

// Write publishes the single report of worker for the session. A second
// write for the same key fails with ErrAlreadyWritten and leaves the first
// report untouched.
func (s *Store) Write(ctx context.Context, sessionID, worker string, meta Meta, content string) (Artifact, error) {
	path, err := s.Path(sessionID, worker)
	if err != nil {
		return Artifact{}, err
	}

	meta.Session = sessionID
	meta.Producer = worker
	if meta.WrittenAt.IsZero() {
		meta.WrittenAt = s.now()
	}
	rendered, err := RenderFrontMatter(meta, []byte(content))
	if err != nil {
		return Artifact{}, err
	}

	if err := fsio.CreateExclusive(path, rendered); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Artifact{}, errors.Wrapf(ErrAlreadyWritten, "%s/%s", sessionID, worker)
		}
		return Artifact{}, errors.Wrap(err, "write artifact")
	}

	logger.G(ctx).WithField("session", sessionID).WithField("worker", worker).WithField("path", path).Debug("artifact written")
	meta.WrittenAt = meta.WrittenAt.UTC()
	return Artifact{Meta: meta, Path: path, Body: content}, nil
}

// Exists reports whether worker's report is present on disk, whoever wrote it.
func (s *Store) Exists(sessionID, worker string) bool {
	path, err := s.Path(sessionID, worker)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Store) Read(sessionID, worker string) (Artifact, error) {
	path, err := s.Path(sessionID, worker)
	if err != nil {
		return Artifact{}, err
	}
	a, err := readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, errors.Wrapf(ErrNotFound, "%s/%s", sessionID, worker)
		}
		return Artifact{}, err
	}
	if a.Producer == "" {
		a.Producer = worker
		a.Session = sessionID
	}
	return a, nil
}

// ReadAll returns every report of the session keyed by producer. Concurrent
// callers for the same session share one directory scan.
func (s *Store) ReadAll(sessionID string) (map[string]Artifact, error) {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do(sessionID, func() (any, error) {
		return s.scan(sessionID, dir)
	})
	if err != nil {
		return nil, err
	}

	shared := v.(map[string]Artifact)
	out := make(map[string]Artifact, len(shared))
	for k, a := range shared {
		out[k] = a
	}
	return out, nil
}

func (s *Store) scan(sessionID, dir string) (map[string]Artifact, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, errors.Wrap(err, "list artifacts")
	}

	byStem := make(map[string]string, len(s.names))
	for worker, stem := range s.names {
		byStem[stem] = worker
	}

	out := make(map[string]Artifact, len(paths))
	for _, path := range paths {
		a, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if a.Producer == "" {
			stem := strings.TrimSuffix(filepath.Base(path), ".md")
			a.Producer = stem
			if worker, ok := byStem[stem]; ok {
				a.Producer = worker
			}
			a.Session = sessionID
		}
		out[a.Producer] = a
	}
	return out, nil
}

// readFile loads a report. Files without a header, such as those dropped in
// by an external runner, are returned with empty Meta.
func readFile(path string) (Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "read artifact %s", path)
	}

	meta, body, err := ParseFrontMatter(content)
	switch {
	case err == nil:
		return Artifact{Meta: meta, Path: path, Body: string(body)}, nil
	case errors.Is(err, ErrMissingFrontMatter):
		return Artifact{Path: path, Body: string(content)}, nil
	default:
		return Artifact{}, errors.Wrapf(err, "artifact %s", path)
	}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and collapses every non-alphanumeric run to a dash.
func Slug(s string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if slug == "" {
		return "session"
	}
	return slug
}
