// Package profile loads worker capability profiles from markdown files with a
// YAML frontmatter header. The body of each file is the worker's system
// prompt.
package profile

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"

	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/model"
	"github.com/msageha/tradedesk/templates"
)

var ErrNotFound = errors.New("profile not found")

// Set is an immutable collection of loaded profiles keyed by name.
type Set struct {
	profiles map[string]model.Profile
}

// NewSet validates profiles and builds a set. A later profile replaces an
// earlier one with the same name.
func NewSet(profiles ...model.Profile) (*Set, error) {
	var result *multierror.Error
	s := &Set{profiles: make(map[string]model.Profile, len(profiles))}
	for _, p := range profiles {
		if err := Validate(p); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		s.profiles[p.Name] = clone(p)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the embedded default profiles and merges the markdown files of
// dir over them by name. A missing dir is not an error.
func Load(ctx context.Context, dir string) (*Set, error) {
	defaults, err := readDir(ctx, templates.FS, templates.AgentsDir, func(name string) string {
		return "embedded:" + path.Join(templates.AgentsDir, name)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load embedded profiles")
	}

	var overrides []model.Profile
	if dir != "" {
		info, statErr := os.Stat(dir)
		switch {
		case statErr == nil && info.IsDir():
			overrides, err = readDir(ctx, os.DirFS(dir), ".", func(name string) string {
				return filepath.Join(dir, name)
			})
			if err != nil {
				return nil, errors.Wrapf(err, "failed to load profiles from %s", dir)
			}
		case statErr == nil:
			return nil, errors.Errorf("profiles dir %s is not a directory", dir)
		case !os.IsNotExist(statErr):
			return nil, errors.Wrapf(statErr, "failed to stat %s", dir)
		default:
			logger.G(ctx).WithField("dir", dir).Debug("profile override directory not found, using defaults")
		}
	}

	s, err := NewSet(append(defaults, overrides...)...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid profiles")
	}
	logger.G(ctx).WithField("count", len(s.profiles)).Debug("loaded profiles")
	return s, nil
}

func readDir(ctx context.Context, fsys fs.FS, dir string, origin func(string) string) ([]model.Profile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var result *multierror.Error
	var out []model.Profile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		name := path.Join(dir, e.Name())
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "failed to read %s", name))
			continue
		}
		p, err := Parse(content)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "%s", name))
			continue
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(e.Name(), ".md")
		}
		p.Path = origin(e.Name())
		logger.G(ctx).WithField("profile", p.Name).WithField("path", p.Path).Debug("read profile")
		out = append(out, p)
	}
	return out, result.ErrorOrNil()
}

// Parse decodes one profile file. Runner defaults to builtin.
func Parse(content []byte) (model.Profile, error) {
	var p model.Profile

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))
	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return p, errors.Wrap(err, "failed to convert markdown")
	}

	fields, err := meta.TryGet(pctx)
	if err != nil {
		return p, errors.Wrap(err, "failed to parse frontmatter")
	}
	if len(fields) == 0 {
		return p, errors.New("missing frontmatter")
	}

	// Round-trip through yaml.v3 so durations and lists decode by struct tag.
	raw, err := yaml.Marshal(fields)
	if err != nil {
		return p, errors.Wrap(err, "failed to re-encode frontmatter")
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, errors.Wrap(err, "failed to decode frontmatter")
	}

	if p.Runner == "" {
		p.Runner = model.RunnerBuiltin
	}
	p.SystemPrompt = strings.TrimSpace(body(string(content)))
	return p, nil
}

func body(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return content
}

// Validate checks one profile and reports every problem found.
func Validate(p model.Profile) error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, errors.Errorf(format, args...))
	}

	if p.Name == "" {
		add("name is required")
	}
	if !p.ModelTier.Valid() {
		add("model_tier %q must be one of haiku, sonnet, opus", p.ModelTier)
	}
	if p.MaxTurns <= 0 {
		add("max_turns must be greater than 0")
	}
	if p.Timeout < 0 {
		add("timeout must not be negative")
	}
	for _, op := range p.AllowedNativeOperations {
		for _, d := range p.DeniedOperations {
			if op == d {
				add("operation %q is both allowed and denied", op)
			}
		}
	}
	switch p.Runner {
	case model.RunnerBuiltin:
	case model.RunnerCommand:
		if strings.TrimSpace(p.Command) == "" {
			add("runner command requires a command")
		}
	default:
		add("runner %q must be builtin or command", p.Runner)
	}

	if err := result.ErrorOrNil(); err != nil {
		name := p.Name
		if name == "" {
			name = p.Path
		}
		return errors.Wrapf(err, "profile %q", name)
	}
	return nil
}

// Get returns the named profile.
func (s *Set) Get(name string) (model.Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return model.Profile{}, errors.Wrapf(ErrNotFound, "%s", name)
	}
	return clone(p), nil
}

// Names returns the profile names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for n := range s.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Set) List() []model.Profile {
	out := make([]model.Profile, 0, len(s.profiles))
	for _, n := range s.Names() {
		out = append(out, clone(s.profiles[n]))
	}
	return out
}

// ReportNames maps each worker to its report file stem.
func (s *Set) ReportNames() map[string]string {
	out := make(map[string]string, len(s.profiles))
	for n, p := range s.profiles {
		out[n] = p.Report()
	}
	return out
}

func clone(p model.Profile) model.Profile {
	c := p
	c.AllowedDataSources = append([]string(nil), p.AllowedDataSources...)
	c.AllowedNativeOperations = append([]string(nil), p.AllowedNativeOperations...)
	c.DeniedOperations = append([]string(nil), p.DeniedOperations...)
	return c
}
