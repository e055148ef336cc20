package artifact

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// SessionListing summarizes one session directory on disk.
type SessionListing struct {
	SessionID string   `json:"session_id"`
	Dir       string   `json:"dir"`
	Reports   []string `json:"reports"`
}

// ListSessions enumerates {root}/*/*.md and groups the reports by directory,
// newest directory name first.
func ListSessions(root string) ([]SessionListing, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, "*/*.md")
	if err != nil {
		return nil, errors.Wrap(err, "glob reports")
	}

	byDir := make(map[string]*SessionListing)
	for _, m := range matches {
		dir := path.Dir(m)
		l, ok := byDir[dir]
		if !ok {
			l = &SessionListing{Dir: filepath.Join(root, filepath.FromSlash(dir))}
			if owner, err := os.ReadFile(filepath.Join(l.Dir, sessionMarker)); err == nil {
				l.SessionID = strings.TrimSpace(string(owner))
			}
			byDir[dir] = l
		}
		l.Reports = append(l.Reports, strings.TrimSuffix(path.Base(m), ".md"))
	}

	out := make([]SessionListing, 0, len(byDir))
	for _, l := range byDir {
		sort.Strings(l.Reports)
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir > out[j].Dir })
	return out, nil
}
