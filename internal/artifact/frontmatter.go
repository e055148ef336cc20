package artifact

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter means the document does not open with a YAML fence.
	ErrMissingFrontMatter = errors.New("artifact: missing frontmatter")
	// ErrMalformedFrontMatter means the YAML block is unterminated or incomplete.
	ErrMalformedFrontMatter = errors.New("artifact: malformed frontmatter")
)

// Meta is the header stored in front of every report.
type Meta struct {
	Session   string            `yaml:"session" json:"session"`
	Subject   string            `yaml:"subject,omitempty" json:"subject,omitempty"`
	Phase     int               `yaml:"phase" json:"phase"`
	Producer  string            `yaml:"producer" json:"producer"`
	WrittenAt time.Time         `yaml:"written_at" json:"written_at"`
	Notes     map[string]string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// ParseFrontMatter splits a report into its header and markdown body.
func ParseFrontMatter(content []byte) (Meta, []byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Meta{}, nil, ErrMissingFrontMatter
	}
	parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Meta{}, nil, ErrMalformedFrontMatter
	}

	var meta Meta
	if err := yaml.Unmarshal(parts[0], &meta); err != nil {
		return Meta{}, nil, errors.Wrap(err, "artifact: parse frontmatter")
	}
	if meta.Session == "" || meta.Producer == "" {
		return Meta{}, nil, ErrMalformedFrontMatter
	}
	return meta, bytes.TrimPrefix(parts[1], []byte("\n")), nil
}

// RenderFrontMatter renders meta and body with YAML fences.
func RenderFrontMatter(meta Meta, body []byte) ([]byte, error) {
	if meta.Session == "" || meta.Producer == "" {
		return nil, errors.New("artifact: metadata requires session and producer")
	}
	meta.WrittenAt = meta.WrittenAt.UTC()
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, errors.Wrap(err, "artifact: encode frontmatter")
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}
