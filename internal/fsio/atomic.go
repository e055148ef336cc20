// Package fsio provides crash-safe file replacement, exclusive publication
// and recovery of corrupted state files.
package fsio

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Validator checks content before it replaces the target file.
type Validator func(content []byte) error

func ValidateYAML(content []byte) error {
	var v any
	return yaml.Unmarshal(content, &v)
}

func ValidateJSON(content []byte) error {
	if !json.Valid(content) {
		return errors.New("invalid JSON")
	}
	return nil
}

func WriteYAML(path string, data any) error {
	content, err := yaml.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "yaml marshal")
	}
	return AtomicWrite(path, content, ValidateYAML)
}

func WriteJSON(path string, data any) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "json marshal")
	}
	return AtomicWrite(path, append(content, '\n'), ValidateJSON)
}

// AtomicWrite replaces path with content. The previous version, if any, is
// kept as path.bak. A nil validate skips validation.
func AtomicWrite(path string, content []byte, validate Validator) error {
	tmpName, err := writeTemp(filepath.Dir(path), content)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpName) }()

	if validate != nil {
		written, err := os.ReadFile(tmpName)
		if err != nil {
			return errors.Wrap(err, "read temp file for validation")
		}
		if err := validate(written); err != nil {
			return errors.Wrap(err, "validation failed")
		}
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return errors.Wrap(err, "create backup")
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "atomic rename")
	}
	return nil
}

// CreateExclusive publishes content at path only if nothing exists there.
// The file is fully written and synced before it becomes visible, so readers
// never see partial content. An existing file yields an error matching
// os.ErrExist.
func CreateExclusive(path string, content []byte) error {
	tmpName, err := writeTemp(filepath.Dir(path), content)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpName) }()

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return errors.Wrapf(os.ErrExist, "%s", path)
		}
		return errors.Wrap(err, "publish file")
	}
	return nil
}

func writeTemp(dir string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tradedesk-tmp-*")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	name := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", errors.Wrap(err, "close temp file")
	}
	return name, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
