// Package desk keeps the trading desk's shared JSON ledgers: portfolio,
// predictions, agent scorecards and observed patterns. Each ledger is a
// Document updated by read-modify-write under an advisory file lock.
package desk

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/fsio"
	"github.com/msageha/tradedesk/internal/lock"
	"github.com/msageha/tradedesk/internal/logger"
)

var ErrNotFound = errors.New("not found")

// Document is one JSON file holding a value of type T.
type Document[T any] struct {
	path     string
	stateDir string
	empty    func() T
}

// NewDocument binds a document to path. empty builds the value used when the
// file does not exist yet; quarantined files go under stateDir.
func NewDocument[T any](path, stateDir string, empty func() T) *Document[T] {
	return &Document[T]{path: path, stateDir: stateDir, empty: empty}
}

func (d *Document[T]) Path() string { return d.path }

// Load reads the current value. A corrupt file is quarantined and replaced by
// its backup or an empty document.
func (d *Document[T]) Load(ctx context.Context) (T, error) {
	v, err := d.read()
	if err == nil {
		return v, nil
	}
	var corrupt *corruptError
	if !errors.As(err, &corrupt) {
		return v, err
	}

	logger.G(ctx).WithError(err).WithField("file", d.path).Warn("desk ledger is corrupt, recovering")
	skeleton, merr := json.MarshalIndent(d.empty(), "", "  ")
	if merr != nil {
		return v, errors.Wrap(merr, "failed to encode empty document")
	}
	if rerr := fsio.Recover(ctx, d.stateDir, d.path, fsio.ValidateJSON, append(skeleton, '\n')); rerr != nil {
		return v, errors.Wrapf(rerr, "failed to recover %s", d.path)
	}
	return d.read()
}

// Update applies fn to the current value and atomically replaces the file
// with the result. fn's error aborts the update.
func (d *Document[T]) Update(ctx context.Context, fn func(*T) error) (T, error) {
	var zero T
	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return zero, errors.Wrap(err, "failed to create desk directory")
	}

	fl := lock.NewFileLock(d.path + ".lock")
	if err := fl.Lock(ctx); err != nil {
		return zero, err
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			logger.G(ctx).WithError(err).WithField("file", d.path).Warn("failed to release desk lock")
		}
	}()

	v, err := d.Load(ctx)
	if err != nil {
		return zero, err
	}
	if err := fn(&v); err != nil {
		return zero, err
	}
	if err := fsio.WriteJSON(d.path, v); err != nil {
		return zero, errors.Wrapf(err, "failed to write %s", d.path)
	}
	return v, nil
}

type corruptError struct {
	err error
}

func (e *corruptError) Error() string { return e.err.Error() }
func (e *corruptError) Unwrap() error { return e.err }

func (d *Document[T]) read() (T, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return d.empty(), nil
		}
		var zero T
		return zero, errors.Wrapf(err, "failed to read %s", d.path)
	}

	v := d.empty()
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, &corruptError{err: errors.Wrapf(err, "failed to decode %s", d.path)}
	}
	return v, nil
}
