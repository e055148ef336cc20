package coordinator

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/logger"
)

// Watcher wakes the phase loop when a report lands in a session directory.
// Bursts of events are coalesced into a single pending signal.
type Watcher struct {
	fs     *fsnotify.Watcher
	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewWatcher(ctx context.Context, dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}

	w := &Watcher{
		fs:     fw,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop(ctx)
	return w, nil
}

// C receives after one or more reports were created or written.
func (w *Watcher) C() <-chan struct{} {
	return w.signal
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				logger.G(ctx).WithField("file", filepath.Base(event.Name)).WithField("op", event.Op.String()).Debug("artifact event")
				select {
				case w.signal <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.G(ctx).WithError(err).Warn("fsnotify error")
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
