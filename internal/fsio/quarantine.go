package fsio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/logger"
)

// Quarantine moves a corrupted file into {stateDir}/quarantine and returns
// its new location.
func Quarantine(ctx context.Context, stateDir, path string) (string, error) {
	dir := filepath.Join(stateDir, "quarantine")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create quarantine dir")
	}

	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(path), time.Now().Format("20060102T150405"))
	dest := filepath.Join(dir, name)
	if err := os.Rename(path, dest); err != nil {
		return "", errors.Wrap(err, "move to quarantine")
	}

	logger.G(ctx).WithField("file", path).WithField("quarantine", dest).Warn("quarantined corrupted file")
	return dest, nil
}

// RestoreFromBackup copies path.bak over path if the backup validates.
func RestoreFromBackup(ctx context.Context, path string, validate Validator) error {
	bak := path + ".bak"
	content, err := os.ReadFile(bak)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Errorf("no backup file: %s", bak)
		}
		return errors.Wrap(err, "read backup")
	}
	if validate != nil {
		if err := validate(content); err != nil {
			return errors.Wrap(err, "backup is also corrupted")
		}
	}
	tmpName, err := writeTemp(filepath.Dir(path), content)
	if err != nil {
		return errors.Wrap(err, "restore from backup")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "restore from backup")
	}

	logger.G(ctx).WithField("file", path).Info("restored from backup")
	return nil
}

// Recover quarantines a corrupted file and restores it from its backup,
// falling back to skeleton when no usable backup exists.
func Recover(ctx context.Context, stateDir, path string, validate Validator, skeleton []byte) error {
	if _, err := Quarantine(ctx, stateDir, path); err != nil {
		return errors.Wrap(err, "quarantine failed")
	}

	err := RestoreFromBackup(ctx, path, validate)
	if err == nil {
		return nil
	}
	logger.G(ctx).WithError(err).WithField("file", path).Warn("backup restore failed, writing skeleton")

	if err := AtomicWrite(path, skeleton, validate); err != nil {
		return errors.Wrap(err, "skeleton write failed")
	}
	return nil
}
