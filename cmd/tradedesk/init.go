package main

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/msageha/tradedesk/internal/fsio"
	"github.com/msageha/tradedesk/internal/presenter"
	"github.com/msageha/tradedesk/templates"
)

// initResult lists the files init wrote and the ones it left alone.
type initResult struct {
	Created []string
	Skipped []string
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config and agent profiles into the state directory",
		Long: `Write config.yaml and the default agent profiles into the state directory.
Existing files are never overwritten, so init is safe to re-run after editing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := writeTemplates(cfg.StateDir)
			if err != nil {
				return err
			}
			for _, p := range res.Created {
				presenter.Success("created " + p)
			}
			for _, p := range res.Skipped {
				presenter.Info("kept existing " + p)
			}
			presenter.Info(fmt.Sprintf("Put candle and headline fixtures under %s", filepath.Join(cfg.StateDir, "data")))
			return nil
		},
	}
}

// writeTemplates copies the embedded templates under stateDir, skipping any
// file that already exists.
func writeTemplates(stateDir string) (initResult, error) {
	var res initResult
	for _, dir := range []string{stateDir, filepath.Join(stateDir, templates.AgentsDir), filepath.Join(stateDir, "data")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return res, errors.Wrapf(err, "create %s", dir)
		}
	}

	err := fs.WalkDir(templates.FS, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(name) == ".go" {
			return nil
		}
		content, err := fs.ReadFile(templates.FS, name)
		if err != nil {
			return err
		}
		dst := filepath.Join(stateDir, filepath.FromSlash(name))
		if err := fsio.CreateExclusive(dst, content); err != nil {
			if errors.Is(err, os.ErrExist) {
				res.Skipped = append(res.Skipped, dst)
				return nil
			}
			return errors.Wrapf(err, "write %s", dst)
		}
		res.Created = append(res.Created, dst)
		return nil
	})
	return res, err
}
