package svcsched

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// sweepMaxAge is the minimum age of a file before deletion
	sweepMaxAge = 120 * time.Hour

	// cachePathMarker restricts cache-only sweeps to paths containing it
	cachePathMarker = "/cache/"
)

// Janitor deletes aged files and prunes emptied directories under the
// configured sweep roots. It runs once at startup and again at every
// day rollover. Individual filesystem errors are logged and skipped;
// the sweep itself never fails.
type Janitor struct {
	configs []SweepConfig
	log     zerolog.Logger
	now     func() time.Time
}

// NewJanitor creates a janitor over the given sweep entries.
func NewJanitor(configs []SweepConfig, log zerolog.Logger) *Janitor {
	return &Janitor{
		configs: configs,
		log:     log,
		now:     time.Now,
	}
}

// IsEmpty reports whether there is nothing to sweep.
func (j *Janitor) IsEmpty() bool {
	return len(j.configs) == 0
}

// Clean runs every configured sweep: extension-matched aged files
// first, then bottom-up removal of emptied directories where enabled.
func (j *Janitor) Clean() {
	j.log.Info().Msg("starting janitor sweep")

	for _, cfg := range j.configs {
		if len(cfg.Ext) == 0 {
			continue
		}

		root := cfg.Dir
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				j.log.Error().Err(err).Msg("resolving working directory")
				continue
			}
			root = wd
		}

		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			j.log.Info().Str("dir", root).Msg("sweep root not found")
			continue
		}

		for _, ext := range cfg.Ext {
			j.sweepFiles(root, ext, cfg.IsCache)
		}

		if cfg.DeleteEmptyDir {
			j.pruneEmptyDirs(root)
		}
	}

	j.log.Info().Msg("janitor sweep finished")
}

// deletable reports whether the file's last write is at least
// sweepMaxAge in the past.
func (j *Janitor) deletable(modTime time.Time) bool {
	return j.now().Sub(modTime) >= sweepMaxAge
}

// sweepFiles walks root recursively and removes regular files matching
// ext that have aged out. When cacheOnly is set, only paths containing
// the /cache/ marker are considered.
func (j *Janitor) sweepFiles(root, ext string, cacheOnly bool) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			j.log.Error().Err(err).Str("path", path).Msg("sweep walk error")
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if cacheOnly && !strings.Contains(filepath.ToSlash(path), cachePathMarker) {
			return nil
		}
		if filepath.Ext(path) != ext {
			return nil
		}

		info, err := d.Info()
		if err != nil || !j.deletable(info.ModTime()) {
			return nil
		}

		j.log.Info().Str("file", path).Msg("deleting aged file")
		if err := os.Remove(path); err != nil {
			j.log.Error().Err(err).Str("file", path).Msg("unable to delete file")
		}
		return nil
	})
	if err != nil {
		j.log.Error().Err(err).Str("dir", root).Msg("sweep failed")
	}
}

// pruneEmptyDirs removes directories under root that are empty after
// the file sweep, deepest first. The root itself is kept.
func (j *Janitor) pruneEmptyDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		j.log.Error().Err(err).Str("dir", root).Msg("unable to read directory")
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(root, entry.Name())
		j.pruneEmptyDirs(sub)

		remaining, err := os.ReadDir(sub)
		if err != nil {
			j.log.Error().Err(err).Str("dir", sub).Msg("unable to read directory")
			continue
		}
		if len(remaining) > 0 {
			continue
		}

		if err := os.Remove(sub); err != nil {
			j.log.Error().Err(err).Str("dir", sub).Msg("unable to delete empty directory")
			continue
		}
		j.log.Info().Str("dir", sub).Msg("deleted empty directory")
	}
}
