package generation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// jobDirPrefix names per-request scratch directories. ULIDs keep them
// lexically sorted by creation time, which makes leftovers easy to spot.
const jobDirPrefix = "job-"

// JobDir is a per-request scratch directory. All intermediate files of one
// request phase live inside it and the whole directory is removed on exit,
// success or failure.
type JobDir struct {
	path   string
	logger *slog.Logger
}

// NewJobDir creates a fresh job directory under baseDir.
func NewJobDir(baseDir string, logger *slog.Logger) (*JobDir, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path := filepath.Join(baseDir, jobDirPrefix+ulid.Make().String())
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("creating job directory: %w", err)
	}
	return &JobDir{path: path, logger: logger}, nil
}

// Path returns the absolute job directory path.
func (j *JobDir) Path() string {
	return j.path
}

// Remove deletes the job directory and everything in it. Removal failures are
// logged, not returned: the caller's result does not depend on scratch
// cleanup.
func (j *JobDir) Remove() {
	if err := os.RemoveAll(j.path); err != nil {
		j.logger.Warn("failed to remove job directory",
			slog.String("path", j.path),
			slog.String("error", err.Error()),
		)
	}
}

// CleanupLeftoverJobs removes job directories that survived a previous run,
// for example after a crash. Returns the number removed.
func CleanupLeftoverJobs(baseDir string, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), jobDirPrefix) {
			continue
		}
		path := filepath.Join(baseDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("failed to remove leftover job directory",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("removed leftover job directories", slog.Int("count", removed))
	}
	return removed
}
