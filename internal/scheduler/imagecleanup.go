package scheduler

import (
	"log/slog"
	"os"
)

// deleteImageBestEffort removes a memory's local media file after its
// database row has already been deleted. Failures are logged, not
// propagated — an orphaned file on disk is preferable to blocking
// housekeeping on filesystem errors.
func deleteImageBestEffort(path string, log *slog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("best-effort image cleanup failed", "path", path, "error", err)
	}
}
