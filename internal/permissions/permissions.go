// Package permissions hands run outputs back to the invoking user. The
// orchestrator often runs as root inside a container while the artifacts
// belong to whoever mounted the directories.
package permissions

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mpataki/anvil/internal/logging"
)

// Reconciler recursively reassigns ownership of output trees to a
// configured uid/gid pair. With no pair configured it does nothing.
type Reconciler struct {
	uid    *int
	gid    *int
	logger *logging.Logger
}

func New(uid, gid *int, logger *logging.Logger) *Reconciler {
	return &Reconciler{uid: uid, gid: gid, logger: logger}
}

// Fix chowns dir and everything beneath it. Failures are logged as warnings
// and never escalate; by the time this runs the artifact content is already
// durably written, and a botched chown must not turn a good run into a bad
// one.
func (r *Reconciler) Fix(dir string) {
	if r.uid == nil || r.gid == nil {
		r.logger.Debug("no owner configured, skipping permission fix")
		return
	}
	uid, gid := *r.uid, *r.gid

	err := filepath.WalkDir(dir, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn("permission fix: %v", err)
			return nil
		}
		if err := os.Chown(path, uid, gid); err != nil {
			r.logger.Warn("permission fix: %v", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("permission fix: %v", err)
	}
}
