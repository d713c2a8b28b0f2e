package baseline

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mpataki/anvil/internal/logging"
)

// Commit identity for the synthetic baseline commit. Fixed so the baseline
// is reproducible and never attributed to a real user.
const (
	baselineAuthor  = "anvil"
	baselineEmail   = "anvil@local"
	baselineMessage = "anvil-baseline"
)

// Baseliner snapshots a workspace before the agent session and diffs it
// afterward. The baseline is reference state only; the workspace is never
// rolled back to it.
type Baseliner struct {
	dir    string
	logger *logging.Logger
}

func New(dir string, logger *logging.Logger) *Baseliner {
	return &Baseliner{dir: dir, logger: logger}
}

// EnsureBaseline makes sure the workspace has version-control history to
// diff against. Idempotent: an existing repository is the baseline as-is.
// Any failure here is fatal to the run — a diff without a baseline is
// meaningless.
func (b *Baseliner) EnsureBaseline() error {
	// The workspace is typically owned by a different uid than the one we
	// run as; git refuses to touch it unless the path is trusted first.
	// Registration failure is tolerated (older git has no safe.directory).
	if out, err := b.git("config", "--global", "--add", "safe.directory", b.dir); err != nil {
		b.logger.Debug("safe.directory registration failed: %s", strings.TrimSpace(out))
	}

	if _, err := os.Stat(filepath.Join(b.dir, ".git")); err == nil {
		b.logger.Info("Existing git repo found. Baseline established.")
		return nil
	}

	b.logger.Info("No git repo found in workspace. Initializing baseline...")

	if out, err := b.git("init"); err != nil {
		return fmt.Errorf("git init failed: %s: %w", strings.TrimSpace(out), err)
	}
	if out, err := b.git("add", "-A"); err != nil {
		return fmt.Errorf("git add failed: %s: %w", strings.TrimSpace(out), err)
	}
	if out, err := b.git(
		"-c", "user.name="+baselineAuthor,
		"-c", "user.email="+baselineEmail,
		"commit", "--allow-empty", "-m", baselineMessage,
	); err != nil {
		return fmt.Errorf("baseline commit failed: %s: %w", strings.TrimSpace(out), err)
	}

	return nil
}

// ComputeDiff stages the whole tree and produces one patch against the
// baseline. The patch embeds full blob ids and binary bodies so it applies
// without access to this repository's object store. Empty output is a valid
// "no observable change" result.
func (b *Baseliner) ComputeDiff() (string, error) {
	if out, err := b.git("add", "-A"); err != nil {
		return "", fmt.Errorf("staging workspace changes failed: %s: %w", strings.TrimSpace(out), err)
	}

	patch, err := b.gitStdout("diff", "--cached", "--patch", "--binary", "--full-index")
	if err != nil {
		return "", fmt.Errorf("git diff failed: %w", err)
	}

	// A stale index can leave the staged diff blank while the working tree
	// still differs; fall back to the unstaged diff in that case.
	if strings.TrimSpace(patch) == "" {
		patch, err = b.gitStdout("diff", "--patch", "--binary", "--full-index")
		if err != nil {
			return "", fmt.Errorf("git diff failed: %w", err)
		}
	}

	return patch, nil
}

func (b *Baseliner) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = b.dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// gitStdout is git() without stderr mixed in, for commands whose stdout is
// the artifact.
func (b *Baseliner) gitStdout(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = b.dir
	out, err := cmd.Output()
	return string(out), err
}
