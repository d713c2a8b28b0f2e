package baseline

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/mpataki/anvil/internal/logging"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func newTestBaseliner(t *testing.T) *Baseliner {
	t.Helper()
	requireGit(t)

	// Keep --global config writes out of the real home directory.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "xdg"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	logger, err := logging.NewWithWriter("minimal", io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	return New(t.TempDir(), logger)
}

func write(t *testing.T, b *Baseliner, name string, data []byte) {
	t.Helper()
	path := filepath.Join(b.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func commitCount(t *testing.T, b *Baseliner) int {
	t.Helper()
	out, err := b.gitStdout("rev-list", "--count", "HEAD")
	if err != nil {
		t.Fatalf("rev-list: %v", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("unexpected commit count %q", out)
	}
	return n
}

func TestEnsureBaselineIsIdempotent(t *testing.T) {
	b := newTestBaseliner(t)
	write(t, b, "main.go", []byte("package main\n"))

	if err := b.EnsureBaseline(); err != nil {
		t.Fatalf("first EnsureBaseline: %v", err)
	}
	if err := b.EnsureBaseline(); err != nil {
		t.Fatalf("second EnsureBaseline: %v", err)
	}
	if got := commitCount(t, b); got != 1 {
		t.Errorf("commit count = %d, want 1", got)
	}
}

func TestEnsureBaselineEmptyWorkspace(t *testing.T) {
	b := newTestBaseliner(t)
	if err := b.EnsureBaseline(); err != nil {
		t.Fatalf("EnsureBaseline on empty workspace: %v", err)
	}
}

func TestComputeDiffEmptyAfterBaseline(t *testing.T) {
	b := newTestBaseliner(t)
	write(t, b, "README.md", []byte("# hello\n"))

	if err := b.EnsureBaseline(); err != nil {
		t.Fatal(err)
	}
	patch, err := b.ComputeDiff()
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	if strings.TrimSpace(patch) != "" {
		t.Errorf("expected empty diff, got:\n%s", patch)
	}
}

func TestComputeDiffNewTextFile(t *testing.T) {
	b := newTestBaseliner(t)
	write(t, b, "README.md", []byte("# hello\n"))
	if err := b.EnsureBaseline(); err != nil {
		t.Fatal(err)
	}

	write(t, b, "LICENSE", []byte("MIT License\n"))

	patch, err := b.ComputeDiff()
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	if !strings.Contains(patch, "diff --git a/LICENSE b/LICENSE") {
		t.Errorf("patch missing LICENSE entry:\n%s", patch)
	}
	if !strings.Contains(patch, "new file mode") {
		t.Errorf("patch missing addition marker:\n%s", patch)
	}
}

func TestComputeDiffNewBinaryFile(t *testing.T) {
	b := newTestBaseliner(t)
	write(t, b, "README.md", []byte("# hello\n"))
	if err := b.EnsureBaseline(); err != nil {
		t.Fatal(err)
	}

	write(t, b, "logo.bin", []byte{0x00, 0x01, 0xff, 0xfe, 0x00, 0x42})

	patch, err := b.ComputeDiff()
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	// --binary embeds the full content so the patch applies anywhere.
	if !strings.Contains(patch, "GIT binary patch") {
		t.Errorf("patch missing binary hunk:\n%s", patch)
	}
}

func TestComputeDiffDeletion(t *testing.T) {
	b := newTestBaseliner(t)
	write(t, b, "old.txt", []byte("going away\n"))
	if err := b.EnsureBaseline(); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(b.dir, "old.txt")); err != nil {
		t.Fatal(err)
	}

	patch, err := b.ComputeDiff()
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	if !strings.Contains(patch, "deleted file mode") {
		t.Errorf("patch missing deletion marker:\n%s", patch)
	}
}

func TestExistingHistoryIsTheBaseline(t *testing.T) {
	b := newTestBaseliner(t)
	write(t, b, "app.go", []byte("package app\n"))

	// Pre-existing history created by whoever prepared the workspace.
	for _, args := range [][]string{
		{"init"},
		{"add", "-A"},
		{"-c", "user.name=someone", "-c", "user.email=someone@example.com", "commit", "-m", "initial"},
	} {
		if out, err := b.git(args...); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	if err := b.EnsureBaseline(); err != nil {
		t.Fatalf("EnsureBaseline: %v", err)
	}
	if got := commitCount(t, b); got != 1 {
		t.Errorf("commit count = %d, want 1 (no synthetic commit on existing history)", got)
	}

	write(t, b, "app.go", []byte("package app // changed\n"))
	patch, err := b.ComputeDiff()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(patch, "changed") {
		t.Errorf("patch missing modification:\n%s", patch)
	}
}
