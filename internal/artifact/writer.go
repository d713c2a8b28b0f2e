// Package artifact turns a finished run into the output bundle: manifest,
// patch, summary, and evidence log.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mpataki/anvil/internal/logging"
	"github.com/mpataki/anvil/internal/models"
)

const (
	adapterName    = "claude-code"
	adapterVersion = "0.1.0"
)

type manifest struct {
	Metadata  manifestMetadata `json:"metadata"`
	Status    string           `json:"status"`
	Outcome   string           `json:"outcome"`
	Duration  float64          `json:"duration"`
	Artifacts []manifestEntry  `json:"artifacts"`
	Error     string           `json:"error,omitempty"`
}

type manifestMetadata struct {
	Adapter string `json:"adapter"`
	Version string `json:"version"`
}

type manifestEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Writer emits the artifact bundle into a fixed output directory. It is
// invoked exactly once per run, on either the full or the minimal-failure
// path.
type Writer struct {
	outputDir string
	logger    *logging.Logger
}

func New(outputDir string, logger *logging.Logger) *Writer {
	return &Writer{outputDir: outputDir, logger: logger}
}

// SummaryPath is where the bundle's summary lands, and also where an agent
// that reports on itself is expected to have written one.
func (w *Writer) SummaryPath() string {
	return filepath.Join(w.outputDir, "summary.md")
}

// EvidenceLog creates the audit log inside the bundle and returns it open
// for appending. Opened before streaming starts so a mid-session crash still
// leaves everything received up to that point on disk.
func (w *Writer) EvidenceLog() (*os.File, error) {
	evidenceDir := filepath.Join(w.outputDir, "evidence")
	if err := os.MkdirAll(evidenceDir, 0755); err != nil {
		return nil, fmt.Errorf("artifact: create evidence dir: %w", err)
	}
	f, err := os.Create(filepath.Join(evidenceDir, "execution.log"))
	if err != nil {
		return nil, fmt.Errorf("artifact: create execution.log: %w", err)
	}
	return f, nil
}

// Write emits the rest of the bundle in a fixed order: manifest, patch,
// summary. The evidence log was already streamed to disk by this point. The
// manifest status is "completed" even on a failure verdict; it records that
// orchestration ran to termination, not that the task succeeded.
func (w *Writer) Write(outcome *models.Outcome, diff string, goal string) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("artifact: create output dir: %w", err)
	}

	m := manifest{
		Metadata: manifestMetadata{Adapter: adapterName, Version: adapterVersion},
		Status:   "completed",
		Outcome:  outcome.Label(),
		Duration: outcome.Duration.Seconds(),
		Artifacts: []manifestEntry{
			{Name: "diff.patch", Path: "diff.patch"},
			{Name: "summary.md", Path: "summary.md"},
			{Name: "evidence", Path: "evidence/"},
		},
	}
	if outcome.Error != "" {
		m.Error = outcome.Error
	}
	if err := w.writeManifest(m); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(w.outputDir, "diff.patch"), []byte(diff), 0644); err != nil {
		return fmt.Errorf("artifact: write diff.patch: %w", err)
	}

	return w.writeSummary(outcome, goal)
}

// WriteFailure emits the minimal manifest for the fatal path, where the run
// died before a full bundle could exist. The other files are whatever made
// it to disk beforehand.
func (w *Writer) WriteFailure(errMsg string) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("artifact: create output dir: %w", err)
	}
	return w.writeManifest(manifest{
		Metadata: manifestMetadata{Adapter: adapterName, Version: adapterVersion},
		Status:   "completed",
		Outcome:  "failure",
		Error:    errMsg,
	})
}

func (w *Writer) writeManifest(m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode manifest: %w", err)
	}
	path := filepath.Join(w.outputDir, "manifest.json")
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("artifact: write manifest.json: %w", err)
	}
	return nil
}

// writeSummary preserves a summary the agent wrote into the output directory
// itself; self-reporting takes precedence over synthesis.
func (w *Writer) writeSummary(outcome *models.Outcome, goal string) error {
	path := w.SummaryPath()
	if _, err := os.Stat(path); err == nil {
		w.logger.Debug("agent-authored summary found, preserving it")
		return nil
	}

	verdict := "Success"
	if !outcome.Success {
		verdict = "Failure"
	}
	summary := fmt.Sprintf("# Task Summary\n\nGoal: %s\n\nOutcome: %s\n\n## Actions\n%s\n",
		goal, verdict, outcome.Accumulated)
	if err := os.WriteFile(path, []byte(summary), 0644); err != nil {
		return fmt.Errorf("artifact: write summary.md: %w", err)
	}
	return nil
}
