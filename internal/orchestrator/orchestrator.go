package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mpataki/anvil/internal/artifact"
	"github.com/mpataki/anvil/internal/baseline"
	"github.com/mpataki/anvil/internal/config"
	"github.com/mpataki/anvil/internal/logging"
	"github.com/mpataki/anvil/internal/models"
	"github.com/mpataki/anvil/internal/permissions"
	"github.com/mpataki/anvil/internal/session"
	"github.com/mpataki/anvil/internal/settings"
	"github.com/mpataki/anvil/internal/spec"
	"github.com/mpataki/anvil/internal/storage"
)

// Failure classes. Only these (and artifact-write errors) escalate to a
// non-zero exit; an agent that reports its own failure cleanly is a normal
// termination with a negative verdict in the manifest.
var (
	ErrMissingInput = errors.New("required input file missing")
	ErrBaseline     = errors.New("baseline initialization failed")
	ErrSession      = errors.New("agent session failed")
)

// Session is the slice of the driver the orchestrator needs; tests swap in
// scripted fakes.
type Session interface {
	Connect() error
	Query(prompt string) error
	Stream(evidence io.Writer) error
	Succeeded() bool
	Accumulated() string
	ToolUses() int
	Close() error
}

// Orchestrator runs one task end to end: baseline, session, diff, bundle.
// One invocation is one run; there is no queueing or retry.
type Orchestrator struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *storage.Storage // nil when the ledger is unavailable

	newSession func(opts session.Options) Session
}

func New(cfg *config.Config, logger *logging.Logger, store *storage.Storage) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		logger: logger,
		store:  store,
		newSession: func(opts session.Options) Session {
			return session.NewDriver(opts)
		},
	}
}

// Run executes the whole orchestration. A nil return means the artifact
// stage was reached, whatever the task verdict; an error return means the
// run died before a full bundle could exist, with the minimal failure
// manifest written first.
func (o *Orchestrator) Run() error {
	start := time.Now()
	writer := artifact.New(o.cfg.OutputDir, o.logger)
	reconciler := permissions.New(o.cfg.HostUID, o.cfg.HostGID, o.logger)

	goal, outcome, err := o.runTask(writer, start)
	if err != nil {
		// Central catch: whatever already made it to disk stays, the
		// minimal manifest records why the run died, and ownership is
		// still handed back.
		if werr := writer.WriteFailure(err.Error()); werr != nil {
			o.logger.Warn("failure manifest: %v", werr)
		}
		reconciler.Fix(o.cfg.OutputDir)
		o.record(goal, models.RecordFatal, time.Since(start), 0, err.Error(), "")
		o.logger.LogOutcome(false, time.Since(start), err.Error())
		return err
	}

	reconciler.Fix(o.cfg.OutputDir)

	verdict := models.RecordSuccess
	if !outcome.Success {
		verdict = models.RecordFailure
	}
	o.record(goal, verdict, outcome.Duration, outcome.ToolUses, outcome.Error, outcome.Accumulated)

	o.logger.LogSummaryExcerpt(writer.SummaryPath(), 10)
	o.logger.LogOutcome(outcome.Success, outcome.Duration, outcome.Error)
	return nil
}

func (o *Orchestrator) runTask(writer *artifact.Writer, start time.Time) (string, *models.Outcome, error) {
	o.logger.LogPhase("Loading task inputs")

	task, err := spec.Parse(o.cfg.SpecPath())
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	goal := string(task.Goal)

	prompt, err := spec.LoadPrompt(o.cfg.SystemPromptPath(), o.cfg.UserPromptPath())
	if err != nil {
		return goal, nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}

	o.logger.LogPhase("Establishing workspace baseline")

	base := baseline.New(o.cfg.WorkspaceDir, o.logger)
	if err := base.EnsureBaseline(); err != nil {
		return goal, nil, fmt.Errorf("%w: %v", ErrBaseline, err)
	}

	if err := settings.Sync(o.cfg.AuthToken, o.cfg.BaseURL); err != nil {
		o.logger.Warn("agent settings sync: %v", err)
	}

	o.logger.LogPhase("Running agent session")

	sess := o.newSession(session.Options{
		Binary:       o.cfg.ClaudeBin,
		Workspace:    o.cfg.WorkspaceDir,
		SystemPrompt: prompt.System,
		AuthToken:    o.cfg.AuthToken,
		BaseURL:      o.cfg.BaseURL,
		Logger:       o.logger,
	})
	defer sess.Close()

	// The evidence log goes straight to disk, opened before the session
	// starts: a mid-stream crash must still leave the audit trail behind.
	evidence, err := writer.EvidenceLog()
	if err != nil {
		return goal, nil, err
	}
	defer evidence.Close()

	if err := sess.Connect(); err != nil {
		return goal, nil, fmt.Errorf("%w: %v", ErrSession, err)
	}
	if err := sess.Query(prompt.User); err != nil {
		return goal, nil, fmt.Errorf("%w: %v", ErrSession, err)
	}
	if err := sess.Stream(evidence); err != nil {
		return goal, nil, fmt.Errorf("%w: %v", ErrSession, err)
	}

	outcome := models.NewOutcome()
	outcome.Success = sess.Succeeded()
	outcome.Accumulated = sess.Accumulated()
	outcome.ToolUses = sess.ToolUses()
	outcome.Duration = time.Since(start)
	if !outcome.Success {
		outcome.Error = "agent reported an error result"
	}

	o.logger.LogPhase("Computing workspace diff")

	diff, err := base.ComputeDiff()
	if err != nil {
		return goal, nil, fmt.Errorf("workspace diff failed: %w", err)
	}

	o.logger.LogPhase("Writing artifact bundle")

	if err := writer.Write(outcome, diff, goal); err != nil {
		return goal, nil, err
	}

	return goal, outcome, nil
}

// record appends one row to the local run ledger. Best-effort only: history
// loss never fails a run.
func (o *Orchestrator) record(goal string, verdict models.RecordOutcome, duration time.Duration, toolUses int, errMsg, summary string) {
	if o.store == nil {
		return
	}
	_, err := o.store.CreateRecord(&models.Record{
		Goal:        goal,
		Workspace:   o.cfg.WorkspaceDir,
		Outcome:     verdict,
		DurationSec: duration.Seconds(),
		ToolUses:    toolUses,
		Error:       errMsg,
		Summary:     summary,
	})
	if err != nil {
		o.logger.Warn("run ledger: %v", err)
	}
}

// ListRecords exposes ledger history for the TUI.
func (o *Orchestrator) ListRecords(limit int) ([]*models.Record, error) {
	if o.store == nil {
		return nil, errors.New("run ledger unavailable")
	}
	return o.store.ListRecords(limit)
}
