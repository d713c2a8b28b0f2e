package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mpataki/anvil/internal/logging"
)

// State tracks the driver's protocol position. One instance drives exactly
// one session; there is no reconnect or retry.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateStreaming
	StateTerminalSuccess
	StateTerminalError
)

// Options configures a Driver.
type Options struct {
	// Binary is the agent CLI binary, default "claude".
	Binary string

	// Workspace is the directory the session runs in. Must exist.
	Workspace string

	// SystemPrompt is passed as session configuration (--system-prompt),
	// never concatenated into the user message.
	SystemPrompt string

	// AuthToken and BaseURL are forwarded to the subprocess environment
	// unmodified when set.
	AuthToken string
	BaseURL   string

	Logger *logging.Logger
}

// Driver runs one streaming agent session: spawn, send the compiled user
// prompt, consume messages until the terminal result, and hold the verdict.
// All consumption is synchronous; the only blocking point in a run is the
// read on the subprocess stdout. There is deliberately no timeout: a session
// that never terminates blocks the caller indefinitely, matching the
// documented behavior of the output contract's producer.
type Driver struct {
	opts   Options
	logger *logging.Logger

	state  State
	cmd    *exec.Cmd
	stdout io.ReadCloser

	accumulated strings.Builder
	toolUses    int
	resultSeen  bool
	isError     bool
}

func NewDriver(opts Options) *Driver {
	if opts.Binary == "" {
		opts.Binary = "claude"
	}
	return &Driver{opts: opts, logger: opts.Logger, state: StateDisconnected}
}

func (d *Driver) State() State { return d.state }

// Accumulated returns the assistant text gathered so far. Append-only.
func (d *Driver) Accumulated() string { return d.accumulated.String() }

// ToolUses reports the number of tool invocations seen in this session.
func (d *Driver) ToolUses() int { return d.toolUses }

// Succeeded reports the session verdict. A stream that ended without any
// terminal result counts as success; the permissive default is deliberate
// so a quietly-closing agent still produces a usable bundle.
func (d *Driver) Succeeded() bool {
	return !d.resultSeen || !d.isError
}

// Connect verifies the session can be established: the binary resolves and
// the workspace exists. Failure is terminal; the driver never retries.
func (d *Driver) Connect() error {
	if d.state != StateDisconnected {
		return fmt.Errorf("session: connect from state %d", d.state)
	}

	if _, err := exec.LookPath(d.opts.Binary); err != nil {
		d.state = StateTerminalError
		return fmt.Errorf("session: agent binary unavailable: %w", err)
	}
	info, err := os.Stat(d.opts.Workspace)
	if err != nil {
		d.state = StateTerminalError
		return fmt.Errorf("session: workspace: %w", err)
	}
	if !info.IsDir() {
		d.state = StateTerminalError
		return fmt.Errorf("session: workspace is not a directory: %s", d.opts.Workspace)
	}

	d.state = StateConnected
	return nil
}

// Query starts the subprocess with prompt as the sole user message. The
// session runs headless: permission prompts are bypassed and the sandbox
// marker is forced on.
func (d *Driver) Query(prompt string) error {
	if d.state != StateConnected {
		return fmt.Errorf("session: query from state %d", d.state)
	}

	args := []string{
		"-p",
		"--verbose",
		"--output-format", "stream-json",
		"--permission-mode", "bypassPermissions",
	}
	if d.opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", d.opts.SystemPrompt)
	}
	args = append(args, prompt)

	cmd := exec.Command(d.opts.Binary, args...)
	cmd.Dir = d.opts.Workspace
	cmd.Env = d.sessionEnv()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		d.state = StateTerminalError
		return fmt.Errorf("session: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		d.state = StateTerminalError
		return fmt.Errorf("session: start: %w", err)
	}

	d.cmd = cmd
	d.stdout = stdout
	d.state = StateStreaming
	d.logger.Debug("session started (pid %d)", cmd.Process.Pid)
	return nil
}

// Stream consumes the message sequence until the first terminal result or
// the end of the stream, appending every raw line to evidence before any
// classification. It finishes the evidence log with the accumulated text.
func (d *Driver) Stream(evidence io.Writer) error {
	if d.state != StateStreaming {
		return fmt.Errorf("session: stream from state %d", d.state)
	}

	if err := d.consume(d.stdout, evidence); err != nil {
		d.state = StateTerminalError
		return err
	}

	fmt.Fprintf(evidence, "--- FINAL OUTPUT ---\n%s\n", d.accumulated.String())

	if d.resultSeen && d.isError {
		d.state = StateTerminalError
	} else {
		d.state = StateTerminalSuccess
	}
	return nil
}

// consume is the streaming loop, split out so tests can feed crafted
// streams without a subprocess.
func (d *Driver) consume(r io.Reader, evidence io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		// Raw line first, unconditionally: the audit trail must hold
		// everything the session said, classified or not.
		fmt.Fprintf(evidence, "Message: %s\n", line)

		msgs, err := ParseLine(line)
		if errors.Is(err, ErrSkipLine) {
			continue
		}
		if err != nil {
			d.logger.Debug("unparseable session message: %v", err)
			continue
		}

		for _, msg := range msgs {
			switch msg.Kind {
			case KindAssistantText:
				d.accumulated.WriteString(msg.Text)
			case KindToolUse:
				d.toolUses++
				d.logger.LogToolUse(msg.Tool.Name, msg.Tool.Paths, msg.Tool.Count)
			case KindResult:
				d.resultSeen = true
				d.isError = msg.IsError
				d.logger.Info("terminal result: is_error=%v", msg.IsError)
				// Terminal: stop consuming even if the stream has more.
				return nil
			case KindOther:
				// Already in the evidence log; nothing to do.
			}
		}
	}
	return scanner.Err()
}

// Close reaps the subprocess. Safe on any state; kills the process if the
// stream was abandoned before it exited.
func (d *Driver) Close() error {
	if d.cmd == nil || d.cmd.Process == nil {
		return nil
	}
	_ = d.cmd.Process.Kill()
	if err := d.cmd.Wait(); err != nil {
		// Expected for killed or error-exiting sessions; the verdict comes
		// from the stream, not the exit code.
		d.logger.Debug("session process exit: %v", err)
	}
	return nil
}

func (d *Driver) sessionEnv() []string {
	env := append(os.Environ(), "IS_SANDBOX=1")
	if d.opts.AuthToken != "" {
		env = append(env,
			"ANTHROPIC_AUTH_TOKEN="+d.opts.AuthToken,
			"ANTHROPIC_API_KEY="+d.opts.AuthToken,
		)
	}
	if d.opts.BaseURL != "" {
		env = append(env,
			"ANTHROPIC_BASE_URL="+d.opts.BaseURL,
			"ANTHROPIC_API_URL="+d.opts.BaseURL,
		)
	}
	return env
}
