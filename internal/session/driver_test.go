package session

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/mpataki/anvil/internal/logging"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	logger, err := logging.NewWithWriter("minimal", io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	return NewDriver(Options{Logger: logger, Workspace: t.TempDir()})
}

func consumeStream(t *testing.T, d *Driver, stream string) *bytes.Buffer {
	t.Helper()
	var evidence bytes.Buffer
	if err := d.consume(strings.NewReader(stream), &evidence); err != nil {
		t.Fatalf("consume: %v", err)
	}
	return &evidence
}

func TestConsumeAccumulatesAssistantText(t *testing.T) {
	d := newTestDriver(t)
	stream := strings.Join([]string{
		`{"type":"system","subtype":"init"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"first. "}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"second."}]}}`,
		`{"type":"result","is_error":false}`,
	}, "\n")

	consumeStream(t, d, stream)

	if got := d.Accumulated(); got != "first. second." {
		t.Errorf("accumulated = %q", got)
	}
	if !d.Succeeded() {
		t.Error("expected success verdict")
	}
}

func TestConsumeCountsToolUses(t *testing.T) {
	d := newTestDriver(t)
	stream := strings.Join([]string{
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"a.go"}},{"type":"tool_use","name":"Read","input":{"file_path":"b.go"}}]}}`,
		`{"type":"result","is_error":false}`,
	}, "\n")

	consumeStream(t, d, stream)

	if d.ToolUses() != 2 {
		t.Errorf("tool uses = %d, want 2", d.ToolUses())
	}
}

func TestConsumeStopsAtFirstResult(t *testing.T) {
	d := newTestDriver(t)
	stream := strings.Join([]string{
		`{"type":"result","is_error":false}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"after the end"}]}}`,
	}, "\n")

	evidence := consumeStream(t, d, stream)

	if d.Accumulated() != "" {
		t.Errorf("text after the terminal result was consumed: %q", d.Accumulated())
	}
	if strings.Contains(evidence.String(), "after the end") {
		t.Error("evidence contains lines past the terminal result")
	}
}

func TestConsumeErrorResultVerdict(t *testing.T) {
	d := newTestDriver(t)
	consumeStream(t, d, `{"type":"result","is_error":true}`)
	if d.Succeeded() {
		t.Error("error result should yield a failure verdict")
	}
}

func TestConsumeNoResultIsSuccess(t *testing.T) {
	d := newTestDriver(t)
	consumeStream(t, d, `{"type":"assistant","message":{"content":[{"type":"text","text":"done, probably"}]}}`)
	if !d.Succeeded() {
		t.Error("stream ending without a result should default to success")
	}
}

func TestConsumeEvidencePrecedesClassification(t *testing.T) {
	d := newTestDriver(t)
	stream := strings.Join([]string{
		`{"type":"system","subtype":"init"}`,
		`this line is not json at all`,
		`{"type":"result","is_error":false}`,
	}, "\n")

	evidence := consumeStream(t, d, stream)

	// Every raw line lands in the log, including ones that fail to parse.
	for _, want := range []string{
		`Message: {"type":"system","subtype":"init"}`,
		"Message: this line is not json at all",
		`Message: {"type":"result","is_error":false}`,
	} {
		if !strings.Contains(evidence.String(), want) {
			t.Errorf("evidence missing %q:\n%s", want, evidence.String())
		}
	}
}

func TestConsumeBlankLinesYieldNoMessages(t *testing.T) {
	d := newTestDriver(t)
	stream := "\n   \n" + `{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}` + "\n"
	evidence := consumeStream(t, d, stream)

	// Blank lines still reach the audit trail (raw line before any
	// classification) but never become messages or affect state.
	if got := strings.Count(evidence.String(), "Message:"); got != 3 {
		t.Errorf("evidence entries = %d, want 3:\n%s", got, evidence.String())
	}
	if d.Accumulated() != "hi" {
		t.Errorf("accumulated = %q", d.Accumulated())
	}
	if d.ToolUses() != 0 {
		t.Errorf("tool uses = %d, want 0", d.ToolUses())
	}
}

func TestStreamWritesFinalOutputTrailer(t *testing.T) {
	d := newTestDriver(t)
	d.state = StateStreaming
	d.stdout = io.NopCloser(strings.NewReader(strings.Join([]string{
		`{"type":"assistant","message":{"content":[{"type":"text","text":"wrapped up"}]}}`,
		`{"type":"result","is_error":false}`,
	}, "\n")))

	var evidence bytes.Buffer
	if err := d.Stream(&evidence); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if !strings.Contains(evidence.String(), "--- FINAL OUTPUT ---\nwrapped up\n") {
		t.Errorf("missing final output trailer:\n%s", evidence.String())
	}
	if d.State() != StateTerminalSuccess {
		t.Errorf("state = %d, want terminal success", d.State())
	}
}

func TestStreamErrorResultReachesTerminalError(t *testing.T) {
	d := newTestDriver(t)
	d.state = StateStreaming
	d.stdout = io.NopCloser(strings.NewReader(`{"type":"result","is_error":true}`))

	if err := d.Stream(io.Discard); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if d.State() != StateTerminalError {
		t.Errorf("state = %d, want terminal error", d.State())
	}
}

func TestConnectRejectsMissingWorkspace(t *testing.T) {
	logger, err := logging.NewWithWriter("minimal", io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	// "git" is on PATH wherever these tests run, so only the workspace check
	// can fail.
	d := NewDriver(Options{Logger: logger, Binary: "git", Workspace: "/does/not/exist"})
	if err := d.Connect(); err == nil {
		t.Fatal("expected error for missing workspace")
	}
	if d.State() != StateTerminalError {
		t.Errorf("state = %d, want terminal error", d.State())
	}
}

func TestConnectRejectsMissingBinary(t *testing.T) {
	logger, err := logging.NewWithWriter("minimal", io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDriver(Options{Logger: logger, Binary: "definitely-not-a-real-binary-7f3a", Workspace: t.TempDir()})
	if err := d.Connect(); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestQueryRequiresConnectedState(t *testing.T) {
	d := newTestDriver(t)
	if err := d.Query("do the thing"); err == nil {
		t.Fatal("Query before Connect should fail")
	}
}
