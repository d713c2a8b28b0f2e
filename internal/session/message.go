package session

// Kind discriminates the session message union. The driver switches over it
// exhaustively; anything the protocol grows later lands in KindOther and
// still reaches the evidence log.
type Kind string

const (
	// KindAssistantText is assistant prose, appended to the accumulated
	// session text.
	KindAssistantText Kind = "assistant_text"

	// KindToolUse is one tool invocation, logged in redacted form.
	KindToolUse Kind = "tool_use"

	// KindResult is the terminal message carrying the verdict. Nothing is
	// consumed after it.
	KindResult Kind = "result"

	// KindOther is anything else in the stream: init handshakes, system
	// notices, partial deltas.
	KindOther Kind = "other"
)

// Message is one logical event decoded from the session stream. A single
// raw stream line can expand to several messages (assistant text plus the
// tool invocations it carries).
type Message struct {
	Kind Kind

	// Text is the prose for KindAssistantText.
	Text string

	// Tool is set for KindToolUse.
	Tool *ToolUse

	// IsError is the verdict on KindResult.
	IsError bool
}

// ToolUse describes a tool invocation with whatever path information the
// input carried. Paths stay unredacted here; redaction is the logger's job.
type ToolUse struct {
	Name  string
	Paths []string
	Count int
}
