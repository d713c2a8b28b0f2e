package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level is a progress-reporting tier. The ordering is deliberate: Minimal is
// the highest tier, not the lowest. A message is emitted when its tier is at
// or above the configured threshold, so phase announcements (Minimal) are
// visible at every threshold while Debug detail is opt-in.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelProgress
	LevelMinimal
)

// ParseLevel maps a config string to a Level, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "progress":
		return LevelProgress, nil
	case "minimal":
		return LevelMinimal, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (want debug, info, progress, or minimal)", s)
	}
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// Logger is the redaction-aware progress reporter used by every component.
// Tool-use logging never prints more than the basename of a touched path and
// never prints file content; the unredacted record belongs to the evidence
// log, not here.
type Logger struct {
	level    Level
	out      io.Writer
	toolUses int
}

func New(level string) (*Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return &Logger{level: l, out: os.Stdout}, nil
}

// NewWithWriter is New with an explicit output writer.
func NewWithWriter(level string, out io.Writer) (*Logger, error) {
	l, err := New(level)
	if err != nil {
		return nil, err
	}
	l.out = out
	return l, nil
}

func (l *Logger) Level() Level { return l.level }

// ToolUses reports how many tool invocations have been logged so far.
func (l *Logger) ToolUses() int { return l.toolUses }

func (l *Logger) emit(tier Level, prefix, format string, args ...any) {
	if tier < l.level {
		return
	}
	fmt.Fprintf(l.out, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.emit(LevelDebug, "[DEBUG]", format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.emit(LevelInfo, "[INFO]", format, args...)
}

func (l *Logger) Progress(format string, args ...any) {
	l.emit(LevelProgress, "[PROGRESS]", format, args...)
}

func (l *Logger) Minimal(format string, args ...any) {
	l.emit(LevelMinimal, "[PHASE]", format, args...)
}

// Warn is always visible regardless of threshold.
func (l *Logger) Warn(format string, args ...any) {
	l.emit(LevelMinimal, warnStyle.Render("[WARNING]"), format, args...)
}

// SafeFilename strips a path down to its final segment. Empty input maps to
// "unknown" so redacted log lines never look like missing arguments.
func SafeFilename(path string) string {
	if path == "" {
		return "unknown"
	}
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// maxToolFiles is the per-invocation cutoff above which individual names are
// suppressed in favor of an aggregate count.
const maxToolFiles = 3

// LogToolUse reports one tool invocation at Progress tier. Paths are reduced
// to basenames; more than maxToolFiles paths collapse to a count. count is
// for invocations that report only a number of touched items.
func (l *Logger) LogToolUse(name string, paths []string, count int) {
	l.toolUses++

	switch {
	case len(paths) > maxToolFiles:
		l.Progress("%s → %d files", name, len(paths))
	case len(paths) > 0:
		names := make([]string, len(paths))
		for i, p := range paths {
			names[i] = SafeFilename(p)
		}
		l.Progress("%s → %s (%d files)", name, strings.Join(names, ", "), len(paths))
	case count > 0:
		l.Progress("%s → %d items", name, count)
	default:
		l.Progress("%s", name)
	}
}

// LogPhase announces a phase boundary. Always Minimal so external progress
// tracking sees it at any threshold.
func (l *Logger) LogPhase(name string) {
	l.Minimal("Starting: %s", name)
}

// LogOutcome reports the final verdict with the duration to one decimal.
func (l *Logger) LogOutcome(success bool, duration time.Duration, errMsg string) {
	verdict := failureStyle.Render("FAILURE")
	if success {
		verdict = successStyle.Render("SUCCESS")
	}
	if errMsg != "" {
		l.Minimal("Outcome: %s (%.1fs): %s", verdict, duration.Seconds(), errMsg)
		return
	}
	l.Minimal("Outcome: %s (%.1fs)", verdict, duration.Seconds())
}

// LogSummaryExcerpt prints the first n lines of a text artifact, with a
// trailing count of what was elided. A missing file is only a warning: the
// excerpt is a convenience, not part of the output contract.
func (l *Logger) LogSummaryExcerpt(path string, n int) {
	f, err := os.Open(path)
	if err != nil {
		l.Warn("Summary file not found: %s", SafeFilename(path))
		return
	}
	defer f.Close()

	var shown []string
	elided := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(shown) < n {
			shown = append(shown, scanner.Text())
		} else {
			elided++
		}
	}

	l.Minimal("=== SUMMARY EXCERPT ===")
	for _, line := range shown {
		l.Minimal("%s", line)
	}
	if elided > 0 {
		l.Minimal("%s", dimStyle.Render(fmt.Sprintf("... and %d more lines", elided)))
	}
	l.Minimal("=== END SUMMARY ===")
}
