package annotations

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd()) && !color.NoColor
	}
	return &OutputFormatter{useColor: useColor, writer: w}
}

// Handle prints events as they occur.
func (f *OutputFormatter) Handle(event Event) {
	if output := f.Format(event); output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case PlanningBegin:
		return fmt.Sprintf("%s %s Planning %v", latency, f.colorize("===", color.FgYellow), event.Data["root"])

	case PlanningComplete:
		if err, ok := event.Data["error"]; ok {
			return fmt.Sprintf("%s %s Planning failed: %v", latency, f.colorize("✗", color.FgRed), err)
		}
		return fmt.Sprintf("%s %s Planning done after %s in %s",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("tasks", event.Data["tasks"]),
			f.colorizeCount("groups", event.Data["groups"]))

	case PlanSelected:
		return fmt.Sprintf("%s Selected plan (cost %.2f)\n%v", latency, event.Data["cost"], event.Data["plan"])

	case RuleFired:
		return fmt.Sprintf("%s %s on %v: %v",
			latency,
			f.colorize(fmt.Sprint(event.Data["rule"]), color.FgCyan),
			event.Data["group"],
			event.Data["expression"])

	case ExpressionYielded:
		return fmt.Sprintf("%s   %s %v ← %v",
			latency,
			f.colorize("yield", color.FgGreen),
			event.Data["group"],
			event.Data["expression"])

	case GroupCreated:
		return fmt.Sprintf("%s   %s %v: %v", latency, f.colorize("group", color.FgBlue), event.Data["group"], event.Data["expression"])

	case PartialMatchFound:
		return fmt.Sprintf("%s   %s %v against %v",
			latency,
			f.colorize("match", color.FgMagenta),
			event.Data["group"],
			event.Data["candidate"])

	case RequirementPushed:
		return fmt.Sprintf("%s   %s %v %v = %v",
			latency,
			f.colorize("require", color.FgYellow),
			event.Data["group"],
			event.Data["attribute"],
			event.Data["value"])

	case ExecutionComplete:
		return fmt.Sprintf("%s %s Execution done with %s",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("rows", event.Data["rows"]))

	case AggregateGroup:
		return fmt.Sprintf("%s   group %v", latency, event.Data["key"])

	case ErrorPlanning, ErrorStorage:
		return fmt.Sprintf("%s %s %s: %v", latency, f.colorize("✗", color.FgRed), event.Name, event.Data["error"])

	default:
		return fmt.Sprintf("%s %s %s", latency, event.Name, formatData(event.Data))
	}
}

func formatData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(parts, " ")
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)
	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, using color based on the label type.
func (f *OutputFormatter) colorizeCount(label string, count any) string {
	text := fmt.Sprintf("%v %s", count, label)
	if !f.useColor {
		return text
	}

	switch label {
	case "tasks":
		return color.CyanString(text)
	case "groups":
		return color.BlueString(text)
	case "rows":
		return color.MagentaString(text)
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// ConsoleHandler creates a handler that prints formatted events to stdout.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stdout).Handle
}

// isTerminal checks if the file descriptor is stdout or stderr.
func isTerminal(fd uintptr) bool {
	return fd == uintptr(1) || fd == uintptr(2)
}
