package tracer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// frameTable resolves the frame index carried by records
type frameTable []Frame

func (t *frameTable) add(f Frame) { *t = append(*t, f) }

func (t frameTable) lookup(i int) (Frame, bool) {
	if i < 0 || i >= len(t) {
		return Frame{}, false
	}
	return t[i], true
}

// StdoutListener prints one line per record, indented by call depth
type StdoutListener struct {
	mu          sync.Mutex
	out         io.Writer
	traceValues bool
	frames      frameTable

	lambda *color.Color
	name   *color.Color
	dim    *color.Color
	errc   *color.Color
}

// NewStdoutListener creates a listener writing to out, or os.Stdout when nil
func NewStdoutListener(out io.Writer, cfg ListenerConfig) *StdoutListener {
	if out == nil {
		out = os.Stdout
	}
	return &StdoutListener{
		out:         out,
		traceValues: cfg.TraceValues,
		lambda:      color.New(color.FgMagenta),
		name:        color.New(color.FgCyan, color.Bold),
		dim:         color.New(color.Faint),
		errc:        color.New(color.FgRed),
	}
}

// SetColor forces colored output on or off
func (l *StdoutListener) SetColor(enabled bool) {
	for _, c := range []*color.Color{l.lambda, l.name, l.dim, l.errc} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func indent(depth int) string {
	return strings.Repeat("—", depth+1)
}

func prefixOf(h Header) string {
	if h.Prefix == "" {
		return ""
	}
	return "[" + h.Prefix + "]: "
}

// Output implements Listener
func (l *StdoutListener) Output(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch rec := r.(type) {
	case Frame:
		l.frames.add(rec)
	case FrameEnter:
		f, _ := l.frames.lookup(rec.FrameIndex)
		line := fmt.Sprintf("%s%s%s %s %s", prefixOf(rec.Header), indent(rec.Depth),
			l.lambda.Sprint("λ"), l.name.Sprint(displayName(f)), l.dim.Sprint(f.Location()))
		if l.traceValues && len(rec.Args) > 0 {
			line += "(" + formatArgs(rec.Args, rec.ArgNames) + ")"
		}
		l.println(line)
	case FrameExit:
		f, _ := l.frames.lookup(rec.FrameIndex)
		line := fmt.Sprintf("%s%s%s %s %s", prefixOf(rec.Header), indent(rec.Depth),
			l.lambda.Sprint("λ"), l.name.Sprint(displayName(f)), rec.Why)
		if l.traceValues && rec.ReturnedValue != nil {
			line += " " + formatValue(rec.ReturnedValue)
		}
		l.println(line)
	case DOMMutation:
		l.println(fmt.Sprintf("%s%s[DOM Mutation | %s] %s", prefixOf(rec.Header), indent(rec.Depth),
			rec.MutationType, formatValue(rec.Element)))
	case Event:
		l.println(fmt.Sprintf("%s%s[DOM | %s]", prefixOf(rec.Header), indent(rec.Depth), rec.EventName))
	}
}

// Error implements Listener
func (l *StdoutListener) Error(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.println(l.errc.Sprintf("Tracer error: %v", err))
}

// Stop implements Listener. A stdout session has no result.
func (l *StdoutListener) Stop(ctx context.Context) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = nil
	return nil, nil
}

func (l *StdoutListener) println(s string) {
	_, _ = fmt.Fprintln(l.out, s)
}

func displayName(f Frame) string {
	if f.Name == "" {
		return "anonymous"
	}
	return f.Name
}

func formatArgs(args []any, names []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if i < len(names) && names[i] != "" {
			parts[i] = names[i] + "=" + formatValue(a)
		} else {
			parts[i] = formatValue(a)
		}
	}
	return strings.Join(parts, ", ")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case undefinedValue:
		return "undefined"
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprint(x)
	}
}
