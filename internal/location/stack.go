package location

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	nativeFramePattern    = regexp.MustCompile(`at\s+(.+?)\s+\(native\)`)
	namedFramePattern     = regexp.MustCompile(`at\s+(.+?)\s+\((.+?):(\d+):(\d+)\)`)
	anonymousFramePattern = regexp.MustCompile(`at\s+(.+?):(\d+):(\d+)`)
	// SpiderMonkey style: fn@file:line:column
	atSignFramePattern = regexp.MustCompile(`^(.*?)@(.+?):(\d+):(\d+)$`)
	bareFramePattern   = regexp.MustCompile(`^(.+?):(\d+):(\d+)$`)
	indentPattern      = regexp.MustCompile(`^(\s*)`)
)

// StackFrame is one parsed line of a JavaScript stack trace
type StackFrame struct {
	Raw          string
	FunctionName string
	FileName     string
	// 1-based, zero when unknown
	Line   int
	Column int
	Native bool
}

// HasPosition reports whether the frame carries a line and column
func (f StackFrame) HasPosition() bool {
	return !f.Native && f.Line > 0 && f.Column > 0
}

// MappedFrame is a stack frame together with its original position, if any
type MappedFrame struct {
	StackFrame
	Original *OriginalLocation
}

// ParseStack parses every recognizable line of a stack trace
func ParseStack(stack string) []StackFrame {
	frames := make([]StackFrame, 0)
	for _, line := range strings.Split(stack, "\n") {
		if frame, ok := ParseStackLine(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// ParseStackLine parses a single stack line. Handles:
//   - at fn (file:line:column)
//   - at file:line:column
//   - at fn (native)
//   - fn@file:line:column
//   - file:line:column
func ParseStackLine(line string) (StackFrame, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return StackFrame{}, false
	}

	if strings.Contains(trimmed, "(native)") {
		name := "unknown"
		if m := nativeFramePattern.FindStringSubmatch(trimmed); m != nil {
			name = m[1]
		}
		return StackFrame{Raw: line, FunctionName: name, FileName: "native", Native: true}, true
	}

	if m := namedFramePattern.FindStringSubmatch(trimmed); m != nil {
		return positioned(line, m[1], m[2], m[3], m[4]), true
	}
	if m := anonymousFramePattern.FindStringSubmatch(trimmed); m != nil {
		return positioned(line, "<anonymous>", m[1], m[2], m[3]), true
	}
	if m := atSignFramePattern.FindStringSubmatch(trimmed); m != nil {
		name := m[1]
		if name == "" {
			name = "<anonymous>"
		}
		return positioned(line, name, m[2], m[3], m[4]), true
	}
	if m := bareFramePattern.FindStringSubmatch(trimmed); m != nil {
		return positioned(line, "<anonymous>", m[1], m[2], m[3]), true
	}
	return StackFrame{}, false
}

func positioned(raw, fn, file, line, column string) StackFrame {
	l, _ := strconv.Atoi(line)
	c, _ := strconv.Atoi(column)
	return StackFrame{Raw: raw, FunctionName: fn, FileName: file, Line: l, Column: c}
}

// FormatFrame renders a mapped frame as "at fn (file:line:column)" keeping
// the indentation of the raw line. Unmapped frames are returned verbatim.
func FormatFrame(frame MappedFrame) string {
	if frame.Original == nil || frame.Native {
		return frame.Raw
	}

	o := frame.Original
	name := frame.FunctionName
	if o.OriginalName() != "" {
		name = o.OriginalName()
	}
	column := frame.Column
	if c, ok := o.OriginalColumn(); ok {
		// stack columns are 1-based
		column = c + 1
	}

	indent := ""
	if m := indentPattern.FindStringSubmatch(frame.Raw); len(m) > 1 {
		indent = m[1]
	}
	return fmt.Sprintf("%sat %s (%s:%d:%d)", indent, name, o.OriginalURL(), o.OriginalLine(), column)
}

// FormatStack renders every frame, one per line
func FormatStack(frames []MappedFrame) string {
	lines := make([]string, len(frames))
	for i, frame := range frames {
		lines[i] = FormatFrame(frame)
	}
	return strings.Join(lines, "\n")
}
