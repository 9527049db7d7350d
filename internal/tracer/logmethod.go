package tracer

import "fmt"

// LogMethod selects where trace records go
type LogMethod string

const (
	LogMethodStdout          LogMethod = "stdout"
	LogMethodConsole         LogMethod = "console"
	LogMethodDebuggerSidebar LogMethod = "debugger-sidebar"
	LogMethodProfiler        LogMethod = "profiler"
)

// LogMethods lists every valid LogMethod
var LogMethods = []LogMethod{
	LogMethodStdout,
	LogMethodConsole,
	LogMethodDebuggerSidebar,
	LogMethodProfiler,
}

// Valid reports whether m is one of the known log methods
func (m LogMethod) Valid() bool {
	switch m {
	case LogMethodStdout, LogMethodConsole, LogMethodDebuggerSidebar, LogMethodProfiler:
		return true
	default:
		return false
	}
}

// String returns the wire name of the log method
func (m LogMethod) String() string { return string(m) }

// ParseLogMethod converts a wire name into a LogMethod
func ParseLogMethod(s string) (LogMethod, error) {
	m := LogMethod(s)
	if !m.Valid() {
		return "", &OptionError{Field: "logMethod", Reason: fmt.Sprintf("invalid log method '%s'", s)}
	}
	return m, nil
}
