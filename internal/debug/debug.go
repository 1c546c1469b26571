// Package debug provides leveled, toggleable logging for the engine.
// Output is off by default so MCP/stdio transports are never polluted
// by stray log lines; tests and the CLI opt in explicitly.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level orders the log levels named in the spec's notification surface.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	mu        sync.Mutex
	output    io.Writer
	minLevel  = LevelInfo
	sinkFuncs []func(level Level, line string)
)

// SetOutput directs log output to w. Pass nil to disable output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetMinLevel filters out log calls below level.
func SetMinLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = level
}

// AddSink registers a callback invoked for every log line at or above the
// configured level, in addition to the writer. Sessions use this to turn
// log lines into transport notifications.
func AddSink(fn func(level Level, line string)) {
	mu.Lock()
	defer mu.Unlock()
	sinkFuncs = append(sinkFuncs, fn)
}

// Log emits one line tagged with component and level.
func Log(level Level, component, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if level < minLevel {
		return
	}
	line := fmt.Sprintf("%s [%s] %s: %s", time.Now().Format(time.RFC3339Nano), level, component, fmt.Sprintf(format, args...))
	if output != nil {
		fmt.Fprintln(output, line)
	}
	for _, sink := range sinkFuncs {
		sink(level, line)
	}
}

func Trace(component, format string, args ...any) { Log(LevelTrace, component, format, args...) }
func Debug(component, format string, args ...any) { Log(LevelDebug, component, format, args...) }
func Info(component, format string, args ...any)  { Log(LevelInfo, component, format, args...) }
func Warn(component, format string, args ...any)  { Log(LevelWarn, component, format, args...) }
func Error(component, format string, args ...any) { Log(LevelError, component, format, args...) }

// Discard resets the logger to its silent default; useful between tests.
func Discard() {
	mu.Lock()
	defer mu.Unlock()
	output = nil
	sinkFuncs = nil
}

// init keeps logging off until something opts in, matching the teacher's
// "no ambient singleton writing to stdio" stance for MCP mode.
func init() {
	if os.Getenv("CORELS_DEBUG") != "" {
		output = os.Stderr
		minLevel = LevelDebug
	}
}
