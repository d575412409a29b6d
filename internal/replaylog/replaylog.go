// Package replaylog is a trimmed leveled logger used throughout the replay
// server. It keeps the sub-logger-per-subsystem shape of a hand-rolled
// logger seen elsewhere in this codebase family, but drops the
// job-channel/pool/file-rotation machinery that shape normally carries:
// a replay server has no multi-gigabyte log volume to amortize, so log
// events are written synchronously to the configured writers.
package replaylog

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	timestampFormat = " 02/01/2006 15:04:05 "
	spacer          = " | "

	infoHeader  = "[INFO]"
	warnHeader  = "[WARN]"
	debugHeader = "[DEBUG]"
	errorHeader = "[ERROR]"
)

// Levels toggles which severities a SubLogger emits.
type Levels struct {
	Info, Debug, Warn, Error bool
}

// SubLogger is a named logging facet. Each subsystem of the replay server
// owns one so every line carries its component name; levels and output
// are set for all sub loggers at once through SetLevels and SetOutput.
type SubLogger struct {
	name   string
	levels Levels
	mu     sync.RWMutex
	output io.Writer
}

var (
	registryMu sync.Mutex
	registry   = map[string]*SubLogger{}

	// Global is the catch-all sub logger for events that do not belong to
	// any single subsystem (startup, shutdown, config loading).
	Global *SubLogger
	// StoreMgr logs candle store loading and lookups.
	StoreMgr *SubLogger
	// SkipMgr logs skip event recording and projection.
	SkipMgr *SubLogger
	// CursorMgr logs time cursor mode transitions.
	CursorMgr *SubLogger
	// LifecycleMgr logs chart series lifecycle state changes.
	LifecycleMgr *SubLogger
	// TransitionMgr logs transition transaction phases.
	TransitionMgr *SubLogger
	// BroadcastMgr logs duplex channel connection lifecycle and message traffic.
	BroadcastMgr *SubLogger
	// APISys logs HTTP request handling.
	APISys *SubLogger
)

func init() {
	Global = registerSubLogger("GLOBAL")
	StoreMgr = registerSubLogger("STORE")
	SkipMgr = registerSubLogger("SKIP")
	CursorMgr = registerSubLogger("CURSOR")
	LifecycleMgr = registerSubLogger("LIFECYCLE")
	TransitionMgr = registerSubLogger("TRANSITION")
	BroadcastMgr = registerSubLogger("BROADCAST")
	APISys = registerSubLogger("API")
	SetLevels(Levels{Info: true, Warn: true, Error: true})
	SetOutput(io.Discard)
}

func registerSubLogger(name string) *SubLogger {
	registryMu.Lock()
	defer registryMu.Unlock()
	sl := &SubLogger{name: name, output: io.Discard}
	registry[name] = sl
	return sl
}

// SetOutput points every registered sub logger at w. Call this once during
// startup after deciding whether logs go to stdout, a file, or both via
// MultiWriter.
func SetOutput(w io.Writer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, sl := range registry {
		sl.mu.Lock()
		sl.output = w
		sl.mu.Unlock()
	}
}

// SetLevels applies lvl to every registered sub logger.
func SetLevels(lvl Levels) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, sl := range registry {
		sl.mu.Lock()
		sl.levels = lvl
		sl.mu.Unlock()
	}
}

func (sl *SubLogger) enabled(header string) bool {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	switch header {
	case infoHeader:
		return sl.levels.Info
	case warnHeader:
		return sl.levels.Warn
	case debugHeader:
		return sl.levels.Debug
	case errorHeader:
		return sl.levels.Error
	default:
		return false
	}
}

func (sl *SubLogger) write(header, data string) {
	if sl == nil || !sl.enabled(header) {
		return
	}
	sl.mu.RLock()
	w := sl.output
	sl.mu.RUnlock()
	line := time.Now().UTC().Format(timestampFormat) + header + spacer + sl.name + spacer + data + "\n"
	_, _ = io.WriteString(w, line)
}

// sprintln formats v with fmt.Sprintln semantics minus the trailing
// newline, which write adds itself.
func sprintln(v ...interface{}) string {
	s := fmt.Sprintln(v...)
	return s[:len(s)-1]
}

// Infoln formats its arguments with fmt.Sprintln semantics and emits them
// at info level on sl.
func Infoln(sl *SubLogger, v ...interface{}) { sl.write(infoHeader, sprintln(v...)) }

// Infof formats data per fmt.Sprintf and emits it at info level on sl.
func Infof(sl *SubLogger, data string, v ...interface{}) { sl.write(infoHeader, fmt.Sprintf(data, v...)) }

// Debugln formats its arguments with fmt.Sprintln semantics and emits them
// at debug level on sl.
func Debugln(sl *SubLogger, v ...interface{}) { sl.write(debugHeader, sprintln(v...)) }

// Debugf formats data per fmt.Sprintf and emits it at debug level on sl.
func Debugf(sl *SubLogger, data string, v ...interface{}) {
	sl.write(debugHeader, fmt.Sprintf(data, v...))
}

// Warnln formats its arguments with fmt.Sprintln semantics and emits them
// at warn level on sl.
func Warnln(sl *SubLogger, v ...interface{}) { sl.write(warnHeader, sprintln(v...)) }

// Warnf formats data per fmt.Sprintf and emits it at warn level on sl.
func Warnf(sl *SubLogger, data string, v ...interface{}) { sl.write(warnHeader, fmt.Sprintf(data, v...)) }

// Errorln formats its arguments with fmt.Sprintln semantics and emits them
// at error level on sl.
func Errorln(sl *SubLogger, v ...interface{}) { sl.write(errorHeader, sprintln(v...)) }

// Errorf formats data per fmt.Sprintf and emits it at error level on sl.
func Errorf(sl *SubLogger, data string, v ...interface{}) {
	sl.write(errorHeader, fmt.Sprintf(data, v...))
}
