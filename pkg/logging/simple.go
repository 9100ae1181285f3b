package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
)

// Colored labels for the plain-text sink used by the CLI wrapper when no
// richer logr backend is configured.
var (
	infoColor  = color.New(color.FgGreen).SprintFunc()
	debugColor = color.New(color.FgCyan).SprintFunc()
	traceColor = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
)

// SimpleLogSink is a logr.LogSink that writes human-readable lines, with or
// without ANSI color, to an io.Writer. It exists so fsago (and archive-info)
// can print progress without pulling in a full structured-logging backend.
type SimpleLogSink struct {
	writer       io.Writer
	minVerbosity int
	name         string
	keyValues    []interface{}
	mutex        *sync.Mutex
	callDepth    int
	useColor     bool
}

// NewSimpleLogSink builds a SimpleLogSink. A nil writer defaults to
// os.Stdout.
func NewSimpleLogSink(writer io.Writer, minVerbosity int, useColor bool) *SimpleLogSink {
	if writer == nil {
		writer = os.Stdout
	}
	return &SimpleLogSink{
		writer:       writer,
		minVerbosity: minVerbosity,
		keyValues:    []interface{}{},
		mutex:        &sync.Mutex{},
		useColor:     useColor,
	}
}

func (s *SimpleLogSink) Init(info logr.RuntimeInfo) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.callDepth = info.CallDepth
}

func (s *SimpleLogSink) Enabled(level int) bool {
	return level <= s.minVerbosity
}

func (s *SimpleLogSink) Info(level int, msg string, keysAndValues ...interface{}) {
	if !s.Enabled(level) {
		return
	}
	s.log(false, level, msg, keysAndValues...)
}

func (s *SimpleLogSink) Error(err error, msg string, keysAndValues ...interface{}) {
	allKeysAndValues := append(append([]interface{}{}, keysAndValues...), "error", err)
	s.log(true, 0, msg, allKeysAndValues...)
}

func (s *SimpleLogSink) WithValues(keysAndValues ...interface{}) logr.LogSink {
	newKeyValues := append(append([]interface{}{}, s.keyValues...), keysAndValues...)
	return &SimpleLogSink{
		writer:       s.writer,
		minVerbosity: s.minVerbosity,
		name:         s.name,
		keyValues:    newKeyValues,
		mutex:        s.mutex,
		useColor:     s.useColor,
	}
}

func (s *SimpleLogSink) WithName(name string) logr.LogSink {
	newName := name
	if s.name != "" {
		newName = fmt.Sprintf("%s.%s", s.name, name)
	}
	return &SimpleLogSink{
		writer:       s.writer,
		minVerbosity: s.minVerbosity,
		name:         newName,
		keyValues:    append([]interface{}{}, s.keyValues...),
		mutex:        s.mutex,
		useColor:     s.useColor,
	}
}

func (s *SimpleLogSink) V(level int) logr.LogSink {
	return &SimpleLogSink{
		writer:       s.writer,
		minVerbosity: s.minVerbosity,
		name:         s.name,
		keyValues:    append([]interface{}{}, s.keyValues...),
		mutex:        s.mutex,
		useColor:     s.useColor,
	}
}

func (s *SimpleLogSink) log(isError bool, level int, msg string, keysAndValues ...interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var label string
	switch {
	case isError:
		label = s.paint(errorColor, "[ERROR]")
	case level == LEVEL_DEBUG:
		label = s.paint(debugColor, "[DEBUG]")
	case level == LEVEL_TRACE:
		label = s.paint(traceColor, "[TRACE]")
	case level == LEVEL_INFO:
		label = s.paint(infoColor, "[INFO]")
	default:
		label = fmt.Sprintf("[LEVEL %d]", level)
	}

	fullMsg := msg
	if s.name != "" {
		fullMsg = fmt.Sprintf("[%s] %s", s.name, msg)
	}
	fmt.Fprintf(s.writer, "%s %s\n", label, fullMsg)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("key%d", i/2)
		}
		fmt.Fprintf(s.writer, "  %s: %v\n", key, keysAndValues[i+1])
	}
}

func (s *SimpleLogSink) paint(f func(a ...interface{}) string, text string) string {
	if !s.useColor {
		return text
	}
	return f(text)
}

// NewSimpleLogger wraps a SimpleLogSink in a logr.Logger.
func NewSimpleLogger(writer io.Writer, minVerbosity int, useColor bool) logr.Logger {
	return logr.New(NewSimpleLogSink(writer, minVerbosity, useColor))
}
