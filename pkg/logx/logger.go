package logx

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// Fields is a map of structured data attached to a log entry.
type Fields map[string]interface{}

// Logger is the main logger instance
type Logger struct {
	config   *Config
	mu       sync.Mutex
	writer   io.Writer
	exitFunc func(int)
}

// NewLogger creates a new logger with the given config
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	writer := config.Output
	if writer == nil {
		writer = os.Stdout
	}

	return &Logger{
		config:   config,
		writer:   writer,
		exitFunc: os.Exit,
	}
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// log is the internal logging method
func (l *Logger) log(level Level, msg string, fields Fields, err error) {
	if !l.config.Level.Enabled(level) {
		return
	}

	var formatted []byte
	switch l.config.Format {
	case FormatJSON:
		formatted = l.formatJSON(level, msg, fields, err)
	default:
		formatted = l.formatConsole(level, msg, fields, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, writeErr := l.writer.Write(formatted); writeErr != nil {
		fmt.Fprintf(os.Stderr, "Error writing log: %v\n", writeErr)
	}
}

func (l *Logger) formatJSON(level Level, msg string, fields Fields, err error) []byte {
	data := make(map[string]interface{}, len(fields)+4)
	data["level"] = level.String()
	data["message"] = msg
	data["timestamp"] = time.Now().Format(time.RFC3339Nano)
	for k, v := range fields {
		data[k] = v
	}
	if err != nil {
		data["error"] = err.Error()
	}

	bytes, marshalErr := json.Marshal(data)
	if marshalErr != nil {
		bytes = []byte(fmt.Sprintf(`{"level":%q,"message":%q}`, level.String(), msg))
	}
	return append(bytes, '\n')
}

// ANSI colors for console output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

func (l *Logger) formatConsole(level Level, msg string, fields Fields, err error) []byte {
	ts := time.Now().Format(l.config.TimeFormat)

	levelTag := fmt.Sprintf("%-5s", level.String())
	if l.config.EnableColors {
		levelTag = levelColor(level) + levelTag + colorReset
	}

	out := fmt.Sprintf("%s %s %s", ts, levelTag, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out += fmt.Sprintf(" %s=%v", k, fields[k])
		}
	}
	if err != nil {
		out += fmt.Sprintf(" error=%q", err.Error())
	}

	return []byte(out + "\n")
}

func levelColor(level Level) string {
	switch level {
	case LevelDebug:
		return colorGray
	case LevelInfo:
		return colorBlue
	case LevelWarn:
		return colorYellow
	case LevelError, LevelFatal:
		return colorRed
	default:
		return colorReset
	}
}

// ============================================================================
// Entry — chainable field builder
// ============================================================================

// Entry allows building up log entries with multiple fields
type Entry struct {
	logger *Logger
	fields Fields
	err    error
}

func newEntry(logger *Logger) *Entry {
	return &Entry{
		logger: logger,
		fields: make(Fields),
	}
}

// WithField adds a field to the entry (chainable)
func (e *Entry) WithField(key string, value interface{}) *Entry {
	e.fields[key] = value
	return e
}

// WithFields adds multiple fields to the entry (chainable)
func (e *Entry) WithFields(fields Fields) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError adds an error field (chainable)
func (e *Entry) WithError(err error) *Entry {
	e.err = err
	return e
}

// Debug logs at debug level
func (e *Entry) Debug(msg string) { e.logger.log(LevelDebug, msg, e.fields, e.err) }

// Info logs at info level
func (e *Entry) Info(msg string) { e.logger.log(LevelInfo, msg, e.fields, e.err) }

// Warn logs at warn level
func (e *Entry) Warn(msg string) { e.logger.log(LevelWarn, msg, e.fields, e.err) }

// Error logs at error level
func (e *Entry) Error(msg string) { e.logger.log(LevelError, msg, e.fields, e.err) }

// Fatal logs at fatal level and exits
func (e *Entry) Fatal(msg string) {
	e.logger.log(LevelFatal, msg, e.fields, e.err)
	e.logger.exitFunc(1)
}
