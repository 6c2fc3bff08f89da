// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "[DEBUG] ",
	INFO:  "[INFO]  ",
	WARN:  "[WARN]  ",
	ERROR: "[ERROR] ",
}

var levelColors = map[LogLevel]string{
	DEBUG: colorGray,
	INFO:  colorReset,
	WARN:  colorYellow,
	ERROR: colorRed,
}

type Logger struct {
	console  map[LogLevel]*log.Logger
	file     map[LogLevel]*log.Logger
	handle   *os.File
	minLevel LogLevel
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.RWMutex
)

// ensureInitialized creates a default console logger if one doesn't exist
func ensureInitialized() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger == nil {
			defaultLogger = newLogger(os.Stdout, nil, INFO)
		}
	})
}

// Init initializes the logger with optional file and console output.
// If filename is empty, logs only to console.
// If console is false, logs only to file.
func Init(filename string, console bool, level LogLevel) error {
	once.Do(func() {})

	var consoleOut io.Writer
	if console {
		consoleOut = os.Stdout
	}

	var handle *os.File
	if filename != "" {
		file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		handle = file
	}

	if consoleOut == nil && handle == nil {
		return fmt.Errorf("no output destination specified")
	}

	l := newLogger(consoleOut, handle, level)

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil && defaultLogger.handle != nil {
		defaultLogger.handle.Close()
	}
	defaultLogger = l
	return nil
}

// InitWriter points the logger at an arbitrary writer without colors. Used by tests.
func InitWriter(w io.Writer, level LogLevel) {
	once.Do(func() {})
	l := &Logger{minLevel: level, file: buildLoggers(w, false)}
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

func newLogger(consoleOut io.Writer, handle *os.File, level LogLevel) *Logger {
	l := &Logger{handle: handle, minLevel: level}
	if consoleOut != nil {
		l.console = buildLoggers(consoleOut, useColor(consoleOut))
	}
	if handle != nil {
		l.file = buildLoggers(handle, false)
	}
	return l
}

func buildLoggers(w io.Writer, color bool) map[LogLevel]*log.Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	loggers := make(map[LogLevel]*log.Logger, len(levelNames))
	for level, name := range levelNames {
		prefix := name
		if color {
			prefix = levelColors[level] + name + colorReset
		}
		loggers[level] = log.New(w, prefix, flags)
	}
	return loggers
}

// useColor enables ANSI colors only when writing to a terminal
func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ParseLevel converts a config string into a LogLevel, defaulting to INFO
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// SetLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
// Messages below this level will not be logged
func SetLevel(level LogLevel) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel = level
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.handle != nil {
		defaultLogger.handle.Close()
		defaultLogger.handle = nil
		defaultLogger.file = nil
	}
}

func output(level LogLevel, msg string) {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()

	l := defaultLogger
	if level < l.minLevel {
		return
	}
	if lg := l.console[level]; lg != nil {
		lg.Output(3, msg)
	}
	if lg := l.file[level]; lg != nil {
		lg.Output(3, msg)
	}
}

// Debug logs a debug message
func Debug(v ...interface{}) {
	output(DEBUG, fmt.Sprint(v...))
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) {
	output(DEBUG, fmt.Sprintf(format, v...))
}

// Info logs an info message
func Info(v ...interface{}) {
	output(INFO, fmt.Sprint(v...))
}

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) {
	output(INFO, fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func Warn(v ...interface{}) {
	output(WARN, fmt.Sprint(v...))
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) {
	output(WARN, fmt.Sprintf(format, v...))
}

// Error logs an error message
func Error(v ...interface{}) {
	output(ERROR, fmt.Sprint(v...))
}

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) {
	output(ERROR, fmt.Sprintf(format, v...))
}

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	output(ERROR, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	output(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}
