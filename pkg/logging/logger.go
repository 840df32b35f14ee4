package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// BaseDir is where file loggers write when it is writable
const BaseDir = "/var/log/edgecap"

// Logger provides structured logging with file output support
type Logger struct {
	zl         zerolog.Logger
	level      Level
	jsonFormat bool
	output     io.Writer
	fields     map[string]interface{}
	logFile    *fileSink
	component  string
}

// fileSink is shared by a file logger and every child made with WithField,
// so a rotation is seen by all of them.
type fileSink struct {
	mu sync.Mutex
	f  *os.File
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Write(p)
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// rotate renames the file once it is larger than maxSize and reopens the path
func (s *fileSink) rotate(maxSize int64, now time.Time) (backupPath string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() <= maxSize {
		return "", nil
	}

	path := s.f.Name()
	backupPath = path + "." + now.Format("20060102-150405")
	if err := os.Rename(path, backupPath); err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// Writes continue to the renamed file
		return "", err
	}
	s.f.Close()
	s.f = f
	return backupPath, nil
}

// NewLogger creates a new logger writing to stdout
func NewLogger(level Level, jsonFormat bool) *Logger {
	l := &Logger{
		level:      level,
		jsonFormat: jsonFormat,
		output:     os.Stdout,
		fields:     make(map[string]interface{}),
	}
	l.rebuild()
	return l
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	l := &Logger{
		level:  FATAL + 1,
		output: io.Discard,
		fields: make(map[string]interface{}),
	}
	l.zl = zerolog.Nop()
	return l
}

// NewFileLogger creates a logger that writes to /var/log/edgecap/<component>/<subcomponent>.log
// Falls back to ./logs/<component>/ if /var/log is not writable
func NewFileLogger(component, subComponent string, level Level, jsonFormat bool) (*Logger, error) {
	l, err := OpenFileLogger(GetLogPath(component, subComponent), level, jsonFormat)
	if err != nil {
		return nil, err
	}
	l.component = component + "/" + subComponent
	return l, nil
}

// OpenFileLogger creates a logger that appends to path and stdout
func OpenFileLogger(path string, level Level, jsonFormat bool) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	sink := &fileSink{f: f}
	l := &Logger{
		level:      level,
		jsonFormat: jsonFormat,
		output:     io.MultiWriter(sink, os.Stdout),
		fields:     make(map[string]interface{}),
		logFile:    sink,
	}
	l.rebuild()

	l.Debug("Logger initialized", map[string]interface{}{"path": path})
	return l, nil
}

func (l *Logger) rebuild() {
	w := l.output
	if !l.jsonFormat {
		w = zerolog.ConsoleWriter{Out: l.output, TimeFormat: "2006-01-02 15:04:05", NoColor: true}
	}
	ctx := zerolog.New(w).Level(l.level.zerolog()).With().Timestamp()
	if len(l.fields) > 0 {
		ctx = ctx.Fields(l.fields)
	}
	l.zl = ctx.Logger()
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.rebuild()
}

func (l *Logger) log(level Level, message string, fields []map[string]interface{}) {
	if level < l.level {
		return
	}

	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = l.zl.Debug()
	case WARN:
		ev = l.zl.Warn()
	case ERROR:
		ev = l.zl.Error()
	case FATAL:
		// zerolog's Fatal exits; keep the exit explicit below
		ev = l.zl.WithLevel(zerolog.FatalLevel)
	default:
		ev = l.zl.Info()
	}
	for _, f := range fields {
		ev = ev.Fields(f)
	}
	ev.Msg(message)

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, fields)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, fields)
}

// Fatal logs a fatal message and exits. Library code never calls it.
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(FATAL, message, fields)
}

// Enabled reports whether messages at level are written
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value

	child := &Logger{
		level:      l.level,
		jsonFormat: l.jsonFormat,
		output:     l.output,
		fields:     newFields,
		component:  l.component,
	}
	if l.level > FATAL {
		child.zl = zerolog.Nop()
		return child
	}
	child.rebuild()
	return child
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	if l.logFile != nil {
		l.Info("Logger closing")
		return l.logFile.Close()
	}
	return nil
}

// RotateIfNeeded moves the log file aside once it exceeds maxSize bytes.
// It is a no-op for loggers without a file.
func (l *Logger) RotateIfNeeded(maxSize int64) error {
	if l.logFile == nil || maxSize <= 0 {
		return nil
	}

	backupPath, err := l.logFile.rotate(maxSize, time.Now())
	if err != nil {
		return fmt.Errorf("failed to rotate log: %w", err)
	}
	if backupPath != "" {
		l.Info("Log rotated", map[string]interface{}{"backup": backupPath})
	}
	return nil
}

// isWritable checks if directory is writable
func isWritable(path string) bool {
	if err := os.MkdirAll(path, 0755); err != nil {
		return false
	}

	testFile := filepath.Join(path, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(testFile)
	return true
}

// GetLogPath returns the expected log path for a component
func GetLogPath(component, subComponent string) string {
	baseDir := BaseDir
	if !isWritable(baseDir) {
		baseDir = "./logs"
	}

	logFileName := component + ".log"
	if subComponent != "" {
		logFileName = subComponent + ".log"
	}

	return filepath.Join(baseDir, component, logFileName)
}
