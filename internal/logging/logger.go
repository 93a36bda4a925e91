// Package logging provides structured logging with file and console output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ZerologLevel maps a LogLevel onto zerolog; unknown values mean debug.
func (l LogLevel) ZerologLevel() zerolog.Level {
	switch l {
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.DebugLevel
	}
}

// LogEntry is one line kept in the in-memory history.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
}

// Logger wraps zerolog with optional file output and a bounded log history
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
	mu      sync.RWMutex
	history []LogEntry
	maxHist int
	onLog   func(LogEntry)
}

// Config holds logger configuration
type Config struct {
	LogDir     string    // Directory for log files; empty disables file output
	Level      LogLevel  // Minimum log level (default: debug)
	MaxHistory int       // Max entries to keep in memory (default: 1000)
	Console    bool      // Also log to console (default: true)
	Output     io.Writer // Console destination, stdout when nil
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:     filepath.Join(home, ".cortexlipsync", "logs"),
		Level:      LevelInfo,
		MaxHistory: 1000,
		Console:    true,
	}
}

// New creates a new Logger
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 1000
	}

	var writers []io.Writer
	logger := &Logger{
		history: make([]LogEntry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		logFileName := fmt.Sprintf("cortexlipsync_%s.log", time.Now().Format("2006-01-02"))
		logger.logPath = filepath.Join(cfg.LogDir, logFileName)

		file, err := os.OpenFile(logger.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.file = file
		writers = append(writers, file)
	}

	if cfg.Console {
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			NoColor:    cfg.Output != nil,
		})
	}

	var sink io.Writer = io.Discard
	if len(writers) > 0 {
		sink = io.MultiWriter(writers...)
	}

	logger.zlog = zerolog.New(sink).
		Level(cfg.Level.ZerologLevel()).
		With().
		Timestamp().
		Str("app", "cortexlipsync").
		Logger()

	logger.Info("logging", "Logger initialized", map[string]interface{}{
		"logFile": logger.logPath,
		"level":   string(cfg.Level),
	})

	return logger, nil
}

// SetOnLog sets a callback for real-time log streaming
func (l *Logger) SetOnLog(fn func(LogEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLog = fn
}

func (l *Logger) addToHistory(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}

	if l.onLog != nil {
		go l.onLog(entry)
	}
}

// GetHistory returns up to limit of the most recent entries, oldest first
func (l *Logger) GetHistory(limit int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}

	result := make([]LogEntry, limit)
	copy(result, l.history[len(l.history)-limit:])
	return result
}

// GetLogPath returns the current log file path, empty without file output
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	l.Info("logging", "Logger shutting down", nil)
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// formatData renders data as sorted key=value pairs
func formatData(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, ", ")
}

func (l *Logger) log(event *zerolog.Event, level, component, msg string, data map[string]interface{}, extra string) {
	if !event.Enabled() {
		return
	}
	event = event.Str("component", component)
	for k, v := range data {
		event = event.Interface(k, v)
	}
	event.Msg(msg)

	d := formatData(data)
	if extra != "" {
		if d != "" {
			d += " "
		}
		d += extra
	}

	l.addToHistory(LogEntry{
		Timestamp: time.Now().Format("15:04:05.000"),
		Level:     level,
		Component: component,
		Message:   msg,
		Data:      d,
	})
}

// Debug logs a debug message
func (l *Logger) Debug(component, msg string, data map[string]interface{}) {
	l.log(l.zlog.Debug(), "debug", component, msg, data, "")
}

// Info logs an info message
func (l *Logger) Info(component, msg string, data map[string]interface{}) {
	l.log(l.zlog.Info(), "info", component, msg, data, "")
}

// Warn logs a warning message
func (l *Logger) Warn(component, msg string, data map[string]interface{}) {
	l.log(l.zlog.Warn(), "warn", component, msg, data, "")
}

// Error logs an error message
func (l *Logger) Error(component, msg string, err error, data map[string]interface{}) {
	event := l.zlog.Error()
	extra := ""
	if err != nil {
		event = event.Err(err)
		extra = "error=" + err.Error()
	}
	l.log(event, "error", component, msg, data, extra)
}

// Component returns a zerolog.Logger with the component field set
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
