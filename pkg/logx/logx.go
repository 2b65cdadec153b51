// Package logx provides leveled logging with per-component prefixes and domain-filtered debug output.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger writes lines of the form "[ts] [component] LEVEL: message".
type Logger struct {
	component string
}

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Domains map[string]bool // Which domains to enable debug for (nil = all)
	Enabled bool
}

//nolint:gochecknoglobals // process-wide logging sinks
var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	minLevel   = LevelInfo
	levelMutex sync.RWMutex

	// logWriter overrides the default stderr/file sink. Tests swap it.
	logWriter     io.Writer
	logWriterLock sync.Mutex

	logFile     *os.File
	logFileTee  bool
	logFileLock sync.Mutex
)

func init() { //nolint:gochecknoinits // Required for env var initialization
	initFromEnv()
}

// initFromEnv reads TAROT_LOG_LEVEL, TAROT_DEBUG and TAROT_DEBUG_DOMAINS.
func initFromEnv() {
	if lvl := os.Getenv("TAROT_LOG_LEVEL"); lvl != "" {
		SetLevel(ParseLevel(lvl))
	}

	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("TAROT_DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	// TAROT_DEBUG_DOMAINS=llm,dialogue
	if domains := os.Getenv("TAROT_DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// ParseLevel maps a case-insensitive level name to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func levelRank(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// SetLevel sets the global minimum level. DEBUG also enables debug output for all domains.
func SetLevel(l Level) {
	levelMutex.Lock()
	minLevel = l
	levelMutex.Unlock()

	if l == LevelDebug {
		debugMutex.Lock()
		debugConfig.Enabled = true
		debugMutex.Unlock()
	}
}

func enabled(l Level) bool {
	levelMutex.RLock()
	defer levelMutex.RUnlock()
	return levelRank(l) >= levelRank(minLevel)
}

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// SetDebugDomains configures which domains should have debug logging enabled.
func SetDebugDomains(enable bool, domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enable
	if len(domains) == 0 {
		debugConfig.Domains = nil // Enable all domains
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, domain := range domains {
		debugConfig.Domains[strings.TrimSpace(domain)] = true
	}
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// InitializeLogFile opens dir/tarotbot.log for appending. With tee the lines also go to stderr.
func InitializeLogFile(dir string, tee bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "tarotbot.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFileLock.Lock()
	defer logFileLock.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	logFileTee = tee
	return nil
}

// CloseLogFile closes the log file opened by InitializeLogFile, if any.
func CloseLogFile() error {
	logFileLock.Lock()
	defer logFileLock.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func writeLine(line string) {
	logWriterLock.Lock()
	w := logWriter
	logWriterLock.Unlock()
	if w != nil {
		fmt.Fprintln(w, line)
		return
	}

	logFileLock.Lock()
	defer logFileLock.Unlock()
	if logFile != nil {
		fmt.Fprintln(logFile, line)
		if !logFileTee {
			return
		}
	}
	fmt.Fprintln(os.Stderr, line)
}

func (l *Logger) log(level Level, format string, args ...any) {
	if !enabled(level) {
		return
	}
	timestamp := time.Now().UTC().Format(timestampFormat)
	message := fmt.Sprintf(format, args...)
	writeLine(fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.component, level, message))
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabledForDomain(l.component) && !enabled(LevelDebug) {
		return
	}
	timestamp := time.Now().UTC().Format(timestampFormat)
	writeLine(fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.component, LevelDebug, fmt.Sprintf(format, args...)))
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Component returns the component tag of this logger.
func (l *Logger) Component() string {
	return l.component
}

// With returns a logger for a sub-component, e.g. "dialogue" -> "dialogue/12345".
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: l.component + "/" + sub}
}

type ctxKey struct{}

// WithChat stores a chat identifier used by Debug to tag lines.
func WithChat(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, chatID)
}

// ChatFrom returns the chat identifier stored by WithChat.
func ChatFrom(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}

// Debug logs a debug message with context and domain filtering.
//
//	logx.Debug(ctx, "llm", "stage %s: %d messages", stage, n)
//
// Environment variable control:
//
//	TAROT_DEBUG=1                             # Enable debug for all domains
//	TAROT_DEBUG=1 TAROT_DEBUG_DOMAINS=llm     # Enable debug only for llm domain
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}

	chat := "-"
	if id, ok := ChatFrom(ctx); ok {
		chat = fmt.Sprintf("%d", id)
	}

	timestamp := time.Now().UTC().Format(timestampFormat)
	writeLine(fmt.Sprintf("[%s] [%s] %s: [%s] %s", timestamp, chat, LevelDebug, domain, fmt.Sprintf(format, args...)))
}

// Global logging functions for convenience.
var defaultLogger = NewLogger("system") //nolint:gochecknoglobals

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
