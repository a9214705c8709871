// Package logger provides a structured, level-filtered logging interface with
// zerolog-backed, no-op, and recording implementations. Message arguments are
// lazy (func() string) so that formatting work for a disabled level — hex/ascii
// packet peeks in particular — is never paid unless the level is enabled.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Level is a logging severity, ordered Verbose < Debug < Info < Warn < Error.
type Level int

const (
	LevelVerbose Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns a human-readable name for the level.
func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
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

// Field represents a key-value pair for structured log output.
// Use Fields with Logger methods to attach contextual data to log entries.
type Field struct {
	Key   string
	Value any
}

// Reserved field keys carrying the optional tag/logFull/target-set metadata
// a log entry may declare. Implementations that care about routing (e.g. a
// future multi-sink logger) can read these back out of the field list instead
// of requiring a second parameter-passing mechanism on every Logger method.
const (
	fieldKeyTag     = "tag"
	fieldKeyLogFull = "logFull"
	fieldKeyTargets = "targets"
)

// TagField attaches a component tag to a log entry.
func TagField(tag string) Field { return Field{Key: fieldKeyTag, Value: tag} }

// LogFullField marks whether the full (untruncated) payload should be rendered.
func LogFullField(full bool) Field { return Field{Key: fieldKeyLogFull, Value: full} }

// TargetsField restricts an entry to a named subset of log destinations.
func TargetsField(targets ...string) Field { return Field{Key: fieldKeyTargets, Value: targets} }

// Logger is a structured, level-filtered log sink. Message producers are only
// invoked if the corresponding level is enabled, so callers may build
// expensive diagnostic strings (packet peeks, dispatch summaries) inline
// without a separate "is this level enabled" check at every call site.
type Logger interface {
	// Verbose logs at the lowest severity, used for noisy per-packet framing
	// diagnostics (format verify failures, ambiguity details).
	Verbose(msg func() string, fields ...Field)

	// Debug logs development-time diagnostics (receive records, durations).
	Debug(msg func() string, fields ...Field)

	// Info logs routine operational events (command input, session issuance).
	Info(msg func() string, fields ...Field)

	// Warn logs recoverable anomalies (ambiguous decode, unknown message type).
	Warn(msg func() string, fields ...Field)

	// Error logs failures that were caught and contained.
	Error(msg func() string, fields ...Field)

	// Enabled reports whether the given level would actually be emitted,
	// letting a caller skip building fields entirely for disabled levels.
	Enabled(level Level) bool

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The original Logger is unchanged.
	With(fields ...Field) Logger

	// GetLoggerInstance returns the underlying logger implementation (e.g.
	// zerolog.Logger) for advanced configuration or integration.
	GetLoggerInstance() interface{}

	// Close releases resources held by the logger (e.g. file handles).
	// It is safe to call multiple times.
	Close() error
}

// zerologLogger is the zerolog-based implementation of Logger.
type zerologLogger struct {
	logger         zerolog.Logger
	level          zerolog.Level
	fileWriter     *DailyFileWriter
	ownsFileWriter bool
}

// NewZerolog builds a Logger that wraps the given zerolog.Logger, adding a
// service name and timestamp to all entries and filtering by level. Output
// goes only to the provided logger (e.g. stdout); no file is created.
func NewZerolog(l zerolog.Logger, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger:         l.With().Str("service", serviceName).Timestamp().Logger().Level(level),
		level:          level,
		ownsFileWriter: false,
	}
}

// NewZerologFile creates a Logger that writes to both stdout and daily-rotated
// log files in logDir. Log files are named {serviceName}_{date}.log. Panics if
// logDir cannot be created or the initial file writer cannot be set up.
func NewZerologFile(serviceName string, logDir string, level zerolog.Level) Logger {
	err := os.MkdirAll(logDir, 0755)
	if err != nil {
		panic(fmt.Errorf("failed to create log directory: %w", err))
	}

	fileWriter, err := NewDailyFileWriter(serviceName, logDir)
	if err != nil {
		panic(fmt.Errorf("failed to create file writer: %w", err))
	}

	multi := io.MultiWriter(os.Stdout, fileWriter)
	return &zerologLogger{
		logger:         zerolog.New(multi).With().Str("service", serviceName).Timestamp().Logger().Level(level),
		level:          level,
		fileWriter:     fileWriter,
		ownsFileWriter: true,
	}
}

func toZerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelVerbose:
		return zerolog.TraceLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *zerologLogger) Enabled(level Level) bool {
	return toZerologLevel(level) >= z.level
}

func (z *zerologLogger) log(level Level, msg func() string, fields []Field) {
	if !z.Enabled(level) {
		return
	}

	var ev *zerolog.Event
	switch level {
	case LevelVerbose:
		ev = z.logger.Trace()
	case LevelDebug:
		ev = z.logger.Debug()
	case LevelInfo:
		ev = z.logger.Info()
	case LevelWarn:
		ev = z.logger.Warn()
	default:
		ev = z.logger.Error()
	}

	ev.Fields(toMap(fields)).Msg(msg())
}

// Verbose implements Logger.
func (z *zerologLogger) Verbose(msg func() string, fields ...Field) { z.log(LevelVerbose, msg, fields) }

// Debug implements Logger.
func (z *zerologLogger) Debug(msg func() string, fields ...Field) { z.log(LevelDebug, msg, fields) }

// Info implements Logger.
func (z *zerologLogger) Info(msg func() string, fields ...Field) { z.log(LevelInfo, msg, fields) }

// Warn implements Logger.
func (z *zerologLogger) Warn(msg func() string, fields ...Field) { z.log(LevelWarn, msg, fields) }

// Error implements Logger.
func (z *zerologLogger) Error(msg func() string, fields ...Field) { z.log(LevelError, msg, fields) }

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger:         z.logger.With().Fields(toMap(fields)).Logger(),
		level:          z.level,
		fileWriter:     z.fileWriter,
		ownsFileWriter: false,
	}
}

// GetLoggerInstance implements Logger.
func (z *zerologLogger) GetLoggerInstance() interface{} {
	return z.logger
}

// toMap converts a slice of Field into a map for zerolog.
func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}

// Close implements Logger.
func (z *zerologLogger) Close() error {
	if z.fileWriter != nil && z.ownsFileWriter {
		return z.fileWriter.Close()
	}

	return nil
}

// Noop is a Logger that discards every entry. Useful as a default collaborator
// in components and tests that don't care about log output.
type Noop struct{}

func (Noop) Verbose(msg func() string, fields ...Field) {}
func (Noop) Debug(msg func() string, fields ...Field)   {}
func (Noop) Info(msg func() string, fields ...Field)    {}
func (Noop) Warn(msg func() string, fields ...Field)    {}
func (Noop) Error(msg func() string, fields ...Field)   {}
func (Noop) Enabled(level Level) bool                   { return false }
func (Noop) With(fields ...Field) Logger                { return Noop{} }
func (Noop) GetLoggerInstance() interface{}             { return nil }
func (Noop) Close() error                               { return nil }

// Entry is one captured log line, recorded by Recording for test assertions.
type Entry struct {
	Level  Level
	Msg    string
	Fields []Field
}

// Recording is a Logger that captures every entry in memory instead of
// writing it anywhere. Used by tests that need to assert a particular
// warning or error was (or was not) logged.
type Recording struct {
	mu      sync.Mutex
	entries []Entry
	base    []Field
}

// NewRecording returns an empty Recording logger.
func NewRecording() *Recording {
	return &Recording{}
}

func (r *Recording) record(level Level, msg func() string, fields []Field) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]Field, 0, len(r.base)+len(fields))
	all = append(all, r.base...)
	all = append(all, fields...)
	r.entries = append(r.entries, Entry{Level: level, Msg: msg(), Fields: all})
}

func (r *Recording) Verbose(msg func() string, fields ...Field) { r.record(LevelVerbose, msg, fields) }
func (r *Recording) Debug(msg func() string, fields ...Field)   { r.record(LevelDebug, msg, fields) }
func (r *Recording) Info(msg func() string, fields ...Field)    { r.record(LevelInfo, msg, fields) }
func (r *Recording) Warn(msg func() string, fields ...Field)    { r.record(LevelWarn, msg, fields) }
func (r *Recording) Error(msg func() string, fields ...Field)   { r.record(LevelError, msg, fields) }
func (r *Recording) Enabled(level Level) bool                   { return true }

// With returns a logger that funnels into the same recorded entry list as r,
// so assertions against the root Recording see entries from derived loggers.
func (r *Recording) With(fields ...Field) Logger {
	return &sharedRecording{parent: r, extra: fields}
}

func (r *Recording) GetLoggerInstance() interface{} { return r }
func (r *Recording) Close() error                   { return nil }

// Entries returns a snapshot of every entry recorded so far.
func (r *Recording) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// HasEntry reports whether any recorded entry at the given level has a
// message containing substr.
func (r *Recording) HasEntry(level Level, substr string) bool {
	for _, e := range r.Entries() {
		if e.Level == level && containsSubstring(e.Msg, substr) {
			return true
		}
	}
	return false
}

func containsSubstring(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m > n {
		return -1
	}
	for i := 0; i <= n-m; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

// sharedRecording forwards entries to a parent Recording while prepending
// fields attached via With, so that every derived logger still funnels into
// one place a test can inspect.
type sharedRecording struct {
	parent *Recording
	extra  []Field
}

func (s *sharedRecording) Verbose(msg func() string, fields ...Field) {
	s.parent.record(LevelVerbose, msg, append(append([]Field{}, s.extra...), fields...))
}
func (s *sharedRecording) Debug(msg func() string, fields ...Field) {
	s.parent.record(LevelDebug, msg, append(append([]Field{}, s.extra...), fields...))
}
func (s *sharedRecording) Info(msg func() string, fields ...Field) {
	s.parent.record(LevelInfo, msg, append(append([]Field{}, s.extra...), fields...))
}
func (s *sharedRecording) Warn(msg func() string, fields ...Field) {
	s.parent.record(LevelWarn, msg, append(append([]Field{}, s.extra...), fields...))
}
func (s *sharedRecording) Error(msg func() string, fields ...Field) {
	s.parent.record(LevelError, msg, append(append([]Field{}, s.extra...), fields...))
}
func (s *sharedRecording) Enabled(level Level) bool { return true }
func (s *sharedRecording) With(fields ...Field) Logger {
	return &sharedRecording{parent: s.parent, extra: append(append([]Field{}, s.extra...), fields...)}
}
func (s *sharedRecording) GetLoggerInstance() interface{} { return s.parent }
func (s *sharedRecording) Close() error                   { return nil }

// DailyFileWriter is an io.Writer that writes to a log file that rotates
// daily. File names are {service}_{date}.log. Rotation happens automatically
// on the first write of a new day; a background goroutine also checks
// hourly. Safe for concurrent use.
type DailyFileWriter struct {
	service    string
	dir        string
	mu         sync.RWMutex
	file       *os.File
	currDate   string
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closed     int32
	lastRotate time.Time
}

// NewDailyFileWriter creates a DailyFileWriter that writes to the given
// directory with files named {service}_{date}.log. The directory is not
// created by this function; callers must ensure it exists.
func NewDailyFileWriter(service string, logDir string) (*DailyFileWriter, error) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &DailyFileWriter{
		service: service,
		dir:     logDir,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := w.rotate(); err != nil {
		cancel()
		return nil, fmt.Errorf("initial rotation failed: %w", err)
	}

	w.wg.Add(1)
	go w.autoRotate()
	return w, nil
}

// Close stops the background rotator and closes the current log file.
// Subsequent writes return an error. It is safe to call multiple times.
func (w *DailyFileWriter) Close() error {
	if !atomic.CompareAndSwapInt32(&w.closed, 0, 1) {
		return nil
	}

	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}

	return nil
}

// autoRotate runs in a goroutine and performs hourly rotation checks.
func (w *DailyFileWriter) autoRotate() {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(&w.closed) == 1 {
				return
			}

			w.mu.Lock()
			_ = w.rotateInternal()
			w.mu.Unlock()
		}
	}
}

// rotate switches to a new log file if the date has changed. It is safe to call concurrently.
func (w *DailyFileWriter) rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateInternal()
}

// rotateInternal performs the actual file rotation; caller must hold w.mu.
func (w *DailyFileWriter) rotateInternal() error {
	if atomic.LoadInt32(&w.closed) == 1 {
		return fmt.Errorf("writer is closed")
	}

	now := time.Now()
	date := now.Format("2006-01-02")

	if date == w.currDate && w.file != nil &&
		now.Sub(w.lastRotate) < time.Minute {
		return nil
	}

	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	filename := filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, date))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", filename, err)
	}

	w.file = file
	w.currDate = date
	w.lastRotate = now
	return nil
}

// Write implements io.Writer. It rotates to a new file when the date changes
// and writes p to the current log file.
func (w *DailyFileWriter) Write(p []byte) (int, error) {
	if atomic.LoadInt32(&w.closed) == 1 {
		return 0, fmt.Errorf("writer is closed")
	}

	w.mu.RLock()
	needsRotation := w.needsRotation()
	currentFile := w.file
	w.mu.RUnlock()

	if needsRotation {
		w.mu.Lock()
		if w.needsRotation() {
			if err := w.rotateInternal(); err != nil {
				w.mu.Unlock()
				return 0, fmt.Errorf("rotation failed: %w", err)
			}
		}

		currentFile = w.file
		w.mu.Unlock()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.file == nil {
		return 0, fmt.Errorf("log file is not open")
	}

	if w.file != currentFile {
		currentFile = w.file
	}

	return currentFile.Write(p)
}

// needsRotation reports whether the log file should be rotated (e.g. new day).
func (w *DailyFileWriter) needsRotation() bool {
	if w.file == nil {
		return true
	}

	date := time.Now().Format("2006-01-02")
	return date != w.currDate
}

// ForceRotate closes the current log file and opens a new one for the current date.
// It does nothing if the file for the current date is open and the last
// rotation was less than a minute ago. Useful for external rotation triggers
// (e.g. SIGHUP).
func (w *DailyFileWriter) ForceRotate() error {
	return w.rotate()
}

// CurrentLogFile returns the full path of the log file currently being written to.
// Returns an empty string if no file is open.
func (w *DailyFileWriter) CurrentLogFile() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.file == nil {
		return ""
	}

	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, w.currDate))
}
