// Package logging provides simple leveled logging for go-zbc.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config holds logging configuration.
type Config struct {
	Level   LogLevel
	Format  string // "text" (default) or "json"
	Output  io.Writer
	Sync    bool
	NoColor bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// Logger wraps stdlib log with level support and chainable context
// fields (device id, operation name) that are appended to every line
// after the message.
type Logger struct {
	out    io.Writer
	logger *log.Logger
	level  LogLevel
	format string
	mu     *sync.Mutex

	fields []field
}

type field struct {
	key string
	val any
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// NewLogger creates a new logger from config. A nil config is replaced
// by DefaultConfig, a nil Output by os.Stderr and an empty Format by
// "text"; Level is used as given, so a zero Level means LevelDebug.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		out:    output,
		logger: log.New(output, "", log.LstdFlags),
		level:  config.Level,
		format: format,
		mu:     &sync.Mutex{},
	}
}

// Default returns the process default logger, creating it on first use.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault installs logger as the process default. Log level is
// process-wide and set once at startup; there is no per-call log
// configuration.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

func (l *Logger) clone() *Logger {
	cp := *l
	cp.fields = append([]field(nil), l.fields...)
	return &cp
}

// WithDevice returns a derived logger that tags every line with the
// device id, for tracing a single open handle's command stream.
func (l *Logger) WithDevice(devID uint32) *Logger {
	cp := l.clone()
	cp.fields = append(cp.fields, field{"device_id", devID})
	return cp
}

// WithOp returns a derived logger tagged with the operation name
// currently in flight (e.g. "REPORT_ZONES", "ZONE_ACTIVATE").
func (l *Logger) WithOp(op string) *Logger {
	cp := l.clone()
	cp.fields = append(cp.fields, field{"op", op})
	return cp
}

// WithQueue tags a logger with a worker index. ZBC has no hardware
// queue concept, but callers that fan I/O out across goroutines may
// use this to correlate log lines back to one worker.
func (l *Logger) WithQueue(id int) *Logger {
	cp := l.clone()
	cp.fields = append(cp.fields, field{"queue_id", id})
	return cp
}

// WithRequest tags a logger with a sequence number and operation name,
// used to correlate split sub-commands back to the caller's request.
func (l *Logger) WithRequest(tag int, op string) *Logger {
	cp := l.clone()
	cp.fields = append(cp.fields, field{"tag", tag}, field{"op", op})
	return cp
}

// WithError returns a derived logger carrying an error field.
func (l *Logger) WithError(err error) *Logger {
	cp := l.clone()
	cp.fields = append(cp.fields, field{"error", err})
	return cp
}

func formatArgsText(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", args[i], args[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

func (l *Logger) allArgs(args []any) []any {
	if len(l.fields) == 0 {
		return args
	}
	out := make([]any, 0, len(l.fields)*2+len(args))
	for _, f := range l.fields {
		out = append(out, f.key, f.val)
	}
	return append(out, args...)
}

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}
	all := l.allArgs(args)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.format == "json" {
		l.logJSON(level, msg, all)
		return
	}
	l.logger.Printf("%s %s%s", prefix, msg, formatArgsText(all))
}

func (l *Logger) logJSON(level LogLevel, msg string, args []any) {
	rec := map[string]any{
		"time":  time.Now().Format(time.RFC3339Nano),
		"level": level.String(),
		"msg":   msg,
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		rec[key] = fmt.Sprintf("%v", args[i+1])
	}
	enc := json.NewEncoder(l.out)
	_ = enc.Encode(rec)
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, "[DEBUG]", msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, "[INFO]", msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, "[WARN]", msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, "[ERROR]", msg, args...) }

// Debugf/Infof/Warnf/Errorf are printf-style variants used by callers
// that already have a formatted string (e.g. hex-dumping a CDB).
func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf exists for compatibility with callers that only know the
// stdlib Printf-style Logger interface.
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions operating on the process default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
