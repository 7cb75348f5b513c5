package logs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Level string

const (
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
	DEBUG Level = "DEBUG"
)

// levelPriority defines the priority of each log level
// higher value = more severe
var levelPriority = map[Level]int{
	DEBUG: 1,
	INFO:  2,
	WARN:  3,
	ERROR: 4,
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a level name to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	l := Level(s)
	if _, ok := levelPriority[l]; ok {
		return l
	}
	return INFO
}

type Entry struct {
	TimeStamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type Logger struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
	level   Level
	sink    *slog.Logger
}

// level: minimum log level to record (e.g., INFO, WARN, ERROR, DEBUG)
//
// maxSize: maximum number of log entries kept in memory
func NewLogger(maxSize int, level Level) *Logger {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Logger{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
		level:   level,
	}
}

// WithSink mirrors every recorded entry to sink as well.
func (l *Logger) WithSink(sink *slog.Logger) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
	return l
}

// log applies level filtering and ring buffer behavior.
// kv is a list of alternating key/value pairs.
func (l *Logger) log(level Level, msg string, kv []any) {
	if levelPriority[level] < levelPriority[l.level] {
		return
	}

	fields := toFields(kv)

	l.mu.Lock()
	if len(l.entries) >= l.maxSize {
		// drop oldest
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, Entry{
		TimeStamp: time.Now(),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	})
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink.Log(context.Background(), level.slogLevel(), msg, kv...)
	}
}

func toFields(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	fields := make(map[string]any, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			fields["!BADKEY"] = kv[i]
			break
		}
		fields[key] = kv[i+1]
	}
	return fields
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.log(DEBUG, msg, kv)
}

func (l *Logger) Info(msg string, kv ...any) {
	l.log(INFO, msg, kv)
}

func (l *Logger) Warn(msg string, kv ...any) {
	l.log(WARN, msg, kv)
}

func (l *Logger) Error(msg string, kv ...any) {
	l.log(ERROR, msg, kv)
}

func (l *Logger) GetLast(n int) []Entry {
	if n <= 0 {
		return []Entry{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if n > len(l.entries) {
		out := make([]Entry, len(l.entries))
		copy(out, l.entries)
		return out
	}

	start := len(l.entries) - n
	out := make([]Entry, n)
	copy(out, l.entries[start:])
	return out
}
