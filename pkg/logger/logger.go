// Package logger writes structured JSON log lines for the progression engine.
//
// Every line is a single JSON object: "ts", "level", "msg", optional "caller",
// then the bound and per-call fields in the order they were given. Later
// fields with the same key win.
package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError

	levelOff
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < LevelDebug || l >= levelOff {
		return "off"
	}
	return levelNames[l]
}

// ParseLevel maps debug, info, warn (or warning) and error to a Level.
// Anything else is info.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i)
		}
	}
	return LevelInfo
}

// ──────────────────────────────────────────────────────────────────────────────
// Fields
// ──────────────────────────────────────────────────────────────────────────────

// Field is one key/value pair of a log line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field          { return Field{key, value} }
func Int(key string, value int) Field         { return Field{key, value} }
func Int64(key string, value int64) Field     { return Field{key, value} }
func Float64(key string, value float64) Field { return Field{key, value} }
func Bool(key string, value bool) Field       { return Field{key, value} }

// Err records err.Error() under "error"; a nil error is logged as null.
func Err(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

func Duration(key string, value time.Duration) Field { return Field{key, value.String()} }
func Time(key string, value time.Time) Field         { return Field{key, value.Format(time.RFC3339)} }

// Domain keys used across the engine.
func StudentID(id string) Field      { return String("student_id", id) }
func EnrollmentID(id string) Field   { return String("enrollment_id", id) }
func CourseID(id string) Field       { return String("course_id", id) }
func OrganizationID(id string) Field { return String("organization_id", id) }
func AchievementID(id string) Field  { return String("achievement_id", id) }
func ChallengeID(id string) Field    { return String("challenge_id", id) }
func XPAmount(xp int) Field          { return Int("xp_amount", xp) }
func StudentLevel(level int) Field   { return Int("level", level) }
func Degree(degree int) Field        { return Int("degree", degree) }
func Source(source string) Field     { return String("source", source) }
func Component(name string) Field    { return String("component", name) }
func Operation(name string) Field    { return String("operation", name) }
func Latency(d time.Duration) Field  { return Duration("latency", d) }

// ──────────────────────────────────────────────────────────────────────────────
// Logger
// ──────────────────────────────────────────────────────────────────────────────

// Options configures New.
type Options struct {
	Output    io.Writer // stdout when nil
	Level     Level
	AddCaller bool
	Now       func() time.Time
}

// sink is shared by a logger and every child derived with With, so lines
// from all of them are serialized on one writer.
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

// Logger is safe for concurrent use.
type Logger struct {
	sink      *sink
	level     Level
	addCaller bool
	now       func() time.Time
	fields    []Field
}

func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Logger{
		sink:      &sink{out: opts.Output},
		level:     opts.Level,
		addCaller: opts.AddCaller,
		now:       opts.Now,
	}
}

// NewWithLevel logs to stdout with caller information at the named level.
func NewWithLevel(level string) *Logger {
	return New(Options{Level: ParseLevel(level), AddCaller: true})
}

// Nop discards everything.
func Nop() *Logger {
	return New(Options{Output: io.Discard, Level: levelOff})
}

// With returns a child logger that prefixes every line with fields.
func (l *Logger) With(fields ...Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	child := *l
	child.fields = make([]Field, 0, len(l.fields)+len(fields))
	child.fields = append(child.fields, l.fields...)
	child.fields = append(child.fields, fields...)
	return &child
}

// Enabled reports whether lines at level would be written.
func (l *Logger) Enabled(level Level) bool { return level >= l.level && level < levelOff }

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

func (l *Logger) write(level Level, msg string, fields []Field) {
	if !l.Enabled(level) {
		return
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	appendPair(&buf, "ts", l.now().UTC().Format(time.RFC3339Nano), true)
	appendPair(&buf, "level", level.String(), false)
	appendPair(&buf, "msg", msg, false)
	if l.addCaller {
		// write <- Info/Debug/... <- caller
		if _, file, line, ok := runtime.Caller(2); ok {
			if i := strings.LastIndexByte(file, '/'); i >= 0 {
				file = file[i+1:]
			}
			appendPair(&buf, "caller", fmt.Sprintf("%s:%d", file, line), false)
		}
	}
	for _, f := range mergeFields(l.fields, fields) {
		appendPair(&buf, f.Key, f.Value, false)
	}
	buf.WriteString("}\n")

	l.sink.mu.Lock()
	_, _ = l.sink.out.Write(buf.Bytes())
	l.sink.mu.Unlock()
}

// mergeFields keeps the first position of each key and the last value given
// for it.
func mergeFields(bound, call []Field) []Field {
	if len(bound)+len(call) == 0 {
		return nil
	}
	out := make([]Field, 0, len(bound)+len(call))
	index := make(map[string]int, len(bound)+len(call))
	for _, group := range [2][]Field{bound, call} {
		for _, f := range group {
			if i, ok := index[f.Key]; ok {
				out[i].Value = f.Value
				continue
			}
			index[f.Key] = len(out)
			out = append(out, f)
		}
	}
	return out
}

func appendPair(buf *bytes.Buffer, key string, value any, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
	v, err := json.Marshal(value)
	if err != nil {
		v, _ = json.Marshal(fmt.Sprint(value))
	}
	buf.Write(v)
}
