package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by the API server and the admin CLI.
// Init(level) selects the threshold; With(...) attaches key=value context.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelFatal: "fatal",
}

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
	exit               = os.Exit
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Unknown values fall back to info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	case "fatal":
		level = LevelFatal
	default:
		level = LevelInfo
	}
}

// SetOutput redirects log lines to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", 0)
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	return levelNames[level]
}

func enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func emit(l Level, fields string, format string, v ...interface{}) {
	if l != LevelFatal && !enabled(l) {
		return
	}
	line := fmt.Sprintf("%s [%s] ", time.Now().UTC().Format(time.RFC3339), strings.ToUpper(levelNames[l]))
	line += fmt.Sprintf(format, v...)
	if fields != "" {
		line += " " + fields
	}
	logger.Print(line)
}

func Debugf(format string, v ...interface{}) { emit(LevelDebug, "", format, v...) }
func Infof(format string, v ...interface{})  { emit(LevelInfo, "", format, v...) }
func Warnf(format string, v ...interface{})  { emit(LevelWarn, "", format, v...) }
func Errorf(format string, v ...interface{}) { emit(LevelError, "", format, v...) }

func Fatalf(format string, v ...interface{}) {
	emit(LevelFatal, "", format, v...)
	exit(1)
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// Entry carries key=value fields appended to every line it writes.
type Entry struct {
	fields map[string]interface{}
}

// With starts an Entry from alternating key/value pairs. A trailing key without a
// value is recorded with an empty value.
func With(kv ...interface{}) *Entry {
	e := &Entry{fields: make(map[string]interface{}, len(kv)/2)}
	return e.With(kv...)
}

// With returns a copy of e extended with more key/value pairs.
func (e *Entry) With(kv ...interface{}) *Entry {
	out := &Entry{fields: make(map[string]interface{}, len(e.fields)+len(kv)/2)}
	for k, v := range e.fields {
		out.fields[k] = v
	}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 < len(kv) {
			out.fields[key] = kv[i+1]
		} else {
			out.fields[key] = ""
		}
	}
	return out
}

func (e *Entry) render() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.fields[k]))
	}
	return strings.Join(parts, " ")
}

func (e *Entry) Debugf(format string, v ...interface{}) { emit(LevelDebug, e.render(), format, v...) }
func (e *Entry) Infof(format string, v ...interface{})  { emit(LevelInfo, e.render(), format, v...) }
func (e *Entry) Warnf(format string, v ...interface{})  { emit(LevelWarn, e.render(), format, v...) }
func (e *Entry) Errorf(format string, v ...interface{}) { emit(LevelError, e.render(), format, v...) }
