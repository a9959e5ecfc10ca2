package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel orders log severities.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{DEBUG: "DEBUG", INFO: "INFO", WARN: "WARN", ERROR: "ERROR"}

func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// RedactedPlaceholder replaces credentials in emitted lines.
const RedactedPlaceholder = "[REDACTED]"

// sink serialises writes from every component logger sharing it.
type sink struct {
	mu      sync.Mutex
	writers []io.Writer
}

func (s *sink) write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.writers {
		_, _ = io.WriteString(w, line)
	}
}

// Logger writes "time [LEVEL] [Component] file:line - message" lines with
// credentials masked.
type Logger struct {
	out       *sink
	level     LogLevel
	component string
}

var (
	processSink  *sink
	processLevel LogLevel
	processOnce  sync.Once
)

// setupProcessSink reads MEDIA_LOG_LEVEL and MEDIA_LOG_FILE once. The log
// file, when set, receives the same lines as stdout.
func setupProcessSink() {
	processLevel = ParseLevel(os.Getenv("MEDIA_LOG_LEVEL"))
	processSink = &sink{writers: []io.Writer{os.Stdout}}

	path := strings.TrimSpace(os.Getenv("MEDIA_LOG_FILE"))
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("log file disabled: %v", err)
		return
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("log file disabled: %v", err)
		return
	}
	processSink.writers = append(processSink.writers, file)
}

// NewComponentLogger returns a process-wide logger tagged with component.
func NewComponentLogger(component string) *Logger {
	processOnce.Do(setupProcessSink)
	return &Logger{out: processSink, level: processLevel, component: component}
}

// NewLatencyLogger returns the logger used for per-request latency lines.
func NewLatencyLogger(component string) *Logger {
	return NewComponentLogger(component + "/latency")
}

// NewWriterLogger builds a logger writing only to w.
func NewWriterLogger(component string, level LogLevel, w io.Writer) *Logger {
	return &Logger{out: &sink{writers: []io.Writer{w}}, level: level, component: component}
}

// ParseLevel maps a level name to LogLevel, defaulting to INFO.
func ParseLevel(raw string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	}
	return INFO
}

func (l *Logger) Debug(format string, args ...any) { l.emit(DEBUG, format, args) }
func (l *Logger) Info(format string, args ...any)  { l.emit(INFO, format, args) }
func (l *Logger) Warn(format string, args ...any)  { l.emit(WARN, format, args) }
func (l *Logger) Error(format string, args ...any) { l.emit(ERROR, format, args) }

// emit must be called directly from the exported level methods so the
// caller lookup lands on the logging call site.
func (l *Logger) emit(level LogLevel, format string, args []any) {
	if level < l.level {
		return
	}
	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file, line = "???", 0
	}
	component := l.component
	if component == "" {
		component = "mediasvc"
	}
	l.out.write(redact(fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, component, file, line,
		fmt.Sprintf(format, args...))))
}

type redaction struct {
	pattern *regexp.Regexp
	replace string
}

var redactions = []redaction{
	{
		regexp.MustCompile(`(?i)((?:"|')?authorization(?:"|')?\s*(?:=|:)\s*)(bearer\s+|basic\s+)([^"'\s,;]+)`),
		"${1}${2}" + RedactedPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)((?:"|')?(?:secret[_-]?access[_-]?key|access[_-]?key[_-]?id|password|token|secret|dsn)(?:"|')?\s*(?:=|:)\s*)(?:"|')?[^"'\s,;]+((?:"|')?)`),
		"${1}" + RedactedPlaceholder + "${2}",
	},
	{
		regexp.MustCompile(`(?i)(X-Amz-(?:Signature|Credential|Security-Token)=)[^&\s"]+`),
		"${1}" + RedactedPlaceholder,
	},
	{
		regexp.MustCompile(`(postgres(?:ql)?://[^:/\s]+:)[^@\s]+(@)`),
		"${1}" + RedactedPlaceholder + "${2}",
	},
}

func redact(line string) string {
	for _, r := range redactions {
		line = r.pattern.ReplaceAllString(line, r.replace)
	}
	return line
}
