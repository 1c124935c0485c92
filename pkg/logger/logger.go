// Package logger provides structured logging scoped to repositories and heads
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger is the logging interface every component receives
type Logger interface {
	Info(message string, fields ...Field)
	Error(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Debug(message string, fields ...Field)
	WithScope(scope string) Logger
}

// Field is one key=value pair attached to a log line
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// WithError is a shorthand for WithField("error", err)
func WithError(err error) Field {
	return Field{Key: "error", Value: err}
}

const scopeKey = "scope"

// leadingKeys are printed before the sorted remainder so lines of one pass
// line up
var leadingKeys = []string{"pass", "operation"}

type level struct {
	label string
	color *color.Color
}

var levels = map[logrus.Level]level{
	logrus.PanicLevel: {"ERROR", color.New(color.FgRed, color.Bold)},
	logrus.FatalLevel: {"ERROR", color.New(color.FgRed, color.Bold)},
	logrus.ErrorLevel: {"ERROR", color.New(color.FgRed, color.Bold)},
	logrus.WarnLevel:  {"WARN", color.New(color.FgYellow, color.Bold)},
	logrus.InfoLevel:  {"INFO", color.New(color.FgCyan)},
	logrus.DebugLevel: {"DEBUG", color.New(color.FgWhite, color.Faint)},
	logrus.TraceLevel: {"DEBUG", color.New(color.FgWhite, color.Faint)},
}

var (
	scopeColor  = color.New(color.FgBlue)
	fieldsColor = color.New(color.FgWhite, color.Faint)
)

// lineFormatter renders "[15:04:05] INFO: [o/a#3] message {k=v, ...}"
type lineFormatter struct {
	colors bool
}

func (f *lineFormatter) paint(c *color.Color, s string) string {
	if !f.colors {
		return s
	}
	return c.Sprint(s)
}

// Format implements logrus.Formatter
func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	lvl, ok := levels[entry.Level]
	if !ok {
		lvl = levels[logrus.DebugLevel]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: ", entry.Time.Format("15:04:05"), f.paint(lvl.color, lvl.label))
	if scope, ok := entry.Data[scopeKey]; ok {
		fmt.Fprintf(&b, "[%s] ", f.paint(scopeColor, fmt.Sprint(scope)))
	}
	b.WriteString(entry.Message)

	if pairs := orderedPairs(entry.Data); len(pairs) > 0 {
		b.WriteString(" ")
		b.WriteString(f.paint(fieldsColor, "{"+strings.Join(pairs, ", ")+"}"))
	}
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func orderedPairs(data logrus.Fields) []string {
	seen := map[string]bool{scopeKey: true}
	var pairs []string
	for _, k := range leadingKeys {
		if v, ok := data[k]; ok {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
			seen[k] = true
		}
	}

	rest := make([]string, 0, len(data))
	for k := range data {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return pairs
}

func newLogrus(logLevel string, out io.Writer, colors bool) *logrus.Logger {
	base := logrus.New()
	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	base.SetFormatter(&lineFormatter{colors: colors})
	base.SetOutput(out)
	return base
}

// CreateLogger creates the bot's logger. Lines go to stderr in color and,
// when logFile is set, are appended to that file as well.
func CreateLogger(logFile string, logLevel string) Logger {
	var out io.Writer = os.Stderr
	if logFile != "" {
		if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = io.MultiWriter(os.Stderr, file)
		}
	}
	return &scoped{base: newLogrus(logLevel, out, true)}
}

// CreateLoggerWithOutput creates an uncolored logger writing to output. A nil
// output discards everything.
func CreateLoggerWithOutput(logLevel string, output io.Writer) Logger {
	if output == nil {
		output = io.Discard
	}
	return &scoped{base: newLogrus(logLevel, output, false)}
}

// Nop returns a logger that drops everything
func Nop() Logger {
	return CreateLoggerWithOutput("error", io.Discard)
}

// scoped prefixes every line with its scope, usually a repository or a head
type scoped struct {
	base  *logrus.Logger
	scope string
}

func (l *scoped) WithScope(scope string) Logger {
	return &scoped{base: l.base, scope: scope}
}

func (l *scoped) log(lvl logrus.Level, message string, fields []Field) {
	if !l.base.IsLevelEnabled(lvl) {
		return
	}
	data := make(logrus.Fields, len(fields)+1)
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	if l.scope != "" {
		data[scopeKey] = l.scope
	}
	l.base.WithFields(data).Log(lvl, message)
}

func (l *scoped) Info(message string, fields ...Field)  { l.log(logrus.InfoLevel, message, fields) }
func (l *scoped) Error(message string, fields ...Field) { l.log(logrus.ErrorLevel, message, fields) }
func (l *scoped) Warn(message string, fields ...Field)  { l.log(logrus.WarnLevel, message, fields) }
func (l *scoped) Debug(message string, fields ...Field) { l.log(logrus.DebugLevel, message, fields) }
