// Package log provides the module-tagged logger used across the handler
// and dispatcher, in the shape of klaytn's log.NewModuleLogger(tag): every
// component gets its own Logger carrying a fixed "module" field instead of
// passing a shared *zap.Logger around and re-specifying the tag everywhere.
package log

import (
	"os"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	colorable "github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base *zap.Logger

func init() {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "module",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(colorable.NewColorable(os.Stdout)),
		zapcore.DebugLevel,
	)
	base = zap.New(core)
}

// Logger is the handle every component holds. It wraps zap's SugaredLogger
// with the klaytn-style variadic key/value calling convention
// (logger.Error("msg", "key", val, "key2", val2)).
type Logger struct {
	tag string
	s   *zap.SugaredLogger
}

// New returns the tagged logger for one component, e.g. log.New("scanner").
func New(module string) *Logger {
	return &Logger{tag: module, s: base.Named(module).Sugar()}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

// Crit logs an operator-must-investigate condition (StuckTransaction,
// unmatched panics) with a captured call stack, then exits the process for
// true startup/config failures. Conductors call CritNoExit for per-row
// conditions that need a human but must not take the whole handler down.
var critBanner = color.New(color.FgRed, color.Bold).SprintFunc()

func (l *Logger) Crit(msg string, kv ...interface{}) {
	l.CritNoExit(msg, kv...)
	os.Stderr.WriteString(critBanner("CRIT: "+l.tag+" exiting: "+msg) + "\n")
	os.Exit(1)
}

func (l *Logger) CritNoExit(msg string, kv ...interface{}) {
	trace := stack.Trace().TrimRuntime()
	kv = append(kv, "stack", trace.String())
	l.s.Errorw(msg, kv...)
}
