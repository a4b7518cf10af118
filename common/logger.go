package common

import (
	"fmt"
	"os"
)

// Logger is the printf style levelled logger the library reports through.
// *logrus.Logger and *logrus.Entry satisfy it.
type Logger interface {
	// Debugf receives per-frame chatter: dropped frames, discovery replies
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	// Warnf receives recoverable faults, such as malformed notifications
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	// Fatalf must not return
	Fatalf(format string, args ...interface{})
	// Panicf must panic
	Panicf(format string, args ...interface{})
}

// StubLogger discards everything below fatal.  It is the default until
// SetLogger is called.
type StubLogger struct{}

func (l *StubLogger) Debugf(format string, args ...interface{}) {}

func (l *StubLogger) Infof(format string, args ...interface{}) {}

func (l *StubLogger) Warnf(format string, args ...interface{}) {}

func (l *StubLogger) Errorf(format string, args ...interface{}) {}

// Fatalf exits with status 1 without printing
func (l *StubLogger) Fatalf(format string, args ...interface{}) {
	os.Exit(1)
}

func (l *StubLogger) Panicf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

const logPrefix = `[goyeelight] `

// logPrefixer tags every message so library output can be told apart from
// the application's own
type logPrefixer struct {
	log Logger
}

func (l *logPrefixer) Debugf(format string, args ...interface{}) {
	l.log.Debugf(logPrefix+format, args...)
}

func (l *logPrefixer) Infof(format string, args ...interface{}) {
	l.log.Infof(logPrefix+format, args...)
}

func (l *logPrefixer) Warnf(format string, args ...interface{}) {
	l.log.Warnf(logPrefix+format, args...)
}

func (l *logPrefixer) Errorf(format string, args ...interface{}) {
	l.log.Errorf(logPrefix+format, args...)
}

func (l *logPrefixer) Fatalf(format string, args ...interface{}) {
	l.log.Fatalf(logPrefix+format, args...)
}

func (l *logPrefixer) Panicf(format string, args ...interface{}) {
	l.log.Panicf(logPrefix+format, args...)
}

// Log is where every package in the library logs to.  Replace it with
// SetLogger, never by assignment, so the prefix is kept.
var Log Logger

func init() {
	Log = &logPrefixer{log: new(StubLogger)}
}

// SetLogger routes library logs to logger, prefixed with [goyeelight].  A
// nil logger silences them again.
func SetLogger(logger Logger) {
	if logger == nil {
		logger = new(StubLogger)
	}
	Log = &logPrefixer{log: logger}
}
