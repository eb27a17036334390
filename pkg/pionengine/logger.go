package pionengine

import (
	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// loggerFactory routes pion's internal logging through logrus. Every pion
// scope gets its own entry tagged with the scope name.
type loggerFactory struct {
	entry *logrus.Entry
}

var _ logging.LoggerFactory = (*loggerFactory)(nil)

func newLoggerFactory(entry *logrus.Entry) *loggerFactory {
	return &loggerFactory{entry: entry}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{entry: f.entry.WithField("scope", scope)}
}

type leveledLogger struct {
	entry *logrus.Entry
}

// pion's trace output is per packet; it maps to logrus trace so it stays off
// unless explicitly asked for.
func (l *leveledLogger) Trace(msg string)                  { l.entry.Trace(msg) }
func (l *leveledLogger) Tracef(format string, args ...any) { l.entry.Tracef(format, args...) }
func (l *leveledLogger) Debug(msg string)                  { l.entry.Debug(msg) }
func (l *leveledLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *leveledLogger) Info(msg string)                   { l.entry.Info(msg) }
func (l *leveledLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *leveledLogger) Warn(msg string)                   { l.entry.Warn(msg) }
func (l *leveledLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *leveledLogger) Error(msg string)                  { l.entry.Error(msg) }
func (l *leveledLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
