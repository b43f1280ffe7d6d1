package ext2

import "github.com/sirupsen/logrus"

// logger wraps a *logrus.Entry so call sites can log allocation and
// metadata-write decisions without every component importing logrus
// directly. A nil logger is valid: withFields then returns an entry on a
// fresh default logrus logger, which drops the Debug-level messages this
// package emits. Volumes, including those the tests create, use newLogger.
type logger struct {
	entry *logrus.Entry
}

func newLogger() *logger {
	return &logger{entry: logrus.WithField("component", "ext2")}
}

func silentLogger() *logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return &logger{entry: logrus.NewEntry(l)}
}

func (l *logger) withFields(fields logrus.Fields) *logrus.Entry {
	if l == nil || l.entry == nil {
		return logrus.NewEntry(logrus.New())
	}
	return l.entry.WithFields(fields)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
