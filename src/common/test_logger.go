package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests.
type testLoggerAdapter struct {
	t      testing.TB
	prefix string
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		l := a.prefix + ": " + string(d)
		a.t.Log(l)
		return len(l), nil
	}
	a.t.Log(string(d))
	return len(d), nil
}

// NewTestLogger returns a logrus Logger that writes through t.Log.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t}
	logger.Level = level
	return logger
}

// NewTestEntry is NewTestLogger wrapped in an Entry, which is what most
// constructors take.
func NewTestEntry(t testing.TB, level logrus.Level) *logrus.Entry {
	return logrus.NewEntry(NewTestLogger(t, level))
}
