// README: logrus logger construction shared by the API binary and tests.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing to stdout. An unknown level falls back to info.
func New(appName, level, format string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l.WithField("service", appName)
}

// Discard returns a logger that drops everything; used by tests and optional deps.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
