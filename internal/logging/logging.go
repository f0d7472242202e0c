// Package logging provides component-scoped structured loggers shared by
// every package in the engine.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

// For returns a logger scoped to the named component, e.g. For("client").
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// SetLevel adjusts verbosity for every component logger; the CLI calls it
// from its --quiet flag handling.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}
