// Package logflags selects which layers of threadtree produce log output.
package logflags

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var task = false
var events = false

var logOut io.Writer = os.Stderr

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New()
	logger.Out = logOut
	logger.Level = logrus.DebugLevel
	if !flag {
		logger.Level = logrus.PanicLevel
	}
	return logger.WithFields(fields)
}

// Task returns true if the task's spawn and join activity should be logged.
func Task() bool {
	return task
}

// TaskLogger returns a logger for the threadtree package.
func TaskLogger() *logrus.Entry {
	return makeLogger(task, logrus.Fields{"layer": "task"})
}

// Events returns true if every start, fork, and exit event should be logged.
func Events() bool {
	return events
}

// EventLogger returns a logger for recorded events.
func EventLogger() *logrus.Entry {
	return makeLogger(events, logrus.Fields{"layer": "events"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup enables logging layers based on the contents of logstr, a comma separated list of layers.
// An empty logstr with logFlag set enables the "task" layer.
func Setup(logFlag bool, logstr string, out io.Writer) error {
	task, events = false, false
	if out != nil {
		logOut = out
	}

	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "task"
	}

	for _, layer := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(layer) {
		case "task":
			task = true
		case "events":
			events = true
		default:
			return errors.New("unknown log layer " + layer)
		}
	}
	return nil
}
