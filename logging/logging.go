// Package logging configures the process-wide logrus logger used by
// every tockloader subcommand, following apache-mynewt-newt's
// util.Init/initLog/logFormatter pattern: a compact timestamped
// formatter to stderr, optionally duplicated to a log file, with the
// verbosity gated by a single package-level level.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Verbosity mirrors util.Verbosity: subcommands consult it before
// emitting status text on top of the structured log stream.
var Verbosity int

const (
	VerbositySilent  = 0
	VerbosityQuiet   = 1
	VerbosityDefault = 2
	VerbosityVerbose = 3
)

var logFile *os.File

type lineFormatter struct{}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := entry.Time.Format("2006/01/02 15:04:05.000")
	level := strings.ToUpper(entry.Level.String())
	line := ts + " [" + level + "] " + entry.Message + "\n"
	return []byte(line), nil
}

// Init configures logrus's level, formatter, and output writer. When
// logPath is non-empty, log lines are duplicated to that file in
// addition to stderr, matching util.Init's two-pass initLog call.
func Init(level logrus.Level, logPath string, verbosity int) error {
	Verbosity = verbosity

	logrus.SetLevel(level)
	logrus.SetFormatter(&lineFormatter{})

	var w io.Writer = os.Stderr
	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			return err
		}
		logFile = f
		w = io.MultiWriter(os.Stderr, f)
	}
	logrus.SetOutput(w)

	return nil
}

// Close flushes and releases the log file opened by Init, if any.
func Close() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Status writes a verbosity-gated status line to stdout, mirroring
// util.StatusMessage: user-facing progress text that is distinct from
// the structured logrus stream.
func Status(level int, format string, args ...interface{}) {
	writeMessage(os.Stdout, level, format, args...)
}

// StatusErr writes a verbosity-gated status line to stderr, mirroring
// util.ErrorMessage.
func StatusErr(level int, format string, args ...interface{}) {
	writeMessage(os.Stderr, level, format, args...)
}

func writeMessage(f *os.File, level int, format string, args ...interface{}) {
	if Verbosity < level {
		return
	}
	fmt.Fprintf(f, format, args...)
}
