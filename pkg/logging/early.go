package logging

import (
	"fmt"
	"io"
	"os"
)

// EarlyLog prints to the console during startup, before config is loaded
// and the structured logger exists. Error and Fatal terminate the process.
type EarlyLog struct{}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{}
}

func (l *EarlyLog) emit(w io.Writer, level, msg string, args ...interface{}) {
	fmt.Fprintf(w, level+": "+msg+"\n", args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.emit(os.Stdout, "INFO", msg, args...)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.emit(os.Stderr, "WARN", msg, args...)
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.emit(os.Stderr, "ERROR", msg, args...)
	os.Exit(1)
}

func (l *EarlyLog) Fatal(msg string, args ...interface{}) {
	l.emit(os.Stderr, "FATAL", msg, args...)
	os.Exit(1)
}
