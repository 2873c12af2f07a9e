package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerHook points entry.Caller at the first frame outside logrus and
// this package, since every call passes through the Entry wrappers.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !wrapperFrame(frame) {
			entry.Caller = &frame
			break
		}
		if !more {
			break
		}
	}
	return nil
}

func wrapperFrame(frame runtime.Frame) bool {
	if strings.Contains(frame.Function, "sirupsen/logrus") {
		return true
	}
	return strings.Contains(frame.Function, "optionflow/logger.") && !strings.HasSuffix(frame.File, "_test.go")
}
