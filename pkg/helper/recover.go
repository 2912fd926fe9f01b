package helper

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from panics in goroutines and logs the stack trace.
// Usage: defer helper.RecoverPanic(logger, "goroutine-name")
func RecoverPanic(log *logrus.Entry, name string) {
	if r := recover(); r != nil {
		log.Errorf("PANIC recovered in %s: %v\nStack: %s", name, r, debug.Stack())
	}
}
