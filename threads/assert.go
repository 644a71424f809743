package threads

import (
	"github.com/evanphx/nachos/log"
	"github.com/pkg/errors"
)

// assertf aborts on a broken kernel invariant.
func assertf(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}

	err := errors.Errorf(format, args...)
	log.L.Error("assertion failed", "error", err)
	panic(err)
}
