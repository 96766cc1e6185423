package app

import (
	"os"
	"sync/atomic"
)

const testModeEnv = "BACKOFFICE_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether the process should skip network listeners and
// background workers. The flag is read once; RefreshTestMode re-reads it.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads BACKOFFICE_TEST_MODE and returns the new value.
func RefreshTestMode() bool {
	on := os.Getenv(testModeEnv) == "1"
	testMode.Store(&on)
	return on
}
