package app

import (
	"os"
	"sync/atomic"
)

const testModeEnv = "ERP_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether command mains should skip runtime side effects
// such as dialing the backend or binding listeners.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads ERP_TEST_MODE after environment changes.
func RefreshTestMode() bool {
	on := os.Getenv(testModeEnv) == "1"
	testMode.Store(&on)
	return on
}
