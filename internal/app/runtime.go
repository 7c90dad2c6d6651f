package app

import (
	"os"
	"sync"
)

// TestModeEnv is set to "1" by test binaries so that main skips network side effects.
const TestModeEnv = "USERDESK_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	return testMode()
}
