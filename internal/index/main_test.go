package index

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in the index
// package; the concurrency tests here spawn goroutines that must all finish.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
