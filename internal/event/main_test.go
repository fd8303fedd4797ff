package event

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/Sendspin/sendspin-vis/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startLoop runs a loop for the duration of the test
func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop(logging.Discard())
	go l.Run()
	t.Cleanup(l.Stop)
	return l
}
