package reaper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

// Wait statuses as the kernel encodes them: low 7 bits signal, 0 for a
// normal exit with the code in bits 8..15.
func exitStatus(code int) unix.WaitStatus  { return unix.WaitStatus(code << 8) }
func signalStatus(sig int) unix.WaitStatus { return unix.WaitStatus(sig) }

func TestFatalOnSignal(t *testing.T) {
	e := Exit{PID: 1, Status: signalStatus(int(unix.SIGKILL))}
	assert.True(t, e.Fatal())

	e = Exit{PID: 1, Status: signalStatus(int(unix.SIGSEGV))}
	assert.True(t, e.Fatal())
}

func TestFatalOnCriticalExitCode(t *testing.T) {
	e := Exit{PID: 1, Status: exitStatus(3)}
	assert.True(t, e.Fatal())
}

func TestTransientExits(t *testing.T) {
	assert.False(t, Exit{PID: 1, Status: exitStatus(0)}.Fatal())
	assert.False(t, Exit{PID: 1, Status: exitStatus(1)}.Fatal())
	assert.False(t, Exit{PID: 1, Status: exitStatus(2)}.Fatal())
}
