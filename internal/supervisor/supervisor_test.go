package supervisor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/LimpingNinja/maxtel/internal/config"
	"github.com/LimpingNinja/maxtel/internal/nodes"
	"github.com/LimpingNinja/maxtel/internal/reaper"
	"github.com/LimpingNinja/maxtel/internal/ui"
)

// popupRecorder captures popup posts.
type popupRecorder struct {
	ui.Headless
	popups []string
}

func (p *popupRecorder) PostPopup(title, body string) {
	p.popups = append(p.popups, title+"\n"+body)
}

func newTestSupervisor(t *testing.T, n int) (*Supervisor, *popupRecorder) {
	t.Helper()
	rec := &popupRecorder{}
	s := &Supervisor{
		cfg:   config.Settings{BaseDir: t.TempDir(), Nodes: n, Port: 0},
		log:   zerolog.Nop(),
		ui:    rec,
		shown: newSigSet(),
		start: time.Now(),
	}
	s.table = nodes.NewTable(s.cfg.BaseDir, n)
	return s, rec
}

func signaled(sig unix.Signal) int { return int(sig) }
func exited(code int) int          { return code << 8 }

func TestHandleExitWorkerFatal(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	n := s.table.Nodes[0]
	n.State = nodes.StateWFC
	n.WorkerPID = 321

	s.handleExit(reaper.Exit{PID: 321, Status: unix.WaitStatus(signaled(unix.SIGKILL))})

	assert.True(t, n.ExitPending)
	assert.Zero(t, n.WorkerPID)
	assert.Equal(t, nodes.StateFailed, n.State)
}

func TestHandleExitWorkerTransient(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	n := s.table.Nodes[0]
	n.State = nodes.StateWFC
	n.WorkerPID = 321

	s.handleExit(reaper.Exit{PID: 321, Status: unix.WaitStatus(exited(0))})

	assert.Equal(t, nodes.StateInactive, n.State)
}

func TestHandleExitWorkerStoppingKeepsState(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	n := s.table.Nodes[0]
	n.State = nodes.StateStopping
	n.WorkerPID = 321

	s.handleExit(reaper.Exit{PID: 321, Status: unix.WaitStatus(signaled(unix.SIGKILL))})

	assert.Equal(t, nodes.StateStopping, n.State)
	assert.True(t, n.ExitPending)
}

func TestHandleExitBridge(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	n := s.table.Nodes[0]
	n.State = nodes.StateConnected
	n.BridgePID = 99
	n.Username = "someone"
	n.Activity = "Connected from 10.0.0.1"
	n.ConnectTime = time.Now()

	s.handleExit(reaper.Exit{PID: 99, Status: unix.WaitStatus(exited(0))})

	assert.Zero(t, n.BridgePID)
	assert.Equal(t, nodes.StateWFC, n.State)
	assert.Empty(t, n.Username)
	assert.Empty(t, n.Activity)
	assert.True(t, n.ConnectTime.IsZero())
}

func TestHandleExitUnknownPid(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	// Must not panic or touch anything.
	s.handleExit(reaper.Exit{PID: 5555, Status: unix.WaitStatus(exited(0))})
	assert.Equal(t, nodes.StateInactive, s.table.Nodes[0].State)
}

func TestProcessExitsBackoffSchedule(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	n := s.table.Nodes[0]
	now := time.Now()

	for i := 1; i <= 3; i++ {
		n.State = nodes.StateFailed
		n.ExitPending = true
		n.ExitStatus = signaled(unix.SIGKILL)
		s.processExits(now)

		require.Equal(t, i, n.RetryCount)
		want := now.Add(time.Duration(1<<(i-1)) * time.Second)
		assert.WithinDuration(t, want, n.NextRetryTime, time.Millisecond)
		assert.Equal(t, nodes.StateFailed, n.State)
	}

	// Fourth failure: retries exhausted, manual restart required.
	n.ExitPending = true
	n.ExitStatus = signaled(unix.SIGKILL)
	s.processExits(now)
	assert.Equal(t, 3, n.RetryCount)
	assert.True(t, n.NextRetryTime.IsZero())
	assert.Equal(t, "Manual restart", n.Activity)
}

func TestProcessExitsTransientClearsNode(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	n := s.table.Nodes[0]
	n.State = nodes.StateInactive
	n.ExitPending = true
	n.ExitStatus = exited(0)
	n.Username = "ghost"

	s.processExits(time.Now())

	assert.Equal(t, nodes.StateInactive, n.State)
	assert.Empty(t, n.Username)
	assert.Zero(t, n.RetryCount)
}

func TestProcessExitsStopping(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	n := s.table.Nodes[0]
	n.State = nodes.StateStopping
	n.ExitPending = true
	n.ExitStatus = signaled(unix.SIGKILL)
	n.RetryCount = 2

	s.processExits(time.Now())

	// Operator kill never drives back-off.
	assert.Equal(t, nodes.StateInactive, n.State)
	assert.Equal(t, 2, n.RetryCount)
}

func TestProcessExitsPopupOncePerSignature(t *testing.T) {
	s, rec := newTestSupervisor(t, 2)

	for _, n := range s.table.Nodes {
		n.State = nodes.StateFailed
		n.ExitPending = true
		n.ExitStatus = signaled(unix.SIGSEGV)
		n.PtyRing.Append([]byte("Old language version detected\n"))
		n.LastError = "Old language version detected"
	}
	s.processExits(time.Now())

	// Same crash signature on both nodes: one popup.
	assert.Len(t, rec.popups, 1)
	assert.Contains(t, rec.popups[0], "Node Failed")
	assert.Contains(t, rec.popups[0], "Old language version detected")
}

func TestProcessExitsDistinctSignaturesBothAlert(t *testing.T) {
	s, rec := newTestSupervisor(t, 2)

	msgs := []string{"SILT error one", "SILT error two"}
	for i, n := range s.table.Nodes {
		n.State = nodes.StateFailed
		n.ExitPending = true
		n.ExitStatus = exited(3)
		n.LastError = msgs[i]
	}
	s.processExits(time.Now())

	assert.Len(t, rec.popups, 2)
}

func TestRespawnPassDemotesStale(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	n := s.table.Nodes[0]
	n.State = nodes.StateStarting
	n.WorkerPID = 1 << 30 // certainly not a live pid

	s.respawnPass(time.Now())

	assert.Equal(t, nodes.StateInactive, n.State)
	assert.Zero(t, n.WorkerPID)
}

func TestRespawnPassStoppingToInactive(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	n := s.table.Nodes[0]
	n.State = nodes.StateStopping
	n.WorkerPID = 0

	s.respawnPass(time.Now())
	assert.Equal(t, nodes.StateInactive, n.State)
}

func TestRespawnPassFailedWaitsForTimer(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	s.cfg.EnginePath = "/nonexistent/max"
	n := s.table.Nodes[0]
	n.State = nodes.StateFailed
	n.RetryCount = 1
	n.NextRetryTime = time.Now().Add(time.Hour)

	s.respawnPass(time.Now())

	// Timer not elapsed: still failed, untouched.
	assert.Equal(t, nodes.StateFailed, n.State)
	assert.Equal(t, 1, n.RetryCount)
}

func TestSigSetDedup(t *testing.T) {
	set := newSigSet()
	assert.True(t, set.isNew("sig-a"))
	assert.False(t, set.isNew("sig-a"))
	assert.True(t, set.isNew("sig-b"))
	assert.True(t, set.isNew(""))
	assert.True(t, set.isNew("")) // empty never stored
}

func TestSigSetBounded(t *testing.T) {
	set := newSigSet()
	for i := 0; i < maxShownSigs; i++ {
		assert.True(t, set.isNew(string(rune('a'+i))))
	}
	// The oldest slot is recycled; its signature alerts again.
	assert.True(t, set.isNew("overflow"))
	assert.False(t, set.isNew("overflow"))
}

func TestBuildFrameUserMarkers(t *testing.T) {
	s, _ := newTestSupervisor(t, 3)
	s.table.Nodes[0].State = nodes.StateWFC
	s.table.Nodes[1].State = nodes.StateFailed
	s.table.Nodes[2].State = nodes.StateConnected

	f := s.buildFrame(time.Now())
	require.Len(t, f.Rows, 3)
	assert.Equal(t, "<waiting>", f.Rows[0].User)
	assert.Equal(t, "<failed>", f.Rows[1].User)
	assert.Equal(t, "Log-on", f.Rows[2].User)
	assert.Equal(t, 1, f.Online)
	assert.Equal(t, 1, f.Waiting)
}

func TestKillRestartOutOfRange(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	// No-ops, no panic.
	s.kill(-1)
	s.kill(5)
	s.restart(-1)
	s.restart(5)
}

func TestKillInactiveIsNoop(t *testing.T) {
	s, _ := newTestSupervisor(t, 1)
	s.kill(0)
	assert.Equal(t, nodes.StateInactive, s.table.Nodes[0].State)
}
