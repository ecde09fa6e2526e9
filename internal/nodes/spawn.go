package nodes

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// SpawnConfig locates the engine installation for worker children.
type SpawnConfig struct {
	BaseDir    string // absolute by the time Spawn runs
	EnginePath string // engine executable
	ConfigPath string // primary engine config, may be relative to BaseDir
}

// WorkerArgv builds the engine argv for a node. Kept separate from Spawn so
// the command line is testable without forking.
func WorkerArgv(num int) []string {
	return []string{
		"-w",
		fmt.Sprintf("-pt%d", num),
		fmt.Sprintf("-n%d", num),
		"-b57600",
		"-dl",
	}
}

// WorkerEnv builds the child environment: the engine needs its shared
// libraries, script includes, install root, and primary config before exec.
func WorkerEnv(base []string, absBase, configPath string) []string {
	env := append([]string(nil), base...)
	env = setEnv(env, "LD_LIBRARY_PATH", filepath.Join(absBase, "bin", "lib"))
	env = setEnv(env, "MEX_INCLUDE", filepath.Join(absBase, "scripts", "include"))
	env = setEnv(env, "MAX_INSTALL_PATH", absBase)
	env = setEnv(env, "MAXIMUS", absBase)
	if configPath != "" {
		env = setEnv(env, "MAXIMUS_CONFIG", configPath)
	}
	if !hasEnv(env, "SHELL") {
		env = setEnv(env, "SHELL", "/bin/sh")
	}
	return env
}

func setEnv(env []string, key, val string) []string {
	prefix := key + "="
	for i, kv := range env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			env[i] = prefix + val
			return env
		}
	}
	return append(env, prefix+val)
}

func hasEnv(env []string, key string) bool {
	prefix := key + "="
	for _, kv := range env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// Spawn forks an engine worker for node attached to a fresh PTY. On success
// the node is Starting with WorkerPID and PtyMaster set; on failure the node
// stays Inactive and no retry bookkeeping advances.
func Spawn(node *Node, cfg SpawnConfig) error {
	if node.State == StateFailed {
		// Manual or scheduled respawn of a failed node: clear the failure
		// bookkeeping before the attempt.
		node.State = StateInactive
		node.FailCount = 0
		node.ErrorShown = false
		node.LastError = ""
		node.PtyRing.Reset()
		node.ExitPending = false
		node.ExitStatus = 0
		node.NextRetryTime = time.Time{}
	}
	if node.State != StateInactive {
		return fmt.Errorf("spawn: node %d is %s", node.Num, node.State)
	}

	if err := os.MkdirAll(Dir(cfg.BaseDir, node.Num), 0o755); err != nil {
		return fmt.Errorf("spawn: node dir: %w", err)
	}

	// Remove stale rendezvous files before the child can create them.
	_ = os.Remove(node.SocketPath)
	_ = os.Remove(node.LockPath)

	cmd := exec.Command(cfg.EnginePath, WorkerArgv(node.Num)...)
	cmd.Dir = cfg.BaseDir
	cmd.Env = WorkerEnv(os.Environ(), cfg.BaseDir, cfg.ConfigPath)

	master, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("spawn: %w", err)
	}

	// The drainer reads the master inline on the supervisor tick; it must
	// never block.
	if sc, err := master.SyscallConn(); err == nil {
		_ = sc.Control(func(fd uintptr) {
			_ = unix.SetNonblock(int(fd), true)
		})
	}

	node.WorkerPID = cmd.Process.Pid
	node.PtyMaster = master
	node.State = StateStarting
	node.StartTime = time.Now()
	node.ExitPending = false
	node.ExitStatus = 0
	node.PtyRing.Reset()
	node.LastError = ""
	node.NextRetryTime = time.Time{}
	node.BridgePID = 0
	node.Username = ""
	node.Activity = ""
	node.ConnectTime = time.Time{}

	// The runtime will reap via the shared SIGCHLD reaper; drop the handle
	// so exec.Cmd does not fight it for the wait.
	_ = cmd.Process.Release()

	return nil
}

// DrainPty empties pending worker output into the node's ring so the child
// never stalls on tty writes. Safe to call every tick.
func (n *Node) DrainPty() {
	if n.PtyMaster == nil {
		return
	}
	sc, err := n.PtyMaster.SyscallConn()
	if err != nil {
		return
	}
	buf := make([]byte, 1024)
	_ = sc.Control(func(fd uintptr) {
		for {
			c, err := unix.Read(int(fd), buf)
			if c <= 0 || err != nil {
				return
			}
			n.PtyRing.Append(buf[:c])
		}
	})
	if n.LastError == "" {
		if sig := ExtractSignature(n.PtyRing.String()); sig != "" {
			n.LastError = sig
		}
	}
}

// ClosePty closes the PTY master, if open.
func (n *Node) ClosePty() {
	if n.PtyMaster != nil {
		_ = n.PtyMaster.Close()
		n.PtyMaster = nil
	}
}

// WorkerAlive reports whether the recorded worker pid still exists.
func (n *Node) WorkerAlive() bool {
	if n.WorkerPID <= 0 {
		return false
	}
	return unix.Kill(n.WorkerPID, 0) == nil
}
