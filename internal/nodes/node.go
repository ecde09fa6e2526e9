package nodes

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the lifecycle state of a single node.
type State int

const (
	StateInactive State = iota
	StateStarting
	StateWFC // healthy and waiting for a caller
	StateConnected
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "Inactive"
	case StateStarting:
		return "Starting"
	case StateWFC:
		return "WFC"
	case StateConnected:
		return "Online"
	case StateStopping:
		return "Stopping"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

const (
	// MaxNodes bounds the node table; operator-visible numbering is 1..MaxNodes.
	MaxNodes = 32

	socketName = "maxipc"
	lockSuffix = ".lck"
)

// Node is the supervisor's record for one engine worker and its rendezvous.
// All fields are owned by the supervisor goroutine; the reaper communicates
// exits through channels, never by touching a Node.
type Node struct {
	Num   int // 1-based
	State State

	WorkerPID int
	BridgePID int
	PtyMaster *os.File // nil when no worker

	SocketPath string
	LockPath   string

	Username string
	Activity string

	ConnectTime time.Time
	StartTime   time.Time

	ExitPending bool
	ExitStatus  int // raw wait status as reported by the reaper

	FailCount     int
	RetryCount    int
	NextRetryTime time.Time

	ErrorShown bool
	PtyRing    Ring
	LastError  string
}

// Dir returns the node's run directory under base. Node numbers are encoded
// in hex, matching the engine's own node-directory naming.
func Dir(base string, num int) string {
	return filepath.Join(base, "run", "node", fmt.Sprintf("%02x", num))
}

// CapsPath is where the per-connection terminal capability record goes.
func CapsPath(base string, num int) string {
	return filepath.Join(Dir(base, num), "termcap.dat")
}

// LastUserPath is the engine-written per-session user record.
func LastUserPath(base string, num int) string {
	return filepath.Join(Dir(base, num), "lastus.bbs")
}

// Table is the fixed node table, the single source of truth for lifecycle.
type Table struct {
	Nodes []*Node
}

// NewTable builds a table of n nodes (clamped to [1, MaxNodes]) rooted at base.
func NewTable(base string, n int) *Table {
	if n < 1 {
		n = 1
	}
	if n > MaxNodes {
		n = MaxNodes
	}
	t := &Table{Nodes: make([]*Node, n)}
	for i := range t.Nodes {
		num := i + 1
		t.Nodes[i] = &Node{
			Num:        num,
			SocketPath: filepath.Join(Dir(base, num), socketName),
			LockPath:   filepath.Join(Dir(base, num), socketName+lockSuffix),
		}
	}
	return t
}

// FindFree returns the first node that is waiting for a caller and whose
// rendezvous socket still exists, or nil. A lock marker means the engine
// considers the node busy even if our state lags.
func (t *Table) FindFree() *Node {
	for _, n := range t.Nodes {
		if n.State != StateWFC {
			continue
		}
		if _, err := os.Stat(n.LockPath); err == nil {
			continue
		}
		if _, err := os.Stat(n.SocketPath); err == nil {
			return n
		}
	}
	return nil
}

// ByWorkerPID finds the node owning worker pid, or nil.
func (t *Table) ByWorkerPID(pid int) *Node {
	for _, n := range t.Nodes {
		if n.WorkerPID == pid && pid != 0 {
			return n
		}
	}
	return nil
}

// ByBridgePID finds the node owning bridge pid, or nil.
func (t *Table) ByBridgePID(pid int) *Node {
	for _, n := range t.Nodes {
		if n.BridgePID == pid && pid != 0 {
			return n
		}
	}
	return nil
}

// Counts returns how many nodes are connected and how many are waiting.
func (t *Table) Counts() (online, waiting int) {
	for _, n := range t.Nodes {
		switch n.State {
		case StateConnected:
			online++
		case StateWFC:
			waiting++
		}
	}
	return online, waiting
}
