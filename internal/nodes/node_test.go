package nodes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableClamps(t *testing.T) {
	assert.Len(t, NewTable("/tmp/bbs", 0).Nodes, 1)
	assert.Len(t, NewTable("/tmp/bbs", 99).Nodes, MaxNodes)
	assert.Len(t, NewTable("/tmp/bbs", 4).Nodes, 4)
}

func TestNodeDirsAreHex(t *testing.T) {
	tbl := NewTable("/bbs", 16)
	assert.Equal(t, "/bbs/run/node/01/maxipc", tbl.Nodes[0].SocketPath)
	assert.Equal(t, "/bbs/run/node/0a/maxipc", tbl.Nodes[9].SocketPath)
	assert.Equal(t, "/bbs/run/node/10/maxipc", tbl.Nodes[15].SocketPath)
	assert.Equal(t, "/bbs/run/node/01/maxipc.lck", tbl.Nodes[0].LockPath)
}

func TestSocketPathsDistinct(t *testing.T) {
	tbl := NewTable("/bbs", MaxNodes)
	seen := map[string]bool{}
	for _, n := range tbl.Nodes {
		assert.False(t, seen[n.SocketPath], "duplicate socket path %s", n.SocketPath)
		seen[n.SocketPath] = true
	}
}

func TestFindFreeRequiresSocket(t *testing.T) {
	base := t.TempDir()
	tbl := NewTable(base, 2)

	// WFC but no socket on disk: not eligible.
	tbl.Nodes[0].State = StateWFC
	assert.Nil(t, tbl.FindFree())

	// Socket appears: eligible.
	require.NoError(t, os.MkdirAll(filepath.Dir(tbl.Nodes[0].SocketPath), 0o755))
	require.NoError(t, os.WriteFile(tbl.Nodes[0].SocketPath, nil, 0o600))
	assert.Same(t, tbl.Nodes[0], tbl.FindFree())

	// A connected node is never handed out again.
	tbl.Nodes[0].State = StateConnected
	assert.Nil(t, tbl.FindFree())
}

func TestFindFreeSkipsLockedNode(t *testing.T) {
	base := t.TempDir()
	tbl := NewTable(base, 1)
	n := tbl.Nodes[0]
	n.State = StateWFC
	require.NoError(t, os.MkdirAll(filepath.Dir(n.SocketPath), 0o755))
	require.NoError(t, os.WriteFile(n.SocketPath, nil, 0o600))
	require.NoError(t, os.WriteFile(n.LockPath, nil, 0o600))

	assert.Nil(t, tbl.FindFree())

	require.NoError(t, os.Remove(n.LockPath))
	assert.Same(t, n, tbl.FindFree())
}

func TestFindFreePicksFirstWaiting(t *testing.T) {
	base := t.TempDir()
	tbl := NewTable(base, 3)
	for _, n := range tbl.Nodes[1:] {
		n.State = StateWFC
		require.NoError(t, os.MkdirAll(filepath.Dir(n.SocketPath), 0o755))
		require.NoError(t, os.WriteFile(n.SocketPath, nil, 0o600))
	}
	assert.Same(t, tbl.Nodes[1], tbl.FindFree())
}

func TestLookupByPID(t *testing.T) {
	tbl := NewTable("/bbs", 2)
	tbl.Nodes[1].WorkerPID = 4242
	tbl.Nodes[0].BridgePID = 99

	assert.Same(t, tbl.Nodes[1], tbl.ByWorkerPID(4242))
	assert.Nil(t, tbl.ByWorkerPID(1))
	assert.Nil(t, tbl.ByWorkerPID(0))
	assert.Same(t, tbl.Nodes[0], tbl.ByBridgePID(99))
	assert.Nil(t, tbl.ByBridgePID(0))
}

func TestCounts(t *testing.T) {
	tbl := NewTable("/bbs", 4)
	tbl.Nodes[0].State = StateConnected
	tbl.Nodes[1].State = StateWFC
	tbl.Nodes[2].State = StateWFC
	online, waiting := tbl.Counts()
	assert.Equal(t, 1, online)
	assert.Equal(t, 2, waiting)
}
