package bbsfiles

import (
	"encoding/binary"
	"os"
	"path/filepath"
)

// Counter-snapshot layout, written by whichever node updates the global
// stats last.
const (
	bbstatTotalOff     = 0
	bbstatTodayOff     = 4
	bbstatMsgsOff      = 8
	bbstatDownloadsOff = 12

	bbstatMinLen = 16
)

// Stats is the global counter snapshot used by the sidebar.
type Stats struct {
	TotalCalls   uint32
	TodayCallers uint16
	MsgsWritten  uint32
	TotalDL      uint32
}

// ReadStats loads the snapshot from the node-00 directory, falling back to
// node 01 when the engine has not created the shared copy yet.
func ReadStats(base string) Stats {
	for _, dir := range []string{"00", "01"} {
		path := filepath.Join(base, "run", "node", dir, "bbstat.bbs")
		if s, ok := readStatsFile(path); ok {
			return s
		}
	}
	return Stats{}
}

func readStatsFile(path string) (Stats, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) < bbstatMinLen {
		return Stats{}, false
	}
	le := binary.LittleEndian
	return Stats{
		TotalCalls:   le.Uint32(data[bbstatTotalOff:]),
		TodayCallers: le.Uint16(data[bbstatTodayOff:]),
		MsgsWritten:  le.Uint32(data[bbstatMsgsOff:]),
		TotalDL:      le.Uint32(data[bbstatDownloadsOff:]),
	}, true
}

// EncodeStats renders a snapshot; used by tests.
func EncodeStats(s Stats) []byte {
	buf := make([]byte, bbstatMinLen)
	le := binary.LittleEndian
	le.PutUint32(buf[bbstatTotalOff:], s.TotalCalls)
	le.PutUint16(buf[bbstatTodayOff:], s.TodayCallers)
	le.PutUint32(buf[bbstatMsgsOff:], s.MsgsWritten)
	le.PutUint32(buf[bbstatDownloadsOff:], s.TotalDL)
	return buf
}
