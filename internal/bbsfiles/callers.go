package bbsfiles

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
)

// Caller-log record layout. The log is append-only, one fixed record per
// session event.
const (
	CallerRecordSize = 96

	callerNameOff  = 0
	callerNameLen  = 36
	callerCityOff  = 36
	callerCityLen  = 36
	callerCallsOff = 72
	callerTaskOff  = 74
	callerFlagsOff = 76
	callerLoginOff = 78
)

// CallLogon marks records that represent a completed logon; everything else
// (failed passwords, events) is skipped by the display.
const CallLogon = 0x8000

// Caller is one caller-log entry.
type Caller struct {
	Name  string
	City  string
	Calls uint16
	Task  uint16 // node number
	Flags uint16
	Login Stamp
}

// Logon reports whether this record is a completed logon.
func (c Caller) Logon() bool { return c.Flags&CallLogon != 0 }

func decodeCaller(rec []byte) Caller {
	le := binary.LittleEndian
	return Caller{
		Name:  cstr(rec[callerNameOff : callerNameOff+callerNameLen]),
		City:  cstr(rec[callerCityOff : callerCityOff+callerCityLen]),
		Calls: le.Uint16(rec[callerCallsOff:]),
		Task:  le.Uint16(rec[callerTaskOff:]),
		Flags: le.Uint16(rec[callerFlagsOff:]),
		Login: Stamp{
			Date: le.Uint16(rec[callerLoginOff:]),
			Time: le.Uint16(rec[callerLoginOff+2:]),
		},
	}
}

// EncodeCaller renders a record; used by tests.
func EncodeCaller(c Caller) []byte {
	rec := make([]byte, CallerRecordSize)
	copy(rec[callerNameOff:callerNameOff+callerNameLen-1], c.Name)
	copy(rec[callerCityOff:callerCityOff+callerCityLen-1], c.City)
	le := binary.LittleEndian
	le.PutUint16(rec[callerCallsOff:], c.Calls)
	le.PutUint16(rec[callerTaskOff:], c.Task)
	le.PutUint16(rec[callerFlagsOff:], c.Flags)
	le.PutUint16(rec[callerLoginOff:], c.Login.Date)
	le.PutUint16(rec[callerLoginOff+2:], c.Login.Time)
	return rec
}

// ResolveLogPath expands the configured caller-log path the way the engine
// does: relative paths hang off the base dir, and a bare filename gains the
// .bbs extension.
func ResolveLogPath(base, configured string) string {
	if configured == "" {
		return ""
	}
	path := configured
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	if !strings.Contains(filepath.Base(path), ".") {
		path += ".bbs"
	}
	return path
}

// ReadLastCallers returns up to max trailing records, newest first.
func ReadLastCallers(path string, max int) ([]Caller, error) {
	st, err := os.Stat(path)
	if err != nil || st.Size() < CallerRecordSize {
		return nil, err
	}

	total := int(st.Size() / CallerRecordSize)
	n := total
	if n > max {
		n = max
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n*CallerRecordSize)
	if c, err := f.ReadAt(buf, int64((total-n)*CallerRecordSize)); c < len(buf) && err != nil {
		return nil, err
	}

	out := make([]Caller, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, decodeCaller(buf[i*CallerRecordSize:(i+1)*CallerRecordSize]))
	}
	return out, nil
}
