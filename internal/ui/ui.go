// Package ui is the operator surface: a tcell status display with a node
// table, board sidebar, caller history, and failure popups, plus a headless
// stand-in for daemon use.
package ui

import (
	"time"

	"github.com/LimpingNinja/maxtel/internal/bbsfiles"
	"github.com/LimpingNinja/maxtel/internal/config"
	"github.com/LimpingNinja/maxtel/internal/nodes"
)

// CmdKind is an operator request the supervisor must act on. Selection,
// scrolling, and tab switching stay inside the UI.
type CmdKind int

const (
	CmdQuit CmdKind = iota
	CmdKill
	CmdRestart
	CmdSnoop
	CmdConfig
)

// Command pairs a request with the selected node index (0-based; -1 when
// not applicable).
type Command struct {
	Kind CmdKind
	Node int
}

// NodeRow is one line of the node table.
type NodeRow struct {
	Num      int
	State    nodes.State
	User     string
	Activity string
	Clock    string // session time, "--:--" when idle
}

// Frame is everything a render pass needs. The supervisor builds one per
// tick; the UI owns presentation state only.
type Frame struct {
	Port    int
	Rows    []NodeRow
	Online  int
	Waiting int

	Info      config.SystemInfo
	Stats     bbsfiles.Stats
	User      bbsfiles.User
	UserValid bool
	Callers   []bbsfiles.Caller
	UserCount int

	StartTime  time.Time
	PeakOnline int
}

// UI is what the supervisor drives. Implementations: the tcell display and
// the headless no-op.
type UI interface {
	// Commands delivers operator requests; nil for headless.
	Commands() <-chan Command

	// Render presents a frame. Cheap enough to call every tick.
	Render(f Frame)

	// PostPopup overlays a transient failure alert; it auto-dismisses
	// after popupTimeout or on any key.
	PostPopup(title, body string)

	// Suspend releases the terminal (snoop, config editor); Resume takes
	// it back and repaints.
	Suspend() error
	Resume() error

	// Close tears the display down for good.
	Close()
}

const popupTimeout = 10 * time.Second

// Headless renders nothing and emits no commands.
type Headless struct{}

func (Headless) Commands() <-chan Command { return nil }
func (Headless) Render(Frame)             {}
func (Headless) PostPopup(string, string) {}
func (Headless) Suspend() error           { return nil }
func (Headless) Resume() error            { return nil }
func (Headless) Close()                   {}

// SessionClock formats elapsed session time as MM:SS for the node table.
func SessionClock(connected time.Time, now time.Time) string {
	if connected.IsZero() {
		return "--:--"
	}
	d := now.Sub(connected)
	if d < 0 {
		d = 0
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	return pad2(mins) + ":" + pad2(secs)
}

func pad2(v int) string {
	if v > 99 {
		v = 99
	}
	if v < 0 {
		v = 0
	}
	return string([]byte{byte('0' + v/10), byte('0' + v%10)})
}

// Uptime formats supervisor uptime for the stats panel.
func Uptime(start, now time.Time) string {
	d := now.Sub(start)
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return itoa(days) + "d " + pad2(hours) + ":" + pad2(mins)
	}
	return pad2(hours) + ":" + pad2(mins)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
