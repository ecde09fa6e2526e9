package telnet

import (
	"net"
	"time"
)

// Probe timings. The initial windows come from the wire behavior the engine's
// callers already expect; the idle padding collects stragglers after the
// first response byte.
const (
	telnetProbeWait = 150 * time.Millisecond
	ansiProbeWait   = 200 * time.Millisecond
	optionWait      = 200 * time.Millisecond
	sizeProbeWait   = 300 * time.Millisecond
	idleWait        = 50 * time.Millisecond
)

// drain reads whatever the peer sends within initial, then keeps reading
// while bytes keep arriving within idleWait of each other. It never blocks
// past its deadlines and tolerates EOF.
func drain(conn net.Conn, buf []byte, initial time.Duration) int {
	total := 0
	wait := initial
	for total < len(buf) {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		n, err := conn.Read(buf[total:])
		if n > 0 {
			total += n
			wait = idleWait
		}
		if err != nil {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})
	return total
}

// Negotiate runs the full detection sequence against a fresh caller and
// returns its terminal capabilities. Failures never abort the connection;
// they degrade toward a raw 80x24 terminal. All probe responses are drained
// before the caller of Negotiate starts pumping session data.
func Negotiate(conn net.Conn) Caps {
	caps := DefaultCaps()
	buf := make([]byte, 512)

	_, _ = conn.Write([]byte("\r\nDetecting terminal... "))

	// Telnet probe: a telnet client answers IAC DO SGA with an IAC sequence.
	_, _ = conn.Write([]byte{IAC, DO, OptSGA})
	n := drain(conn, buf, telnetProbeWait)
	if ContainsIAC(buf[:n]) {
		caps.Telnet = true
		caps.Ansi = true
	}

	if !caps.Telnet {
		// ANSI probe: DSR cursor position.
		_, _ = conn.Write([]byte{0x1b, '[', '6', 'n'})
		n = drain(conn, buf, ansiProbeWait)
		caps.Ansi = ContainsCSI(buf[:n])
	}

	_, _ = conn.Write([]byte("\x1b[2K\rDetecting terminal..."))
	switch {
	case caps.Telnet && caps.Ansi:
		_, _ = conn.Write([]byte(" Telnet+ANSI\r\n"))
	case caps.Telnet:
		_, _ = conn.Write([]byte(" Telnet\r\n"))
	case caps.Ansi:
		_, _ = conn.Write([]byte(" ANSI\r\n"))
	default:
		_, _ = conn.Write([]byte(" Raw\r\n"))
	}

	var st NegState
	if caps.Telnet {
		_, _ = conn.Write([]byte{
			IAC, DONT, OptEnviron,
			IAC, WILL, OptEcho,
			IAC, WILL, OptSGA,
			IAC, DO, OptTTYPE,
			IAC, DO, OptNAWS,
		})
		n = drain(conn, buf, optionWait)
		st.ParseNegotiation(buf[:n])

		if st.WillTType && st.TermType == "" {
			_, _ = conn.Write([]byte{IAC, SB, OptTTYPE, TTypeSend, IAC, SE})
			n = drain(conn, buf, optionWait)
			st.ParseNegotiation(buf[:n])
		}

		if st.HasCols {
			caps.Width = st.Cols
		}
		if st.HasRows {
			caps.Height = st.Rows
		}
	}

	// When NAWS did not supply dimensions, fall back to the ANSI probes.
	needSize := (caps.Telnet && (!st.HasCols || !st.HasRows)) ||
		(!caps.Telnet && caps.Ansi)
	if needSize {
		if cols, rows, ok := probeSize(conn, buf); ok {
			caps.Width = cols
			caps.Height = rows
		}
	}

	return caps
}

// probeSize asks the terminal for its size, first with DSR-18t, then with
// the save/jump-to-999;999/report/restore trick.
func probeSize(conn net.Conn, buf []byte) (cols, rows int, ok bool) {
	_, _ = conn.Write([]byte("\x1b[18t"))
	n := drain(conn, buf, sizeProbeWait)
	if cols, rows, ok = ParseSizeReport(buf[:n]); ok {
		return cols, rows, true
	}

	_, _ = conn.Write([]byte("\x1b[s\x1b[999;999H\x1b[6n\x1b[u"))
	n = drain(conn, buf, sizeProbeWait)
	if cols, rows, ok = ParseCursorReport(buf[:n]); ok {
		return cols, rows, true
	}
	return 0, 0, false
}
