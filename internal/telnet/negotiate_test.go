package telnet

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// scriptedClient keeps the pipe drained (net.Pipe writes are synchronous)
// and answers probes according to respond. It runs until the conn closes.
func scriptedClient(conn net.Conn, respond func(chunk []byte) []byte) {
	buf := make([]byte, 512)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, err := conn.Read(buf)
		if n > 0 && respond != nil {
			if reply := respond(buf[:n]); len(reply) > 0 {
				_, _ = conn.Write(reply)
			}
		}
		if err != nil {
			return
		}
	}
}

func runNegotiate(t *testing.T, respond func(chunk []byte) []byte) Caps {
	t.Helper()
	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		scriptedClient(client, respond)
		close(done)
	}()

	caps := Negotiate(server)
	server.Close()
	<-done
	return caps
}

func TestNegotiateTelnetClient(t *testing.T) {
	// A client that answers the SGA probe with bare IAC IAC and nothing
	// else: classified telnet, ANSI implied, default dimensions.
	caps := runNegotiate(t, func(chunk []byte) []byte {
		if bytes.Contains(chunk, []byte{IAC, DO, OptSGA}) {
			return []byte{IAC, IAC}
		}
		return nil
	})

	assert.True(t, caps.Telnet)
	assert.True(t, caps.Ansi)
	assert.Equal(t, 80, caps.Width)
	assert.Equal(t, 24, caps.Height)
}

func TestNegotiateNAWS(t *testing.T) {
	caps := runNegotiate(t, func(chunk []byte) []byte {
		switch {
		case bytes.Contains(chunk, []byte{IAC, DO, OptSGA}):
			return []byte{IAC, WILL, OptSGA}
		case bytes.Contains(chunk, []byte{IAC, DO, OptNAWS}):
			return []byte{IAC, WILL, OptNAWS, IAC, SB, OptNAWS, 0, 132, 0, 50, IAC, SE}
		}
		return nil
	})

	assert.True(t, caps.Telnet)
	assert.Equal(t, 132, caps.Width)
	assert.Equal(t, 50, caps.Height)
}

func TestNegotiateAnsiOnly(t *testing.T) {
	// No telnet answer; cursor-position reports identify a 80x24 ANSI
	// terminal.
	caps := runNegotiate(t, func(chunk []byte) []byte {
		if bytes.Contains(chunk, []byte("\x1b[6n")) {
			return []byte("\x1b[24;80R")
		}
		return nil
	})

	assert.False(t, caps.Telnet)
	assert.True(t, caps.Ansi)
	assert.Equal(t, 80, caps.Width)
	assert.Equal(t, 24, caps.Height)
}

func TestNegotiateRawClient(t *testing.T) {
	caps := runNegotiate(t, nil)

	assert.False(t, caps.Telnet)
	assert.False(t, caps.Ansi)
	assert.Equal(t, 80, caps.Width)
	assert.Equal(t, 24, caps.Height)
}

func TestNegotiateSizeReport(t *testing.T) {
	caps := runNegotiate(t, func(chunk []byte) []byte {
		switch {
		case bytes.Contains(chunk, []byte{IAC, DO, OptSGA}):
			return []byte{IAC, WILL, OptSGA}
		case bytes.Contains(chunk, []byte("\x1b[18t")):
			return []byte("\x1b[8;60;100t")
		}
		return nil
	})

	assert.True(t, caps.Telnet)
	assert.Equal(t, 100, caps.Width)
	assert.Equal(t, 60, caps.Height)
}
