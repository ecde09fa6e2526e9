// Package bridge implements the per-caller child that ferries bytes between
// an accepted TCP connection and a node's Unix-domain rendezvous socket.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/LimpingNinja/maxtel/internal/telnet"
)

// Options configures one bridge run.
type Options struct {
	SocketPath string // node UDS to dial
	CapsPath   string // where the terminal capability record goes
}

// Serve negotiates with the caller on conn, publishes its terminal caps,
// dials the node socket, and pumps bytes until either side closes.
func Serve(conn net.Conn, opts Options) error {
	caps := telnet.Negotiate(conn)
	if err := caps.WriteFile(opts.CapsPath); err != nil {
		return err
	}

	sock, err := net.Dial("unix", opts.SocketPath)
	if err != nil {
		return fmt.Errorf("bridge: dial node: %w", err)
	}
	defer sock.Close()

	return Pump(conn, sock, caps.Telnet)
}

// Pump runs the two-way copy. With telnetMode set, caller-side input has
// telnet commands stripped (IAC IAC unescapes) and engine output has IAC
// bytes doubled on the way out.
func Pump(caller, node net.Conn, telnetMode bool) error {
	var g errgroup.Group

	g.Go(func() error {
		defer closeWrite(node)
		var strip iacStripper
		buf := make([]byte, 4096)
		for {
			n, err := caller.Read(buf)
			if n > 0 {
				data := buf[:n]
				if telnetMode {
					data = strip.Strip(data)
				}
				if werr := writeAll(node, data); werr != nil {
					return werr
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	})

	g.Go(func() error {
		defer closeWrite(caller)
		buf := make([]byte, 4096)
		for {
			n, err := node.Read(buf)
			if n > 0 {
				data := buf[:n]
				if telnetMode {
					data = iacEscape(data)
				}
				if werr := writeAll(caller, data); werr != nil {
					return werr
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

// writeAll retries short writes until everything is flushed or the
// connection errors.
func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

type closeWriter interface {
	CloseWrite() error
}

// closeWrite half-closes where possible so the peer sees EOF promptly; a
// full close is the fallback.
func closeWrite(conn net.Conn) {
	if cw, ok := conn.(closeWriter); ok {
		_ = cw.CloseWrite()
		return
	}
	_ = conn.Close()
}

// ConnFD is the inherited file descriptor carrying the accepted TCP socket
// in the re-exec'd bridge child (stdin, stdout, stderr, then the socket).
const ConnFD = 3

// InheritedConn recovers the caller connection passed by the supervisor.
func InheritedConn() (net.Conn, error) {
	f := os.NewFile(uintptr(ConnFD), "caller")
	if f == nil {
		return nil, errors.New("bridge: no inherited socket")
	}
	defer f.Close()
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("bridge: inherited socket: %w", err)
	}
	return conn, nil
}
