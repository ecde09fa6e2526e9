package supervisor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/LimpingNinja/maxtel/internal/nodes"
)

// Snoop attaches the operator terminal to a node's PTY: engine output is
// mirrored to the screen and keystrokes are injected into the session.
// F1 leaves snoop, F2 sends ESC c to the engine, everything else passes
// through. Local-TTY only.

func (s *Supervisor) snoop(idx int) {
	if idx < 0 || idx >= len(s.table.Nodes) {
		return
	}
	n := s.table.Nodes[idx]
	if n.PtyMaster == nil {
		return
	}

	if err := s.ui.Suspend(); err != nil {
		s.log.Error().Err(err).Msg("snoop: suspend display")
		return
	}
	defer func() {
		if err := s.ui.Resume(); err != nil {
			s.log.Error().Err(err).Msg("snoop: resume display")
		}
	}()

	stdin := int(os.Stdin.Fd())
	saved, err := term.MakeRaw(stdin)
	if err != nil {
		s.log.Error().Err(err).Msg("snoop: raw mode")
		return
	}
	defer func() { _ = term.Restore(stdin, saved) }()

	fmt.Print("\x1b[2J\x1b[H")
	header := fmt.Sprintf("[SNOOP: Node %d", n.Num)
	if n.Username != "" {
		header += " - " + n.Username
	}
	fmt.Printf("\x1b[7m%s - F1=Exit F2=Alt-C]\x1b[0m\r\n", header)

	s.log.Info().Int("node", n.Num).Msg("snoop start")
	snoopLoop(stdin, n)
	s.log.Info().Int("node", n.Num).Msg("snoop end")

	fmt.Print("\x1b[2J\x1b[H")
}

// snoopLoop pumps both directions from one poll loop, like the engine's own
// console code: no goroutines touch the PTY while the operator is attached.
func snoopLoop(stdin int, n *nodes.Node) {
	sc, err := n.PtyMaster.SyscallConn()
	if err != nil {
		return
	}

	_ = sc.Control(func(ptyFd uintptr) {
		fds := []unix.PollFd{
			{Fd: int32(stdin), Events: unix.POLLIN},
			{Fd: int32(ptyFd), Events: unix.POLLIN},
		}
		buf := make([]byte, 4096)

		for {
			for i := range fds {
				fds[i].Revents = 0
			}
			c, err := unix.Poll(fds, 50)
			if err != nil && err != unix.EINTR {
				return
			}
			if c <= 0 {
				continue
			}

			// Engine output to the operator display.
			if fds[1].Revents&(unix.POLLIN|unix.POLLHUP) != 0 {
				c, err := unix.Read(int(ptyFd), buf)
				if c > 0 {
					_, _ = os.Stdout.Write(buf[:c])
				} else if err != unix.EAGAIN {
					return
				}
			}

			// Operator keys into the session.
			if fds[0].Revents&unix.POLLIN != 0 {
				c, _ := unix.Read(stdin, buf)
				if c <= 0 {
					continue
				}
				key := buf[:c]

				// A lone ESC may be the start of a function key; wait
				// briefly for the rest of the sequence.
				if c == 1 && key[0] == 0x1b {
					extra := []unix.PollFd{{Fd: int32(stdin), Events: unix.POLLIN}}
					if p, _ := unix.Poll(extra, 50); p > 0 {
						if c2, _ := unix.Read(stdin, buf[1:]); c2 > 0 {
							key = buf[:1+c2]
						}
					}
				}

				switch {
				case isF1(key):
					return
				case isF2(key):
					_, _ = unix.Write(int(ptyFd), []byte{0x1b, 'c'})
				default:
					_, _ = unix.Write(int(ptyFd), key)
				}
			}
		}
	})
}

// F1 arrives as ESC O P or ESC [ 1 1 ~ depending on the terminal.
func isF1(key []byte) bool {
	if len(key) >= 3 && key[0] == 0x1b && key[1] == 'O' && key[2] == 'P' {
		return true
	}
	return len(key) >= 5 && key[0] == 0x1b && key[1] == '[' &&
		key[2] == '1' && key[3] == '1' && key[4] == '~'
}

// F2 arrives as ESC O Q or ESC [ 1 2 ~.
func isF2(key []byte) bool {
	if len(key) >= 3 && key[0] == 0x1b && key[1] == 'O' && key[2] == 'Q' {
		return true
	}
	return len(key) >= 5 && key[0] == 0x1b && key[1] == '[' &&
		key[2] == '1' && key[3] == '2' && key[4] == '~'
}
