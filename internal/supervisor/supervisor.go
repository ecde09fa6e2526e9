// Package supervisor owns the node table and runs the main event loop:
// listener admission, child exits, retry timers, display refresh, and
// operator commands. All structural mutation of node state happens on this
// goroutine; the reaper and UI only feed it channels.
package supervisor

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/LimpingNinja/maxtel/internal/bbsfiles"
	"github.com/LimpingNinja/maxtel/internal/bridge"
	"github.com/LimpingNinja/maxtel/internal/config"
	"github.com/LimpingNinja/maxtel/internal/nodes"
	"github.com/LimpingNinja/maxtel/internal/reaper"
	"github.com/LimpingNinja/maxtel/internal/ui"
)

const (
	tickInterval = 100 * time.Millisecond
	spawnStagger = 100 * time.Millisecond
	killGrace    = 100 * time.Millisecond

	busyMessage = "\r\nSorry, all nodes are busy. Please try again later.\r\n"
)

// Supervisor is the single owner of the node table.
type Supervisor struct {
	cfg   config.Settings
	info  config.SystemInfo
	log   zerolog.Logger
	table *nodes.Table
	ui    ui.UI
	exe   string // self path for bridge re-exec

	listener *net.TCPListener
	conns    chan *net.TCPConn
	reap     *reaper.Reaper
	sigs     chan os.Signal

	shown      *sigSet
	start      time.Time
	peakOnline int

	editorPID int

	running bool
}

// New wires a supervisor. cfg.BaseDir must already be absolute.
func New(cfg config.Settings, info config.SystemInfo, log zerolog.Logger, disp ui.UI) (*Supervisor, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("supervisor: self path: %w", err)
	}

	addr := &net.TCPAddr{Port: cfg.Port}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("supervisor: listen port %d: %w", cfg.Port, err)
	}

	return &Supervisor{
		cfg:      cfg,
		info:     info,
		log:      log,
		table:    nodes.NewTable(cfg.BaseDir, cfg.Nodes),
		ui:       disp,
		exe:      exe,
		listener: ln,
		conns:    make(chan *net.TCPConn, 8),
		shown:    newSigSet(),
		start:    time.Now(),
	}, nil
}

// Run is the main loop. It returns after a clean shutdown.
func (s *Supervisor) Run() error {
	s.running = true
	s.reap = reaper.Start()
	defer s.reap.Stop()

	s.sigs = make(chan os.Signal, 2)
	notifyShutdown(s.sigs)

	go s.acceptLoop()

	// Spawn the initial complement, staggered so the workers do not trample
	// each other's startup I/O.
	for _, n := range s.table.Nodes {
		s.spawn(n)
		time.Sleep(spawnStagger)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for s.running {
		select {
		case <-s.sigs:
			s.log.Info().Msg("shutdown signal")
			s.running = false

		case conn := <-s.conns:
			s.admit(conn)

		case ev := <-s.reap.Exits:
			s.handleExit(ev)

		case cmd := <-s.ui.Commands():
			s.handleCommand(cmd)

		case <-ticker.C:
			s.tick()
		}
	}

	s.shutdown()
	return nil
}

func (s *Supervisor) acceptLoop() {
	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			return // listener closed
		}
		s.conns <- conn
	}
}

// admit pairs an incoming caller with a free node or refuses it.
func (s *Supervisor) admit(conn *net.TCPConn) {
	peer := "?"
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		peer = addr.IP.String()
	}

	node := s.table.FindFree()
	if node == nil {
		s.log.Info().Str("peer", peer).Msg("refused: all nodes busy")
		_, _ = conn.Write([]byte(busyMessage))
		_ = conn.Close()
		return
	}

	file, err := conn.File()
	// The parent's copy is done either way once the child holds the fd.
	_ = conn.Close()
	if err != nil {
		s.log.Error().Err(err).Msg("admit: dup socket")
		return
	}
	defer file.Close()

	cmd := bridge.Command(s.exe, file, bridge.Options{
		SocketPath: node.SocketPath,
		CapsPath:   nodes.CapsPath(s.cfg.BaseDir, node.Num),
	})
	if err := cmd.Start(); err != nil {
		s.log.Error().Err(err).Int("node", node.Num).Msg("admit: bridge start")
		return
	}
	_ = cmd.Process.Release()

	node.BridgePID = cmd.Process.Pid
	node.State = nodes.StateConnected
	node.ConnectTime = time.Now()
	node.Activity = "Connected from " + peer
	s.log.Info().Int("node", node.Num).Str("peer", peer).Int("bridge", node.BridgePID).
		Msg("caller connected")
}

// handleExit routes one reaped pid to its owner.
func (s *Supervisor) handleExit(ev reaper.Exit) {
	if s.editorPID != 0 && ev.PID == s.editorPID {
		s.editorReturned()
		return
	}

	if n := s.table.ByWorkerPID(ev.PID); n != nil {
		n.ExitPending = true
		n.ExitStatus = int(ev.Status)
		n.WorkerPID = 0
		if n.State != nodes.StateStopping {
			if ev.Fatal() {
				n.State = nodes.StateFailed
			} else {
				n.State = nodes.StateInactive
			}
		}
		s.log.Info().Int("node", n.Num).Int("pid", ev.PID).
			Str("state", n.State.String()).Msg("worker exit")
		return
	}

	if n := s.table.ByBridgePID(ev.PID); n != nil {
		n.BridgePID = 0
		if n.State == nodes.StateConnected {
			n.State = nodes.StateWFC
		}
		n.Username = ""
		n.Activity = ""
		n.ConnectTime = time.Time{}
		s.log.Info().Int("node", n.Num).Int("pid", ev.PID).Msg("caller disconnected")
	}
}

// tick runs the periodic node maintenance and pushes a frame to the UI.
func (s *Supervisor) tick() {
	now := time.Now()

	for _, n := range s.table.Nodes {
		n.DrainPty()

		// The worker signals readiness by creating its rendezvous socket.
		if n.State == nodes.StateStarting {
			if _, err := os.Stat(n.SocketPath); err == nil {
				n.State = nodes.StateWFC
				s.log.Info().Int("node", n.Num).Msg("node ready")
			}
		}

		if n.State == nodes.StateConnected {
			path := nodes.LastUserPath(s.cfg.BaseDir, n.Num)
			if name := bbsfiles.ReadDisplayName(path, s.info.AliasMode, n.ConnectTime); name != "" {
				n.Username = name
			}
		} else if n.State == nodes.StateWFC && n.Username != "" {
			n.Username = ""
		}
	}

	s.processExits(now)
	s.respawnPass(now)

	online, _ := s.table.Counts()
	if online > s.peakOnline {
		s.peakOnline = online
	}

	s.ui.Render(s.buildFrame(now))
}

// processExits finishes the bookkeeping for workers the reaper saw die:
// release the PTY, remove the rendezvous, classify, schedule retries, post
// a popup for new failure signatures.
func (s *Supervisor) processExits(now time.Time) {
	for _, n := range s.table.Nodes {
		if !n.ExitPending {
			continue
		}
		n.ExitPending = false

		if n.State == nodes.StateStopping {
			n.ClosePty()
			_ = os.Remove(n.SocketPath)
			_ = os.Remove(n.LockPath)
			n.State = nodes.StateInactive
			n.Username = ""
			n.Activity = ""
			n.NextRetryTime = time.Time{}
			s.log.Info().Int("node", n.Num).Msg("node stopped")
			continue
		}

		n.DrainPty()
		n.ClosePty()
		_ = os.Remove(n.SocketPath)
		_ = os.Remove(n.LockPath)

		status := unix.WaitStatus(n.ExitStatus)
		fatal := reaper.Exit{Status: status}.Fatal()

		if !fatal {
			n.State = nodes.StateInactive
			n.Username = ""
			n.Activity = ""
			n.NextRetryTime = time.Time{}
			continue
		}

		n.State = nodes.StateFailed
		n.Username = ""
		n.FailCount++

		if n.LastError == "" {
			switch {
			case status.Exited():
				n.LastError = fmt.Sprintf("Engine exited (code %d).", status.ExitStatus())
			case status.Signaled():
				n.LastError = fmt.Sprintf("Engine died (signal %d).", int(status.Signal()))
			default:
				n.LastError = "Engine exited."
			}
		}

		if n.RetryCount < nodes.MaxRetries {
			n.RetryCount++
			delay, _ := nodes.NextRetryDelay(n.RetryCount)
			n.NextRetryTime = now.Add(delay)
			n.Activity = fmt.Sprintf("Retry in %ds", int(delay.Seconds()))
		} else {
			n.NextRetryTime = time.Time{}
			n.Activity = "Manual restart"
		}

		s.log.Error().Int("node", n.Num).Str("error", n.LastError).
			Int("retry", n.RetryCount).Msg("node failed")

		if !n.ErrorShown {
			n.ErrorShown = true
			var exitLine string
			switch {
			case status.Exited():
				exitLine = fmt.Sprintf("Exit code: %d", status.ExitStatus())
			case status.Signaled():
				exitLine = fmt.Sprintf("Signal: %d", int(status.Signal()))
			default:
				exitLine = "Exit: unknown"
			}
			if s.shown.isNew(n.LastError) {
				s.ui.PostPopup("Node Failed",
					fmt.Sprintf("Node %d failed\n%s\n%s", n.Num, exitLine, n.LastError))
			}
		}
	}
}

// respawnPass restarts whatever is due: idle nodes immediately, failed
// nodes when their retry timer elapses, and demotes starting nodes whose
// worker vanished without a SIGCHLD we saw.
func (s *Supervisor) respawnPass(now time.Time) {
	for _, n := range s.table.Nodes {
		switch {
		case n.State == nodes.StateInactive && n.WorkerPID == 0:
			s.spawn(n)
		case n.State == nodes.StateFailed && n.WorkerPID == 0 &&
			!n.NextRetryTime.IsZero() && !now.Before(n.NextRetryTime):
			s.spawn(n)
		case n.State == nodes.StateStopping && n.WorkerPID == 0 && !n.ExitPending:
			n.State = nodes.StateInactive
			s.log.Info().Int("node", n.Num).Msg("node stopped")
		case n.State == nodes.StateStarting && n.WorkerPID > 0 && !n.WorkerAlive():
			n.WorkerPID = 0
			n.State = nodes.StateInactive
			s.log.Info().Int("node", n.Num).Msg("worker vanished while starting")
		}
	}
}

func (s *Supervisor) spawn(n *nodes.Node) {
	err := nodes.Spawn(n, nodes.SpawnConfig{
		BaseDir:    s.cfg.BaseDir,
		EnginePath: s.cfg.EnginePath,
		ConfigPath: s.cfg.ConfigPath,
	})
	if err != nil {
		s.log.Error().Err(err).Int("node", n.Num).Msg("spawn failed")
		return
	}
	s.log.Info().Int("node", n.Num).Int("pid", n.WorkerPID).Msg("worker spawned")
}

func (s *Supervisor) handleCommand(cmd ui.Command) {
	switch cmd.Kind {
	case ui.CmdQuit:
		s.running = false
	case ui.CmdKill:
		s.kill(cmd.Node)
	case ui.CmdRestart:
		s.restart(cmd.Node)
	case ui.CmdSnoop:
		s.snoop(cmd.Node)
	case ui.CmdConfig:
		s.launchEditor()
	}
}

// kill stops a node's caller and worker. Back-off bookkeeping is left
// alone: a later abnormal exit still honours it.
func (s *Supervisor) kill(idx int) {
	if idx < 0 || idx >= len(s.table.Nodes) {
		return
	}
	n := s.table.Nodes[idx]
	if n.State == nodes.StateInactive && n.WorkerPID == 0 {
		return
	}
	s.log.Info().Int("node", n.Num).Msg("operator kill")

	if n.BridgePID > 0 {
		_ = unix.Kill(n.BridgePID, unix.SIGTERM)
		_ = unix.Kill(n.BridgePID, unix.SIGKILL)
		n.BridgePID = 0
	}
	if n.WorkerPID > 0 {
		_ = unix.Kill(n.WorkerPID, unix.SIGTERM)
		time.Sleep(killGrace)
		_ = unix.Kill(n.WorkerPID, unix.SIGKILL)
	}
	n.ClosePty()
	_ = os.Remove(n.SocketPath)
	n.State = nodes.StateStopping
}

// restart resets retry bookkeeping and cycles the node.
func (s *Supervisor) restart(idx int) {
	if idx < 0 || idx >= len(s.table.Nodes) {
		return
	}
	n := s.table.Nodes[idx]
	s.log.Info().Int("node", n.Num).Msg("operator restart")

	n.RetryCount = 0
	n.NextRetryTime = time.Time{}

	if n.State == nodes.StateInactive || n.WorkerPID == 0 {
		n.State = nodes.StateInactive
		s.spawn(n)
		return
	}
	s.kill(idx)
}

// shutdown tears everything down abruptly; children tolerate it.
func (s *Supervisor) shutdown() {
	s.log.Info().Msg("shutting down")
	_ = s.listener.Close()

	for _, n := range s.table.Nodes {
		if n.BridgePID > 0 {
			_ = unix.Kill(n.BridgePID, unix.SIGKILL)
			n.BridgePID = 0
		}
		if n.WorkerPID > 0 {
			_ = unix.Kill(n.WorkerPID, unix.SIGKILL)
			n.WorkerPID = 0
		}
		n.ClosePty()
		_ = os.Remove(n.SocketPath)
		_ = os.Remove(n.LockPath)
	}

	// Best-effort reap of whatever just died.
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if pid <= 0 || err != nil {
			break
		}
	}

	s.ui.Close()
	s.log.Info().Msg("shutdown complete")
}

// buildFrame snapshots display state for the UI.
func (s *Supervisor) buildFrame(now time.Time) ui.Frame {
	f := ui.Frame{
		Port:       s.cfg.Port,
		Info:       s.info,
		Stats:      bbsfiles.ReadStats(s.cfg.BaseDir),
		StartTime:  s.start,
		PeakOnline: s.peakOnline,
	}
	f.Online, f.Waiting = s.table.Counts()

	for _, n := range s.table.Nodes {
		user := n.Username
		switch {
		case n.State == nodes.StateWFC:
			user = "<waiting>"
		case n.State == nodes.StateFailed:
			user = "<failed>"
		case n.State == nodes.StateConnected && user == "":
			user = "Log-on"
		}
		f.Rows = append(f.Rows, ui.NodeRow{
			Num:      n.Num,
			State:    n.State,
			User:     user,
			Activity: n.Activity,
			Clock:    ui.SessionClock(n.ConnectTime, now),
		})
	}

	// The current-user panel follows the first caller with a known name.
	for _, n := range s.table.Nodes {
		if n.State != nodes.StateConnected || n.Username == "" {
			continue
		}
		u, err := bbsfiles.ReadUser(nodes.LastUserPath(s.cfg.BaseDir, n.Num))
		if err == nil {
			f.User = u
			f.UserValid = true
		}
		break
	}

	if path := bbsfiles.ResolveLogPath(s.cfg.BaseDir, s.info.CallersPath); path != "" {
		if callers, err := bbsfiles.ReadLastCallers(path, 10); err == nil {
			f.Callers = callers
		}
	}
	if s.info.UserPath != "" {
		f.UserCount = bbsfiles.CountUsers(bbsfiles.ResolveLogPath(s.cfg.BaseDir, s.info.UserPath))
	}

	return f
}
