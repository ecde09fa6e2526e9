package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/LimpingNinja/maxtel/internal/nodes"
)

// Config-editor handoff. The sibling editor takes over the controlling
// terminal while telnet service keeps running; the supervisor silences its
// own stdio so a stray write cannot clobber the editor's screen.

type handoffState struct {
	savedStdout int
	savedStderr int
}

var handoff = handoffState{savedStdout: -1, savedStderr: -1}

// launchEditor starts the configuration editor and enters config mode.
// While the editor runs the supervisor keeps ticking but does no UI work.
func (s *Supervisor) launchEditor() {
	if s.editorPID != 0 {
		return // already running
	}

	editorPath := filepath.Join(s.cfg.BaseDir, "bin", "maxcfg")

	if err := s.ui.Suspend(); err != nil {
		s.log.Error().Err(err).Msg("editor: suspend display")
		return
	}

	cmd := exec.Command(editorPath)
	cmd.Dir = s.cfg.BaseDir
	cmd.Env = nodes.WorkerEnv(os.Environ(), s.cfg.BaseDir, s.cfg.ConfigPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		s.log.Error().Err(err).Str("path", editorPath).Msg("editor: start")
		_ = s.ui.Resume()
		return
	}
	_ = cmd.Process.Release()
	s.editorPID = cmd.Process.Pid
	s.log.Info().Int("pid", s.editorPID).Msg("config editor launched")

	// Editor owns the terminal now; mute our stdio until it returns.
	muteStdio()
}

// editorReturned restores the terminal after the editor exits.
func (s *Supervisor) editorReturned() {
	s.log.Info().Int("pid", s.editorPID).Msg("config editor exited")
	s.editorPID = 0
	restoreStdio()
	if err := s.ui.Resume(); err != nil {
		s.log.Error().Err(err).Msg("editor: resume display")
	}
}

func muteStdio() {
	if handoff.savedStdout < 0 {
		if fd, err := unix.Dup(int(os.Stdout.Fd())); err == nil {
			handoff.savedStdout = fd
		}
	}
	if handoff.savedStderr < 0 {
		if fd, err := unix.Dup(int(os.Stderr.Fd())); err == nil {
			handoff.savedStderr = fd
		}
	}
	null, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return
	}
	defer null.Close()
	_ = unix.Dup2(int(null.Fd()), int(os.Stdout.Fd()))
	_ = unix.Dup2(int(null.Fd()), int(os.Stderr.Fd()))
}

func restoreStdio() {
	if handoff.savedStdout >= 0 {
		_ = unix.Dup2(handoff.savedStdout, int(os.Stdout.Fd()))
		_ = unix.Close(handoff.savedStdout)
		handoff.savedStdout = -1
	}
	if handoff.savedStderr >= 0 {
		_ = unix.Dup2(handoff.savedStderr, int(os.Stderr.Fd()))
		_ = unix.Close(handoff.savedStderr)
		handoff.savedStderr = -1
	}
}
