package bridge

import (
	"os"
	"os/exec"
)

// Command builds the re-exec of the supervisor binary in bridge mode. The
// accepted TCP socket rides along as inherited fd 3; everything else is
// plain argv.
func Command(exe string, connFile *os.File, opts Options) *exec.Cmd {
	cmd := exec.Command(exe,
		"-bridge",
		"-bridge-socket", opts.SocketPath,
		"-bridge-caps", opts.CapsPath,
	)
	cmd.ExtraFiles = []*os.File{connFile}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd
}
