// Package reaper collects child exit notifications for the supervisor. The
// signal handler side only forwards events; all node bookkeeping stays on
// the supervisor goroutine.
package reaper

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Exit is one reaped child.
type Exit struct {
	PID    int
	Status unix.WaitStatus
}

// Fatal reports whether the exit must be classified as a node failure:
// death by signal, or the engine's unrecoverable-error exit code.
func (e Exit) Fatal() bool {
	if e.Status.Signaled() {
		return true
	}
	return e.Status.Exited() && e.Status.ExitStatus() == 3
}

// Reaper drains SIGCHLD into a channel of Exit events.
type Reaper struct {
	Exits  chan Exit
	sigch  chan os.Signal
	stopch chan struct{}
}

// Start installs the SIGCHLD listener and begins draining. The returned
// reaper keeps collecting until Stop.
func Start() *Reaper {
	r := &Reaper{
		Exits:  make(chan Exit, 64),
		sigch:  make(chan os.Signal, 16),
		stopch: make(chan struct{}),
	}
	signal.Notify(r.sigch, unix.SIGCHLD)
	go r.loop()
	return r
}

func (r *Reaper) loop() {
	for {
		select {
		case <-r.stopch:
			return
		case <-r.sigch:
			r.drain()
		}
	}
}

// drain reaps every ready child without blocking. One SIGCHLD can stand for
// several exits.
func (r *Reaper) drain() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
		select {
		case r.Exits <- Exit{PID: pid, Status: status}:
		case <-r.stopch:
			return
		}
	}
}

// Stop removes the signal listener. Pending events stay readable.
func (r *Reaper) Stop() {
	signal.Stop(r.sigch)
	close(r.stopch)
}
