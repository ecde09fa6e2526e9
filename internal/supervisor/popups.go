package supervisor

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// maxShownSigs bounds the remembered crash signatures; old ones age out so
// a recurring failure can alert again much later.
const maxShownSigs = 16

// sigSet deduplicates failure popups by crash signature.
type sigSet struct {
	sigs  [maxShownSigs]string
	count int
}

func newSigSet() *sigSet { return &sigSet{} }

// isNew records sig and reports whether it had not been seen before. Empty
// signatures are always "new" but never stored.
func (s *sigSet) isNew(sig string) bool {
	if sig == "" {
		return true
	}
	n := s.count
	if n > maxShownSigs {
		n = maxShownSigs
	}
	for i := 0; i < n; i++ {
		if s.sigs[i] == sig {
			return false
		}
	}
	s.sigs[s.count%maxShownSigs] = sig
	s.count++
	return true
}

func notifyShutdown(ch chan os.Signal) {
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
}
