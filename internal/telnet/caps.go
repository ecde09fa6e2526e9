package telnet

import (
	"fmt"
	"os"
)

// Caps is the terminal capability record published per connection so the
// engine can learn the caller's terminal without redoing negotiation.
type Caps struct {
	Telnet bool
	Ansi   bool
	Rip    bool
	Width  int
	Height int
}

// DefaultCaps is what detection falls back to when nothing answers.
func DefaultCaps() Caps {
	return Caps{Width: 80, Height: 24}
}

func clampDim(v int) int {
	if v < 1 {
		return 1
	}
	if v > 9999 {
		return 9999
	}
	return v
}

// Encode renders the on-disk record format the engine parses at login.
func (c Caps) Encode() []byte {
	return []byte(fmt.Sprintf("Telnet: %d\nAnsi: %d\nRip: %d\nWidth: %d\nHeight: %d\n",
		b2i(c.Telnet), b2i(c.Ansi), b2i(c.Rip), clampDim(c.Width), clampDim(c.Height)))
}

// WriteFile publishes the record at path.
func (c Caps) WriteFile(path string) error {
	if err := os.WriteFile(path, c.Encode(), 0o644); err != nil {
		return fmt.Errorf("telnet: caps: %w", err)
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
