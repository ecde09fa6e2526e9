package telnet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapsEncode(t *testing.T) {
	c := Caps{Telnet: true, Ansi: true, Width: 132, Height: 50}
	assert.Equal(t, "Telnet: 1\nAnsi: 1\nRip: 0\nWidth: 132\nHeight: 50\n", string(c.Encode()))
}

func TestCapsEncodeRaw(t *testing.T) {
	c := DefaultCaps()
	assert.Equal(t, "Telnet: 0\nAnsi: 0\nRip: 0\nWidth: 80\nHeight: 24\n", string(c.Encode()))
}

func TestCapsEncodeClampsDimensions(t *testing.T) {
	c := Caps{Width: 0, Height: 123456}
	assert.Equal(t, "Telnet: 0\nAnsi: 0\nRip: 0\nWidth: 1\nHeight: 9999\n", string(c.Encode()))
}

func TestCapsWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termcap.dat")
	c := Caps{Telnet: true, Ansi: true, Width: 80, Height: 24}
	require.NoError(t, c.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(c.Encode()), string(data))
}
