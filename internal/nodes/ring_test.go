package nodes

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingAppendSmall(t *testing.T) {
	var r Ring
	r.Append([]byte("hello "))
	r.Append([]byte("world"))
	assert.Equal(t, "hello world", r.String())
	assert.Equal(t, 11, r.Len())
}

func TestRingOverflowDropsOldest(t *testing.T) {
	var r Ring
	r.Append(bytes.Repeat([]byte{'a'}, RingSize))
	r.Append([]byte("tail"))
	s := r.String()
	assert.Equal(t, RingSize, len(s))
	assert.Equal(t, "tail", s[len(s)-4:])
	assert.Equal(t, byte('a'), s[0])
}

func TestRingHugeWriteKeepsTail(t *testing.T) {
	var r Ring
	data := append(bytes.Repeat([]byte{'x'}, RingSize*2), []byte("end")...)
	r.Append(data)
	s := r.String()
	assert.Equal(t, RingSize, len(s))
	assert.Equal(t, "end", s[len(s)-3:])
}

func TestRingReset(t *testing.T) {
	var r Ring
	r.Append([]byte("junk"))
	r.Reset()
	assert.Zero(t, r.Len())
	assert.Equal(t, "", r.String())
}
