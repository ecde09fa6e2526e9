package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSignatureMarker(t *testing.T) {
	out := "starting up\nOld language version in script foo.mex\nmore noise\n"
	assert.Equal(t, "Old language version in script foo.mex", ExtractSignature(out))
}

func TestExtractSignatureMarkerPriority(t *testing.T) {
	// First marker in the list wins even if another appears earlier in the
	// output.
	out := "please recompile bar\nOld language detected\n"
	assert.Equal(t, "Old language detected", ExtractSignature(out))
}

func TestExtractSignatureFallbackLastLine(t *testing.T) {
	out := "line one\nline two\nsegfault imminent\n\n  \n"
	assert.Equal(t, "segfault imminent", ExtractSignature(out))
}

func TestExtractSignatureEmpty(t *testing.T) {
	assert.Equal(t, "", ExtractSignature(""))
}

func TestExtractSignatureCRLF(t *testing.T) {
	out := "boot banner\r\nSILT error E123 in config\r\n"
	assert.Equal(t, "SILT error E123 in config", ExtractSignature(out))
}
