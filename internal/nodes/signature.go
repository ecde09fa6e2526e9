package nodes

import "strings"

// SignatureMarkers are substrings that identify a known failure class in
// recent PTY output. The first match wins; order matters.
var SignatureMarkers = []string{
	"Old language",
	"recompile",
	"SILT",
}

// ExtractSignature derives a short crash signature from recent PTY output:
// the text from the first known marker to the end of its line, else the last
// non-empty line with surrounding blanks trimmed.
func ExtractSignature(ptyOut string) string {
	if ptyOut == "" {
		return ""
	}

	for _, marker := range SignatureMarkers {
		idx := strings.Index(ptyOut, marker)
		if idx < 0 {
			continue
		}
		sig := ptyOut[idx:]
		if nl := strings.IndexByte(sig, '\n'); nl >= 0 {
			sig = sig[:nl]
		}
		return strings.TrimRight(sig, "\r \t")
	}

	// Fall back to the last non-empty line.
	end := len(ptyOut)
	for end > 0 && isLineJunk(ptyOut[end-1]) {
		end--
	}
	start := end
	for start > 0 && ptyOut[start-1] != '\n' && ptyOut[start-1] != '\r' {
		start--
	}
	return strings.TrimLeft(ptyOut[start:end], " \t")
}

func isLineJunk(b byte) bool {
	return b == '\n' || b == '\r' || b == ' ' || b == '\t'
}
