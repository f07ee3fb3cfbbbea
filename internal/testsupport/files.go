package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// SegmentPayloads returns n distinct payloads whose content identifies the index.
func SegmentPayloads(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		payload := make([]byte, 512+i)
		for j := range payload {
			payload[j] = byte('a' + i%26)
		}
		out[i] = payload
	}
	return out
}

// Concat joins payloads in order.
func Concat(parts [][]byte) []byte {
	var size int
	for _, p := range parts {
		size += len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
