package embcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// keyVersion pins the normalization scheme. Bump it when Normalize changes
// so stale entries miss instead of serving vectors for differently-hashed
// content.
const keyVersion = "|v1_chunking"

// Normalize canonicalizes source text before hashing: CRLF becomes LF and
// trailing whitespace is stripped from every line. Idempotent, so hashing
// already-normalized content yields the same key.
func Normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}

// ContentHash returns the SHA-256 hex digest of the normalized content.
// Model-independent; used for change detection on files and documents.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:])
}

// Key derives the cache key for content embedded under a model. Keys are
// content-addressed and carry no repository identity, so identical files in
// different repositories share one entry.
func Key(content, modelID string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(content)))
	h.Write([]byte(modelID))
	h.Write([]byte(keyVersion))
	return hex.EncodeToString(h.Sum(nil))
}
