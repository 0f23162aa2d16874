// Package detect computes content fingerprints for watch targets and decides
// which targets changed since the last committed cycle. Detection runs
// single-threaded before dispatch; the fingerprint commit runs single-threaded
// after it, so the fingerprint map needs no locking of its own.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"vigil/pkg/session"
)

// Fingerprint is the identity of a watched unit's content at a point in time.
type Fingerprint string

// ConversationKey is the changed-set key for the conversation target.
const ConversationKey = "conversation"

// FileKey returns the changed-set key for a watched file path.
func FileKey(path string) string {
	return "file:" + path
}

// FilePath extracts the path from a file target key, if it is one.
func FilePath(key string) (string, bool) {
	const prefix = "file:"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):], true
	}
	return "", false
}

// FileFingerprint hashes a file's identity from its path, modification time,
// and size. The content itself is not read; a touch without a size or mtime
// change is treated as unchanged.
func FileFingerprint(path string, info os.FileInfo) Fingerprint {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// ConversationFingerprint hashes the transcript content.
func ConversationFingerprint(messages []session.Message) Fingerprint {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
