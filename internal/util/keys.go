package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// maxPlainKey is the longest user key embedded verbatim in a storage key.
// Longer keys are replaced by a hash so every provider accepts them.
const maxPlainKey = 200

// StorageKey returns "<prefix>:<ns>:<key>", hashing keys longer than maxPlainKey.
func StorageKey(prefix, ns, key string) string {
	if len(key) > maxPlainKey {
		sum := sha256.Sum256([]byte(key))
		key = "h:" + hex.EncodeToString(sum[:16])
	}
	return prefix + ":" + ns + ":" + key
}
