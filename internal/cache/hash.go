package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// HashContent returns the hex sha256 of raw document bytes. Names and paths
// never take part in the key.
func HashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashSet returns an order-independent key for a set of content hashes.
// Duplicates collapse, so the same document listed twice is the same set.
func HashSet(hashes []string) string {
	set := make([]string, 0, len(hashes))
	for _, h := range hashes {
		h = strings.TrimSpace(h)
		if h != "" {
			set = append(set, h)
		}
	}
	slices.Sort(set)
	set = slices.Compact(set)
	return HashContent([]byte("set:" + strings.Join(set, "\n")))
}
