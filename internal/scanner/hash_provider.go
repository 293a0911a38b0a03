package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// HashProvider produces content hashes. Assets go through a metadata
// cache keyed by path, modification time and size so that an unchanged
// asset is never re-read; sources whose bytes are kept are hashed from
// those bytes.
type HashProvider struct {
	metadata map[string]string
	mu       sync.RWMutex
}

// NewHashProvider creates a new hash provider.
func NewHashProvider() *HashProvider {
	return &HashProvider{metadata: make(map[string]string)}
}

// HashBytes returns the hex sha256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func metadataKey(path string, info fs.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", path, info.ModTime().UnixNano(), info.Size())
}

// HashFile returns the content hash of the file at path, consulting the
// metadata cache first.
func (hp *HashProvider) HashFile(path string, info fs.FileInfo) (string, error) {
	key := metadataKey(path, info)

	hp.mu.RLock()
	hash, ok := hp.metadata[key]
	hp.mu.RUnlock()
	if ok {
		return hash, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	hash = hex.EncodeToString(h.Sum(nil))

	hp.mu.Lock()
	hp.metadata[key] = hash
	hp.mu.Unlock()
	return hash, nil
}

// Forget drops cached metadata entries. The scanner calls it once per full
// scan so removed files do not accumulate.
func (hp *HashProvider) Forget() {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	hp.metadata = make(map[string]string)
}
