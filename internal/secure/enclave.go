// Package secure keeps fetched secret values encrypted in memory between
// retrieval and export. Records held in the load report wrap their
// values in a Buffer so aggregated results never retain plaintext after
// the export step.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Buffer stores one secret value inside a memguard enclave. The enclave
// encrypts the data at rest in memory and attempts to mlock it so it
// cannot be swapped to disk.
type Buffer struct {
	enclave   *memguard.Enclave
	mu        sync.Mutex
	destroyed bool
}

// NewBuffer seals value into a protected buffer. The input string is the
// caller's; the bytes are copied into the enclave. An empty value needs
// no enclave (memguard rejects zero-length buffers) and reads back empty.
func NewBuffer(value string) *Buffer {
	if value == "" {
		return &Buffer{destroyed: true}
	}
	return &Buffer{enclave: memguard.NewEnclave([]byte(value))}
}

// Reveal decrypts and returns the value. Returns the empty string after
// Destroy.
func (b *Buffer) Reveal() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return "", nil
	}
	locked, err := b.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()
	// Copy out of the locked buffer: locked.String() aliases the protected
	// region, which the deferred Destroy unmaps.
	return string(locked.Bytes()), nil
}

// Destroy drops the enclave and makes further Reveal calls return empty.
// Idempotent. The encrypted backing data is left to the collector; call
// Purge at process exit for a full sweep.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}

// Purge wipes all memguard-managed memory. Call once, deferred in main.
func Purge() {
	memguard.Purge()
}
