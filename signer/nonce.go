package signer

import (
	"context"
	"sync"
	"time"
)

// MemoryNonces issues strictly increasing nonces per (auth, db) pair. The
// counter is seeded from wall-clock milliseconds so a restarted process does
// not reissue values still inside the expiry window.
type MemoryNonces struct {
	mu   sync.Mutex
	last map[string]int64
	now  func() time.Time
}

// NewMemoryNonces creates an in-process nonce source.
func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{last: make(map[string]int64), now: time.Now}
}

// Next returns the next nonce for the pair.
func (m *MemoryNonces) Next(_ context.Context, auth, db string) (int64, error) {
	k := nonceKey(auth, db)
	n := m.now().UnixMilli()

	m.mu.Lock()
	defer m.mu.Unlock()
	if last := m.last[k]; n <= last {
		n = last + 1
	}
	m.last[k] = n
	return n, nil
}

func nonceKey(auth, db string) string {
	return "nonce:" + db + ":" + auth
}
