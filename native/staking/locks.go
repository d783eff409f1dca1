package staking

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// poolLocks hands out one mutex per pool. Entries are never evicted; a pool is
// never destroyed.
type poolLocks struct {
	m *xsync.Map[string, *sync.Mutex]
}

func newPoolLocks() *poolLocks {
	return &poolLocks{m: xsync.NewMap[string, *sync.Mutex]()}
}

func (l *poolLocks) lock(poolID string) func() {
	mu, _ := l.m.LoadOrStore(poolID, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}
