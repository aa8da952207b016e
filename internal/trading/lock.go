package trading

import "sync"

// tradeLocks serializes trade execution per (member, stock) key. The unique
// index on the trade table is the hard duplicate guard; the lock keeps a
// racing request on the clean AlreadyBought/AlreadySold path instead of a
// constraint violation surfacing as a storage error.
type tradeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTradeLocks() *tradeLocks {
	return &tradeLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for the key and returns its unlock function.
func (t *tradeLocks) Lock(key string) func() {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
