package service

import "sync"

// lockTable hands out one mutex per resource id so concurrent generation
// calls against the same screenplay serialize their read-generate-write
// cycle instead of racing on the final write.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) get(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	t.locks[id] = l
	return l
}

// withLock runs fn while holding the id's mutex.
func (t *lockTable) withLock(id string, fn func() error) error {
	l := t.get(id)
	l.Lock()
	defer l.Unlock()
	return fn()
}
