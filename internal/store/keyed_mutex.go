package store

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// KeyedMutex serializes read-modify-write sequences on a single entity id.
// Locks for distinct keys never contend. An entry lives only while some
// caller holds or waits on it.
type KeyedMutex struct {
	locks *xsync.Map[string, *lockEntry]
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: xsync.NewMap[string, *lockEntry]()}
}

// Lock acquires the lock for kind/id and returns its release func.
func (k *KeyedMutex) Lock(kind Kind, id string) func() {
	key := string(kind) + ":" + id
	entry, _ := k.locks.Compute(key, func(entry *lockEntry, loaded bool) (*lockEntry, xsync.ComputeOp) {
		if !loaded {
			entry = &lockEntry{}
		}
		entry.refs++
		return entry, xsync.UpdateOp
	})
	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.locks.Compute(key, func(entry *lockEntry, loaded bool) (*lockEntry, xsync.ComputeOp) {
			if !loaded {
				return entry, xsync.CancelOp
			}
			entry.refs--
			if entry.refs == 0 {
				return entry, xsync.DeleteOp
			}
			return entry, xsync.UpdateOp
		})
	}
}

// Len returns the number of live lock entries.
func (k *KeyedMutex) Len() int {
	return k.locks.Size()
}
