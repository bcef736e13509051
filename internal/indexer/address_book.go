package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"

	"positionScope/internal/storage"
)

// AddressBook is the set of pool addresses registered for log intake, with the
// block at which each was first seen. It is persisted as JSON when a path is set.
type AddressBook struct {
	path    string
	entries *xsync.Map[string, bookEntry]
	saveMu  sync.Mutex
}

// bookEntry is one registered pool. Backfilled is set once the pool's logs
// from FirstBlock up to the indexer checkpoint have been fetched.
type bookEntry struct {
	FirstBlock uint64 `json:"first_block"`
	Backfilled bool   `json:"backfilled"`
}

// UnmarshalJSON also accepts a bare block number, the form written before
// backfill tracking existed.
func (e *bookEntry) UnmarshalJSON(data []byte) error {
	var block uint64
	if err := json.Unmarshal(data, &block); err == nil {
		*e = bookEntry{FirstBlock: block}
		return nil
	}
	type entry bookEntry
	var out entry
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*e = bookEntry(out)
	return nil
}

type addressBookFile struct {
	Pools     map[string]bookEntry `json:"pools"`
	UpdatedAt string               `json:"updated_at"`
}

// PendingPool is a registered pool whose logs before the checkpoint have not
// been fetched yet.
type PendingPool struct {
	Address    common.Address
	FirstBlock uint64
}

// NewAddressBook creates an empty book backed by path ("" keeps it in memory).
func NewAddressBook(path string) *AddressBook {
	return &AddressBook{path: path, entries: xsync.NewMap[string, bookEntry]()}
}

// LoadAddressBook reads the book at path. A missing file yields an empty book.
func LoadAddressBook(path string) (*AddressBook, error) {
	book := NewAddressBook(path)
	if path == "" {
		return book, nil
	}
	var file addressBookFile
	if _, err := storage.ReadJSONFile(path, &file); err != nil {
		return nil, fmt.Errorf("load address book: %w", err)
	}
	for addr, entry := range file.Pools {
		book.entries.Store(strings.ToLower(addr), entry)
	}
	return book, nil
}

// Track registers pool. Registering a known pool is a no-op. A pool whose
// registration cannot be persisted is dropped again so a later call retries.
func (b *AddressBook) Track(_ context.Context, pool string, blockNumber uint64) error {
	pool = strings.ToLower(strings.TrimSpace(pool))
	if !common.IsHexAddress(pool) {
		return fmt.Errorf("invalid pool address: %s", pool)
	}
	if _, loaded := b.entries.LoadOrStore(pool, bookEntry{FirstBlock: blockNumber}); loaded {
		return nil
	}
	if err := b.save(); err != nil {
		b.entries.Delete(pool)
		return err
	}
	return nil
}

// Pending returns the pools not yet backfilled, ordered by first block and
// then address. A nil book has none.
func (b *AddressBook) Pending() []PendingPool {
	if b == nil {
		return nil
	}
	var out []PendingPool
	b.entries.Range(func(addr string, entry bookEntry) bool {
		if !entry.Backfilled {
			out = append(out, PendingPool{Address: common.HexToAddress(addr), FirstBlock: entry.FirstBlock})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstBlock != out[j].FirstBlock {
			return out[i].FirstBlock < out[j].FirstBlock
		}
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// MarkBackfilled flags pools as backfilled and persists the book when
// anything changed. Unknown pools are ignored.
func (b *AddressBook) MarkBackfilled(pools []common.Address) error {
	if b == nil {
		return nil
	}
	changed := false
	for _, addr := range pools {
		b.entries.Compute(strings.ToLower(addr.Hex()), func(entry bookEntry, loaded bool) (bookEntry, xsync.ComputeOp) {
			if !loaded || entry.Backfilled {
				return entry, xsync.CancelOp
			}
			entry.Backfilled = true
			changed = true
			return entry, xsync.UpdateOp
		})
	}
	if !changed {
		return nil
	}
	return b.save()
}

// Contains reports whether pool is registered.
func (b *AddressBook) Contains(pool string) bool {
	_, ok := b.entries.Load(strings.ToLower(pool))
	return ok
}

// Len returns the number of registered pools. A nil book is empty.
func (b *AddressBook) Len() int {
	if b == nil {
		return 0
	}
	return b.entries.Size()
}

// Addresses returns the registered pools in ascending order.
func (b *AddressBook) Addresses() []common.Address {
	keys := make([]string, 0, b.entries.Size())
	b.entries.Range(func(addr string, _ bookEntry) bool {
		keys = append(keys, addr)
		return true
	})
	sort.Strings(keys)
	out := make([]common.Address, 0, len(keys))
	for _, key := range keys {
		out = append(out, common.HexToAddress(key))
	}
	return out
}

func (b *AddressBook) save() error {
	if b.path == "" {
		return nil
	}
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	file := addressBookFile{
		Pools:     make(map[string]bookEntry, b.entries.Size()),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b.entries.Range(func(addr string, entry bookEntry) bool {
		file.Pools[addr] = entry
		return true
	})
	if err := storage.WriteJSONFile(b.path, file); err != nil {
		return fmt.Errorf("save address book: %w", err)
	}
	return nil
}

// MergeAddresses returns base followed by any book entries not already in base.
func MergeAddresses(base []common.Address, book *AddressBook) []common.Address {
	if book == nil {
		return base
	}
	seen := make(map[common.Address]struct{}, len(base))
	out := make([]common.Address, 0, len(base)+book.Len())
	for _, addr := range base {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, addr := range book.Addresses() {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
