package core

import (
	"fmt"
	"sync"
)

// Mempool is a bounded, ordered, duplicate-free buffer of pending
// transactions. It is reconstructed from the network on restart; nothing
// here is persisted. Grounded on the teacher's TxPool (common_structs.go)
// and its AddTx variants (txpool_addtx.go, txpool_stub.go): a map lookup
// plus an insertion-order queue under one mutex. Of the teacher's two
// eviction strategies (dedup-reject seen in txpool_stub.go vs. silent
// re-append seen in txpool_addtx.go), this mempool follows spec.md's
// explicit choice: reject both duplicates and admissions at capacity,
// never evict the oldest entry to make room.
type Mempool struct {
	mu      sync.RWMutex
	lookup  map[Hash]*Transaction
	queue   []Hash
	maxSize int
}

// NewMempool constructs an empty mempool bounded at maxSize entries.
func NewMempool(maxSize int) *Mempool {
	return &Mempool{
		lookup:  make(map[Hash]*Transaction),
		queue:   make([]Hash, 0),
		maxSize: maxSize,
	}
}

// Add computes tx's identity hash and appends it to the queue. It rejects a
// transaction already present, and rejects new admissions once the pool is
// at capacity (reject-new-at-capacity, spec.md §4.3's explicit choice over
// FIFO eviction).
func (mp *Mempool) Add(tx *Transaction) error {
	h := tx.IdentityHash()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.lookup[h]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTx, h)
	}
	if len(mp.queue) >= mp.maxSize {
		return fmt.Errorf("%w: capacity %d", ErrMempoolFull, mp.maxSize)
	}
	mp.lookup[h] = tx
	mp.queue = append(mp.queue, h)
	return nil
}

// Take returns up to n transactions from the front of the queue (oldest
// admitted first), by clone. It does not remove them; that is the miner's
// read, Remove is the commit.
func (mp *Mempool) Take(n int) []*Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if n > len(mp.queue) {
		n = len(mp.queue)
	}
	out := make([]*Transaction, n)
	for i := 0; i < n; i++ {
		tx := *mp.lookup[mp.queue[i]]
		out[i] = &tx
	}
	return out
}

// Remove deletes the named entries from both the lookup map and the queue.
func (mp *Mempool) Remove(hashes []Hash) {
	if len(hashes) == 0 {
		return
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	toRemove := make(map[Hash]struct{}, len(hashes))
	for _, h := range hashes {
		toRemove[h] = struct{}{}
		delete(mp.lookup, h)
	}

	filtered := mp.queue[:0]
	for _, h := range mp.queue {
		if _, dead := toRemove[h]; !dead {
			filtered = append(filtered, h)
		}
	}
	mp.queue = filtered
}

// Len returns the current number of pending transactions.
func (mp *Mempool) Len() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return len(mp.queue)
}
