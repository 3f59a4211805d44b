package core

import "testing"

func newTestTx(sender string, timestamp uint64) *Transaction {
	return &Transaction{
		Type:      TxTransfer,
		Sender:    Address(sender),
		Timestamp: timestamp,
		Recipient: Address("recipient"),
		Amount:    1,
	}
}

func TestMempoolAddRejectsDuplicate(t *testing.T) {
	mp := NewMempool(10)
	tx := newTestTx("a", 1)

	if err := mp.Add(tx); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := mp.Add(tx); err == nil {
		t.Fatalf("expected duplicate rejection")
	}
}

func TestMempoolAddRejectsAtCapacity(t *testing.T) {
	mp := NewMempool(2)
	if err := mp.Add(newTestTx("a", 1)); err != nil {
		t.Fatalf("Add 1: %v", err)
	}
	if err := mp.Add(newTestTx("b", 2)); err != nil {
		t.Fatalf("Add 2: %v", err)
	}
	if err := mp.Add(newTestTx("c", 3)); err == nil {
		t.Fatalf("expected capacity rejection, mempool did not evict oldest")
	}
	if mp.Len() != 2 {
		t.Fatalf("expected pool to stay at 2 entries, got %d", mp.Len())
	}
}

func TestMempoolTakeOldestFirst(t *testing.T) {
	mp := NewMempool(10)
	first := newTestTx("a", 1)
	second := newTestTx("b", 2)
	if err := mp.Add(first); err != nil {
		t.Fatalf("Add first: %v", err)
	}
	if err := mp.Add(second); err != nil {
		t.Fatalf("Add second: %v", err)
	}

	taken := mp.Take(1)
	if len(taken) != 1 || taken[0].Hash != first.IdentityHash() {
		t.Fatalf("expected oldest transaction first")
	}
	if mp.Len() != 2 {
		t.Fatalf("Take must not remove entries, got len %d", mp.Len())
	}
}

func TestMempoolRemoveThenDedupStillHolds(t *testing.T) {
	mp := NewMempool(10)
	tx := newTestTx("a", 1)
	if err := mp.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	mp.Remove([]Hash{tx.Hash})
	if mp.Len() != 0 {
		t.Fatalf("expected empty pool after remove, got %d", mp.Len())
	}
	if err := mp.Add(tx); err != nil {
		t.Fatalf("re-add after remove should succeed: %v", err)
	}
}
