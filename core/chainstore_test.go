package core

import (
	"testing"

	"vaultchain/internal/testutil"
)

func openTestChainStore(t *testing.T) *ChainStore {
	t.Helper()
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	t.Cleanup(func() { sb.Cleanup() })

	cs, err := OpenChainStore(sb.Path("chaindb"))
	if err != nil {
		t.Fatalf("OpenChainStore: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestChainStoreUninitialized(t *testing.T) {
	cs := openTestChainStore(t)

	if _, err := cs.GetChainHeight(); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
	if _, err := cs.GetLastBlockHash(); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}
}

func TestChainStoreSaveAndLookup(t *testing.T) {
	cs := openTestChainStore(t)

	genesis := &Block{Header: BlockHeader{
		PreviousHash: ZeroHash,
		MerkleRoot:   ZeroHash,
		Timestamp:    1000,
		Height:       0,
		Difficulty:   4,
	}}
	if err := cs.SaveBlock(genesis); err != nil {
		t.Fatalf("SaveBlock genesis: %v", err)
	}

	height, err := cs.GetChainHeight()
	if err != nil || height != 0 {
		t.Fatalf("GetChainHeight = %d, %v; want 0, nil", height, err)
	}

	tip, err := cs.GetLastBlockHash()
	if err != nil {
		t.Fatalf("GetLastBlockHash: %v", err)
	}
	if tip != genesis.Header.Hash() {
		t.Fatalf("tip hash mismatch")
	}

	byHeight, err := cs.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("GetBlockByHeight: %v", err)
	}
	if byHeight.Header.Hash() != genesis.Header.Hash() {
		t.Fatalf("GetBlockByHeight returned wrong block")
	}

	byHash, err := cs.GetBlockByHash(tip)
	if err != nil {
		t.Fatalf("GetBlockByHash: %v", err)
	}
	if byHash.Header.Height != 0 {
		t.Fatalf("GetBlockByHash returned wrong block")
	}
}

func TestChainStoreNotFoundLookups(t *testing.T) {
	cs := openTestChainStore(t)

	if _, err := cs.GetBlockByHeight(5); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := cs.GetBlockByHash(Hash{0xaa}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChainStoreHeightLookupAcrossBlocks(t *testing.T) {
	cs := openTestChainStore(t)

	prev := ZeroHash
	for h := uint64(0); h < 5; h++ {
		blk := &Block{Header: BlockHeader{
			PreviousHash: prev,
			MerkleRoot:   ZeroHash,
			Timestamp:    1000 + h,
			Height:       h,
			Difficulty:   4,
			Nonce:        h,
		}}
		if err := cs.SaveBlock(blk); err != nil {
			t.Fatalf("SaveBlock height %d: %v", h, err)
		}
		prev = blk.Header.Hash()
	}

	for h := uint64(0); h < 5; h++ {
		blk, err := cs.GetBlockByHeight(h)
		if err != nil {
			t.Fatalf("GetBlockByHeight(%d): %v", h, err)
		}
		if blk.Header.Height != h {
			t.Fatalf("GetBlockByHeight(%d) returned height %d", h, blk.Header.Height)
		}
	}

	tip, err := cs.GetChainHeight()
	if err != nil {
		t.Fatalf("GetChainHeight: %v", err)
	}
	if tip != 4 {
		t.Fatalf("expected tip height 4, got %d", tip)
	}
}
