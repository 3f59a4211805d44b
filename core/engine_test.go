package core

import (
	"context"
	"testing"

	"vaultchain/internal/testutil"
)

func newTestEngine(t *testing.T) *ChainEngine {
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

	bs, err := NewBlobStore(sb.Path("blobs"))
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}

	mp := NewMempool(100)
	consensus := NewConsensusEngine(ConsensusParams{
		InitialDifficulty: 4, MinDifficulty: 1, AdjustmentInterval: 2016,
		TargetBlockTime: 600, MaxChangeFactor: 4, MaxClockSkew: 7200,
	}, testLogger())

	engine := NewChainEngine(cs, bs, mp, consensus, nil, testLogger(), EngineParams{MaxTxPerBlock: 1000})
	if err := engine.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return engine
}

func TestGenesisBootstrap(t *testing.T) {
	engine := newTestEngine(t)

	height, err := engine.ChainHeight()
	if err != nil || height != 0 {
		t.Fatalf("ChainHeight = %d, %v; want 0, nil", height, err)
	}

	genesis, err := engine.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("GetBlockByHeight(0): %v", err)
	}
	if genesis.Header.PreviousHash != ZeroHash {
		t.Fatalf("genesis previous_hash not zero")
	}
	if genesis.Header.MerkleRoot != ZeroHash {
		t.Fatalf("genesis merkle_root not zero")
	}
	if len(genesis.Transactions) != 0 {
		t.Fatalf("genesis must have no transactions")
	}

	// Initialize is idempotent.
	if err := engine.Initialize(); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if height, _ := engine.ChainHeight(); height != 0 {
		t.Fatalf("second Initialize must not move the tip")
	}
}

func TestMineAndAddOneBlock(t *testing.T) {
	engine := newTestEngine(t)

	tx := &Transaction{Type: TxTransfer, Sender: Address("a"), Recipient: Address("b"), Amount: 10, Timestamp: 1000}
	if err := engine.SubmitTransaction(tx, nil); err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}

	blk, err := engine.MineBlock(context.Background())
	if err != nil {
		t.Fatalf("MineBlock: %v", err)
	}
	if blk.Header.Height != 1 {
		t.Fatalf("mined block height = %d, want 1", blk.Header.Height)
	}
	if len(blk.Transactions) != 1 {
		t.Fatalf("mined block should carry the submitted transaction")
	}
	if !SatisfiesDifficulty(blk.Header.Hash(), blk.Header.Difficulty) {
		t.Fatalf("mined block does not satisfy its own difficulty")
	}

	if err := engine.AddBlock(blk); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if engine.mempool.Len() != 0 {
		t.Fatalf("mempool should be empty after its transactions are mined and committed")
	}
}

func TestAddBlockRejectsWrongParent(t *testing.T) {
	engine := newTestEngine(t)

	bad := &BlockHeader{
		PreviousHash: Hash{0xff, 0xff, 0xff, 0xff},
		MerkleRoot:   ZeroHash,
		Timestamp:    2000,
		Height:       1,
		Difficulty:   4,
	}
	if err := engine.consensus.Mine(context.Background(), bad); err != nil {
		t.Fatalf("Mine: %v", err)
	}

	err := engine.AddBlock(&Block{Header: *bad})
	if err == nil {
		t.Fatalf("expected WrongParent rejection")
	}
}

func TestAddBlockRejectsBadPoW(t *testing.T) {
	engine := newTestEngine(t)

	tip, err := engine.store.GetLastBlockHash()
	if err != nil {
		t.Fatalf("GetLastBlockHash: %v", err)
	}

	// A header at the correct height/parent but with a difficulty of 250
	// that an unmined nonce almost certainly cannot meet; the PoW check
	// runs before the required-difficulty check, so it fails first.
	header := BlockHeader{
		PreviousHash: tip,
		MerkleRoot:   ZeroHash,
		Timestamp:    2000,
		Height:       1,
		Difficulty:   250,
		Nonce:        0,
	}
	err = engine.AddBlock(&Block{Header: header})
	if err == nil {
		t.Fatalf("expected BadPoW rejection")
	}
}

func TestSubmitTransactionWithInlinePayload(t *testing.T) {
	engine := newTestEngine(t)

	tx := &Transaction{Type: TxStorage, Sender: Address("a"), Timestamp: 1000}
	if err := engine.SubmitTransaction(tx, []byte("hello")); err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}

	retrieved, err := engine.RetrieveBlob(tx.PayloadHash)
	if err != nil {
		t.Fatalf("RetrieveBlob: %v", err)
	}
	if string(retrieved) != "hello" {
		t.Fatalf("retrieved %q, want %q", retrieved, "hello")
	}
}

func TestSubmitTransactionRejectsStorageTxWithoutLocalBlob(t *testing.T) {
	engine := newTestEngine(t)

	tx := &Transaction{Type: TxStorage, Sender: Address("a"), Timestamp: 1000, PayloadHash: Hash{0x01}}
	if err := engine.SubmitTransaction(tx, nil); err == nil {
		t.Fatalf("expected rejection for a Storage tx whose payload was never stored locally")
	}
}

func TestAdmitRemoteTransactionExemptsMissingBlob(t *testing.T) {
	engine := newTestEngine(t)

	tx := &Transaction{Type: TxStorage, Sender: Address("a"), Timestamp: 1000, PayloadHash: Hash{0x01}}
	if err := engine.AdmitRemoteTransaction(tx); err != nil {
		t.Fatalf("AdmitRemoteTransaction should not require a locally-held blob: %v", err)
	}
}
