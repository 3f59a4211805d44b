package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TxPublisher forwards an admitted transaction to the gossip transport's tx
// topic. submit_transaction is the only operation that publishes directly;
// add_block never auto-publishes (spec.md §4.5: "the engine does not
// auto-submit; the caller decides whether to add_block and publish").
type TxPublisher interface {
	PublishTransaction(tx *Transaction) error
}

// EngineParams configures a ChainEngine beyond its stores and consensus
// parameters.
type EngineParams struct {
	MaxTxPerBlock int
}

// ChainEngine is the only component that mutates the chain. It owns the
// chain store, blob store, mempool, and consensus engine, and serializes
// add_block/mine_block/submit_transaction behind a single exclusive lock
// (spec.md §5: "at most one add_block, mine_block, or submit_transaction
// executes at a time"). Grounded on the teacher's Ledger.applyBlock/AddBlock
// (ledger.go) for the validate-then-commit-then-clear-mempool sequencing
// discipline, rebuilt against the leveldb-backed ChainStore instead of the
// teacher's WAL+JSON-snapshot scheme.
type ChainEngine struct {
	mu sync.Mutex

	store     *ChainStore
	blobs     *BlobStore
	mempool   *Mempool
	consensus *ConsensusEngine
	publisher TxPublisher
	logger    *logrus.Logger
	params    EngineParams
}

// NewChainEngine wires the four owned subsystems into a ChainEngine.
// publisher may be nil, in which case submit_transaction simply skips the
// gossip forward (useful for tests that exercise the engine without a
// network).
func NewChainEngine(store *ChainStore, blobs *BlobStore, mempool *Mempool, consensus *ConsensusEngine, publisher TxPublisher, logger *logrus.Logger, params EngineParams) *ChainEngine {
	return &ChainEngine{
		store:     store,
		blobs:     blobs,
		mempool:   mempool,
		consensus: consensus,
		publisher: publisher,
		logger:    logger,
		params:    params,
	}
}

// Initialize constructs and saves the genesis block if the chain store is
// empty: height 0, previous_hash all-zero, empty transactions,
// merkle_root all-zero, difficulty = the configured initial difficulty.
// It is a no-op if the chain already has a tip.
func (ce *ChainEngine) Initialize() error {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	_, err := ce.store.GetChainHeight()
	if err == nil {
		return nil
	}
	if err != ErrNotFound {
		return err
	}

	genesis := &Block{
		Header: BlockHeader{
			PreviousHash: ZeroHash,
			MerkleRoot:   ZeroHash,
			Timestamp:    uint64(time.Now().Unix()),
			Height:       0,
			Difficulty:   ce.consensus.params.InitialDifficulty,
			Nonce:        0,
		},
	}
	if err := ce.store.SaveBlock(genesis); err != nil {
		return err
	}
	ce.logger.WithField("difficulty", genesis.Header.Difficulty).Info("genesis block created")
	return nil
}

// SubmitTransaction admits a locally-originated tx to the mempool. If
// inlinePayload is non-nil, the engine first stores it via the blob store,
// rewrites tx into a Storage transaction referencing the resulting hash, and
// only then admits it — the RPC contract of spec.md §4.5 accepting either a
// pre-hashed transaction or a raw payload. If tx is already a Storage
// transaction referencing a payload_hash without an inline payload, the
// engine requires the blob store to already hold that content (spec.md §4.1:
// "for every Storage transaction admitted by this node into its own
// mempool, the blob store contains an entry whose SHA-256 equals
// payload_hash"). On success the transaction is forwarded to the gossip
// transport's tx topic.
func (ce *ChainEngine) SubmitTransaction(tx *Transaction, inlinePayload []byte) error {
	return ce.admitTransaction(tx, inlinePayload, true)
}

// AdmitRemoteTransaction admits a transaction received from a peer over
// gossip. It skips the local-blob-presence requirement SubmitTransaction
// enforces: spec.md §4.1 exempts received-from-gossip transactions, since
// this node has no obligation to hold a blob it never produced.
func (ce *ChainEngine) AdmitRemoteTransaction(tx *Transaction) error {
	return ce.admitTransaction(tx, nil, false)
}

func (ce *ChainEngine) admitTransaction(tx *Transaction, inlinePayload []byte, requireLocalBlob bool) error {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	if inlinePayload != nil {
		hash, err := ce.blobs.Store(inlinePayload)
		if err != nil {
			return err
		}
		tx.Type = TxStorage
		tx.PayloadHash = hash
	} else if requireLocalBlob && tx.Type == TxStorage && !ce.blobs.Has(tx.PayloadHash) {
		return fmt.Errorf("%w: referenced blob %s not held locally", ErrNotFound, tx.PayloadHash)
	}

	if err := ce.mempool.Add(tx); err != nil {
		return err
	}

	if ce.publisher != nil {
		if err := ce.publisher.PublishTransaction(tx); err != nil {
			ce.logger.WithError(err).Warn("publish transaction failed")
		}
	}
	return nil
}

// AddBlock validates block against the current tip and, on success, saves
// it and removes its transactions from the mempool. Validation runs in the
// exact order spec.md §4.5 prescribes, rejecting with the first failure.
func (ce *ChainEngine) AddBlock(block *Block) error {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	tipHash, err := ce.store.GetLastBlockHash()
	if err != nil {
		return err
	}
	height, err := ce.store.GetChainHeight()
	if err != nil {
		return err
	}
	parent, err := ce.store.GetBlockByHash(tipHash)
	if err != nil {
		return err
	}

	if block.Header.PreviousHash != tipHash {
		return fmt.Errorf("%w: have %s want %s", ErrWrongParent, block.Header.PreviousHash, tipHash)
	}
	if block.Header.Height != height+1 {
		return fmt.Errorf("%w: have %d want %d", ErrWrongHeight, block.Header.Height, height+1)
	}

	leaves := make([]Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		leaves[i] = tx.IdentityHash()
	}
	if merkleRoot(leaves) != block.Header.MerkleRoot {
		return ErrBadMerkle
	}

	if !SatisfiesDifficulty(block.Header.Hash(), block.Header.Difficulty) {
		return ErrBadPoW
	}

	required, err := ce.consensus.RequiredDifficulty(block.Header.Height, ce.store.GetBlockByHeight)
	if err != nil {
		return err
	}
	if block.Header.Difficulty != required {
		return fmt.Errorf("%w: have %d want %d", ErrWrongDifficulty, block.Header.Difficulty, required)
	}

	if err := ce.consensus.validateHeaderTimestamp(&block.Header, parent.Header.Timestamp, uint64(time.Now().Unix())); err != nil {
		return err
	}

	// Mempool removal happens only after the store write commits, so an
	// add_block that fails cannot have already removed transactions.
	if err := ce.store.SaveBlock(block); err != nil {
		return err
	}
	ce.mempool.Remove(leaves)

	ce.logger.WithFields(logrus.Fields{
		"height": block.Header.Height,
		"txs":    len(block.Transactions),
	}).Info("block accepted")
	return nil
}

// MineBlock reads up to MaxTxPerBlock transactions from the mempool,
// computes the required difficulty and Merkle root, runs the mining loop,
// and returns the mined block. The header is stamped with the current time,
// or with the parent's timestamp plus one second when the clock has not yet
// moved past the parent, so the block passes AddBlock's timestamp check. It does not call AddBlock or publish; the
// caller decides. Mining is cancellable via ctx.
func (ce *ChainEngine) MineBlock(ctx context.Context) (*Block, error) {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	txs := ce.mempool.Take(ce.params.MaxTxPerBlock)

	tipHash, err := ce.store.GetLastBlockHash()
	if err != nil {
		return nil, err
	}
	height, err := ce.store.GetChainHeight()
	if err != nil {
		return nil, err
	}
	parent, err := ce.store.GetBlockByHash(tipHash)
	if err != nil {
		return nil, err
	}

	nextHeight := height + 1
	difficulty, err := ce.consensus.RequiredDifficulty(nextHeight, ce.store.GetBlockByHeight)
	if err != nil {
		return nil, err
	}

	leaves := make([]Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.IdentityHash()
	}

	timestamp := uint64(time.Now().Unix())
	if timestamp <= parent.Header.Timestamp {
		timestamp = parent.Header.Timestamp + 1
	}

	header := BlockHeader{
		PreviousHash: tipHash,
		MerkleRoot:   merkleRoot(leaves),
		Timestamp:    timestamp,
		Height:       nextHeight,
		Difficulty:   difficulty,
	}

	if err := ce.consensus.Mine(ctx, &header); err != nil {
		return nil, err
	}

	return &Block{Header: header, Transactions: txs}, nil
}

// ChainHeight returns the current chain height, a read that only touches
// the chain store; spec.md §5 permits this under either a shared lock or a
// short exclusive lock, as long as no read observes a partially-written
// block. The chain store's atomic batch write makes that guarantee
// independent of which lock discipline is chosen here.
func (ce *ChainEngine) ChainHeight() (uint64, error) {
	return ce.store.GetChainHeight()
}

// GetBlockByHash looks up a block by hash.
func (ce *ChainEngine) GetBlockByHash(hash Hash) (*Block, error) {
	return ce.store.GetBlockByHash(hash)
}

// GetBlockByHeight looks up a block by height.
func (ce *ChainEngine) GetBlockByHeight(height uint64) (*Block, error) {
	return ce.store.GetBlockByHeight(height)
}

// RetrieveBlob returns the raw bytes of a locally-held off-chain payload.
func (ce *ChainEngine) RetrieveBlob(hash Hash) ([]byte, error) {
	return ce.blobs.Retrieve(hash)
}
