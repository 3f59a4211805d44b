package core

import "errors"

// Sentinel errors for every kind the core surfaces, independent of call site.
// Call sites wrap these with fmt.Errorf("%w: ...", ErrX) for context and
// callers compare with errors.Is, the idiom used throughout the teacher's
// core package (ErrUnauthorized, ErrNotFound in cross_chain.go/storage.go).
var (
	// ErrStoreIO covers chain-store read/write failures; blob-store failures
	// are reported as ErrBlobIO.
	ErrStoreIO = errors.New("store io error")

	// ErrNotFound is returned, never raised as a failure, for lookups of an
	// absent block, blob, or transaction.
	ErrNotFound = errors.New("not found")

	// Block validation failures, checked in this order by add_block.
	ErrWrongParent     = errors.New("block does not extend current tip")
	ErrWrongHeight     = errors.New("block height does not follow current height")
	ErrBadMerkle       = errors.New("merkle root does not match transactions")
	ErrBadPoW          = errors.New("block hash does not satisfy its difficulty")
	ErrWrongDifficulty = errors.New("block difficulty does not match retarget rule")
	ErrBadTimestamp    = errors.New("block timestamp invalid")

	// Transaction admission failures.
	ErrDuplicateTx = errors.New("transaction already in mempool")
	ErrMempoolFull = errors.New("mempool at capacity")
	ErrBlobIO      = errors.New("blob store io error")

	// ErrSerialization covers malformed gossip or RPC input; it is always
	// local to one message.
	ErrSerialization = errors.New("malformed encoding")

	// ErrCancelled is returned when mining is aborted by its context.
	ErrCancelled = errors.New("mining cancelled")

	// ErrHashMismatch is reserved for future verification-on-read of blobs.
	ErrHashMismatch = errors.New("blob content does not match its hash")

	errHashLength = errors.New("hash: wrong byte length")
)
