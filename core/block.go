package core

import "crypto/sha256"

// BlockHeader is the fixed-size portion of a block that gets hashed and
// whose difficulty the consensus engine seals.
type BlockHeader struct {
	PreviousHash Hash
	MerkleRoot   Hash
	Timestamp    uint64
	Height       uint64
	Difficulty   uint32
	Nonce        uint64
}

// Block is a header plus its ordered transactions.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// encode writes the header's canonical binary form, field-by-field in
// declaration order. The block hash is SHA-256 over exactly this form.
func (h *BlockHeader) encode() []byte {
	e := newEncBuf()
	e.writeHash(h.PreviousHash)
	e.writeHash(h.MerkleRoot)
	e.writeUint64(h.Timestamp)
	e.writeUint64(h.Height)
	e.writeUint32(h.Difficulty)
	e.writeUint64(h.Nonce)
	return e.bytes()
}

// Hash computes the block hash: SHA-256 of the serialized header.
func (h *BlockHeader) Hash() Hash {
	return sha256.Sum256(h.encode())
}

// encode writes a block's canonical binary form: header followed by a
// length-prefixed sequence of encoded transactions.
func (b *Block) encode() []byte {
	e := newEncBuf()
	e.buf = append(e.buf, b.Header.encode()...)
	e.writeUint64(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		e.writeBytes(tx.encode())
	}
	return e.bytes()
}

// decodeBlock parses a canonical-encoded block.
func decodeBlock(raw []byte) (*Block, error) {
	d := newDecReader(raw)
	var blk Block
	var err error
	if blk.Header.PreviousHash, err = d.readHash(); err != nil {
		return nil, err
	}
	if blk.Header.MerkleRoot, err = d.readHash(); err != nil {
		return nil, err
	}
	if blk.Header.Timestamp, err = d.readUint64(); err != nil {
		return nil, err
	}
	if blk.Header.Height, err = d.readUint64(); err != nil {
		return nil, err
	}
	if blk.Header.Difficulty, err = d.readUint32(); err != nil {
		return nil, err
	}
	if blk.Header.Nonce, err = d.readUint64(); err != nil {
		return nil, err
	}
	n, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	blk.Transactions = make([]*Transaction, 0, n)
	for i := uint64(0); i < n; i++ {
		txBytes, err := d.readBytes()
		if err != nil {
			return nil, err
		}
		tx, err := decodeTransaction(txBytes)
		if err != nil {
			return nil, err
		}
		blk.Transactions = append(blk.Transactions, tx)
	}
	if d.remaining() != 0 {
		return nil, ErrSerialization
	}
	return &blk, nil
}

// merkleRoot computes the Merkle root over a sequence of transaction
// identity hashes, which are already the leaf values (no further hashing of
// the leaves themselves, unlike a tree built over raw payload bytes). At
// each level pairs are concatenated left||right and hashed; an odd node at
// a level is duplicated rather than hashed with itself. The root of an
// empty list is the all-zero hash. Grounded on the teacher's
// BuildMerkleTree (merkle_tree_operations.go), adapted to operate directly
// on Hash-typed leaves instead of raw byte slices.
func merkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return ZeroHash
	}
	level := make([]Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := make([]byte, 0, 64)
			pair = append(pair, level[i][:]...)
			pair = append(pair, level[i+1][:]...)
			next[i/2] = sha256.Sum256(pair)
		}
		level = next
	}
	return level[0]
}
