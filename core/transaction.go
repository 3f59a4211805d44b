package core

import (
	"crypto/sha256"
	"fmt"
)

// TxType tags which variant of the Transaction sum type a value holds.
// Validation and encoding dispatch on this tag rather than on runtime
// reflection, per the teacher's tagged-struct convention generalized into a
// proper sum type.
type TxType byte

const (
	TxTransfer TxType = iota + 1
	TxStorage
	TxTokenCreate
	TxTokenTransfer
)

func (t TxType) String() string {
	switch t {
	case TxTransfer:
		return "transfer"
	case TxStorage:
		return "storage"
	case TxTokenCreate:
		return "token_create"
	case TxTokenTransfer:
		return "token_transfer"
	default:
		return "unknown"
	}
}

// Transaction is the tagged-variant transaction model of spec.md §3. Only
// the fields relevant to Type are meaningful; the rest are zero-valued.
// Signature is a reserved slot: the wire format carries it but nothing in
// this core ever verifies it.
type Transaction struct {
	Type      TxType
	Sender    Address
	Timestamp uint64
	Signature []byte

	// Transfer
	Recipient Address
	Amount    uint64

	// Storage
	PayloadHash Hash

	// TokenCreate
	TokenName   string
	TokenSymbol string
	TotalSupply uint64

	// TokenTransfer
	TokenID Hash

	// Memo is display-only metadata, not hashed-distinct from the rest of
	// the canonical encoding and never consulted by validation; it gives the
	// RPC facade something human-readable to surface besides raw hashes.
	Memo string

	// Hash caches the identity hash once computed, mirroring the teacher's
	// HashTx caching idiom (transaction_hash.go).
	Hash Hash
}

// encode writes the transaction's canonical binary form: fixed-width
// integers little-endian, byte/string fields length-prefixed, fields in
// declaration order. This exact byte form is what gets hashed and what
// travels over gossip and into the chain store.
func (tx *Transaction) encode() []byte {
	e := newEncBuf()
	e.writeByte(byte(tx.Type))
	e.writeBytes(tx.Sender)
	e.writeUint64(tx.Timestamp)
	e.writeBytes(tx.Signature)
	e.writeBytes(tx.Recipient)
	e.writeUint64(tx.Amount)
	e.writeHash(tx.PayloadHash)
	e.writeBytes([]byte(tx.TokenName))
	e.writeBytes([]byte(tx.TokenSymbol))
	e.writeUint64(tx.TotalSupply)
	e.writeHash(tx.TokenID)
	e.writeBytes([]byte(tx.Memo))
	return e.bytes()
}

// IdentityHash computes and caches SHA-256 of the transaction's canonical
// encoding, its identity hash per spec.md §3.
func (tx *Transaction) IdentityHash() Hash {
	h := sha256.Sum256(tx.encode())
	tx.Hash = h
	return h
}

// decodeTransaction parses a canonical-encoded transaction and caches its
// identity hash, mirroring encode field-for-field.
func decodeTransaction(b []byte) (*Transaction, error) {
	d := newDecReader(b)
	typByte, err := d.readByte()
	if err != nil {
		return nil, err
	}
	tx := &Transaction{Type: TxType(typByte)}
	if tx.Sender, err = d.readBytes(); err != nil {
		return nil, err
	}
	if tx.Timestamp, err = d.readUint64(); err != nil {
		return nil, err
	}
	if tx.Signature, err = d.readBytes(); err != nil {
		return nil, err
	}
	if tx.Recipient, err = d.readBytes(); err != nil {
		return nil, err
	}
	if tx.Amount, err = d.readUint64(); err != nil {
		return nil, err
	}
	if tx.PayloadHash, err = d.readHash(); err != nil {
		return nil, err
	}
	name, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	tx.TokenName = string(name)
	symbol, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	tx.TokenSymbol = string(symbol)
	if tx.TotalSupply, err = d.readUint64(); err != nil {
		return nil, err
	}
	if tx.TokenID, err = d.readHash(); err != nil {
		return nil, err
	}
	memo, err := d.readBytes()
	if err != nil {
		return nil, err
	}
	tx.Memo = string(memo)
	if d.remaining() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after transaction", ErrSerialization)
	}
	tx.IdentityHash()
	return tx, nil
}
