package core

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// cancelCheckInterval is the nonce cadence at which the mining loop checks
// its cancellation token, per spec.md §5's suggested "every 2^16
// iterations".
const cancelCheckInterval = 1 << 16

// ConsensusParams configures PoW verification, mining, and difficulty
// retargeting. Field names mirror spec.md §4.4's vocabulary.
type ConsensusParams struct {
	InitialDifficulty  uint32
	MinDifficulty      uint32
	AdjustmentInterval uint64
	TargetBlockTime    uint64 // seconds
	MaxChangeFactor    float64
	MaxClockSkew       uint64 // seconds
}

// blockLookup resolves a block by height, used by the retarget rule to read
// the timestamps of the interval boundary without the consensus engine
// owning the chain store directly.
type blockLookup func(height uint64) (*Block, error)

// ConsensusEngine implements PoW hash verification, mining, and difficulty
// retargeting. The mining-loop and retarget-window shape (nonce-incrementing
// loop, logrus progress logging) follows the prior hybrid engine's layout,
// but the arithmetic here is pure proof-of-work: difficulty is a zero-bit
// count (uint32), not a big.Int numeric target, and the retarget factor is
// rounded in float64 with round-half-to-even (math.RoundToEven) so every
// peer recomputes the same value from the same inputs.
type ConsensusEngine struct {
	params ConsensusParams
	logger *logrus.Logger
}

// NewConsensusEngine constructs a consensus engine with the given
// parameters and logger.
func NewConsensusEngine(params ConsensusParams, logger *logrus.Logger) *ConsensusEngine {
	return &ConsensusEngine{params: params, logger: logger}
}

// leadingZeroBits counts the number of leading zero bits in hash, read in
// big-endian bit order: successive bytes are inspected, a fully-zero byte
// contributes 8 and scanning continues, a partial byte contributes the
// count of its own leading zero bits and scanning stops.
func leadingZeroBits(hash Hash) uint32 {
	var count uint32
	for _, b := range hash {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// SatisfiesDifficulty reports whether hash has at least difficulty leading
// zero bits.
func SatisfiesDifficulty(hash Hash, difficulty uint32) bool {
	return leadingZeroBits(hash) >= difficulty
}

// Mine iterates header.Nonce from 0 upward, recomputing the block hash each
// time, until the hash satisfies header.Difficulty or ctx is cancelled. The
// chosen nonce is written into header on success. Mining has no timeout of
// its own; the caller supplies ctx for cancellation (spec.md §5: "mining
// has no timeout, it runs until cancelled or successful").
func (ce *ConsensusEngine) Mine(ctx context.Context, header *BlockHeader) error {
	for nonce := uint64(0); ; nonce++ {
		if nonce%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return ErrCancelled
			default:
			}
		}
		header.Nonce = nonce
		if SatisfiesDifficulty(header.Hash(), header.Difficulty) {
			ce.logger.WithFields(logrus.Fields{
				"height":     header.Height,
				"nonce":      nonce,
				"difficulty": header.Difficulty,
			}).Debug("mined candidate block")
			return nil
		}
	}
}

// RequiredDifficulty implements the retarget rule of spec.md §4.4 for a
// block at height h, given access to earlier blocks via lookup.
//
// If h == 0 the genesis difficulty is InitialDifficulty. If h is not a
// multiple of AdjustmentInterval, the required difficulty equals the
// difficulty of block h-1. Otherwise the factor between expected and
// actual elapsed time over the preceding interval is computed, clamped to
// [1/MaxChangeFactor, MaxChangeFactor], and the new difficulty is
// round(previous_difficulty * factor), rounded half-to-even and clamped to
// [MinDifficulty, 255].
func (ce *ConsensusEngine) RequiredDifficulty(h uint64, lookup blockLookup) (uint32, error) {
	if h == 0 {
		return ce.params.InitialDifficulty, nil
	}
	prev, err := lookup(h - 1)
	if err != nil {
		return 0, err
	}
	if h%ce.params.AdjustmentInterval != 0 {
		return prev.Header.Difficulty, nil
	}

	boundary, err := lookup(h - ce.params.AdjustmentInterval)
	if err != nil {
		return 0, err
	}

	actual := float64(prev.Header.Timestamp) - float64(boundary.Header.Timestamp)
	expected := float64(ce.params.AdjustmentInterval) * float64(ce.params.TargetBlockTime)
	if actual <= 0 {
		actual = 1
	}

	factor := expected / actual
	maxFactor := ce.params.MaxChangeFactor
	if maxFactor <= 0 {
		maxFactor = 1
	}
	if factor > maxFactor {
		factor = maxFactor
	} else if factor < 1/maxFactor {
		factor = 1 / maxFactor
	}

	next := math.RoundToEven(float64(prev.Header.Difficulty) * factor)

	if next < float64(ce.params.MinDifficulty) {
		next = float64(ce.params.MinDifficulty)
	}
	if next > 255 {
		next = 255
	}
	result := uint32(next)
	ce.logger.WithFields(logrus.Fields{
		"height":     h,
		"factor":     factor,
		"difficulty": result,
	}).Debug("difficulty retarget")
	return result, nil
}

// validateHeaderTimestamp checks spec.md §4.5 rule 6: the block's timestamp
// must be strictly greater than the parent's and not more than the
// configured clock skew ahead of wall time.
func (ce *ConsensusEngine) validateHeaderTimestamp(header *BlockHeader, parentTimestamp uint64, now uint64) error {
	if header.Timestamp <= parentTimestamp {
		return fmt.Errorf("%w: timestamp %d not after parent %d", ErrBadTimestamp, header.Timestamp, parentTimestamp)
	}
	if header.Timestamp > now+ce.params.MaxClockSkew {
		return fmt.Errorf("%w: timestamp %d exceeds clock skew bound", ErrBadTimestamp, header.Timestamp)
	}
	return nil
}
