package core

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

func TestLeadingZeroBits(t *testing.T) {
	cases := []struct {
		name string
		hash Hash
		want uint32
	}{
		{"all zero", Hash{}, 256},
		{"first bit set", Hash{0x80}, 0},
		{"one zero byte then set bit", Hash{0x00, 0x40}, 9},
		{"last byte set", func() Hash { var h Hash; h[31] = 0x01; return h }(), 255},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := leadingZeroBits(tc.hash); got != tc.want {
				t.Fatalf("leadingZeroBits = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMineSatisfiesDifficulty(t *testing.T) {
	ce := NewConsensusEngine(ConsensusParams{InitialDifficulty: 8, MinDifficulty: 1, MaxChangeFactor: 4}, testLogger())
	header := &BlockHeader{Height: 1, Difficulty: 8}

	if err := ce.Mine(context.Background(), header); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if !SatisfiesDifficulty(header.Hash(), 8) {
		t.Fatalf("mined header does not satisfy its own difficulty")
	}
}

func TestMineCancellation(t *testing.T) {
	ce := NewConsensusEngine(ConsensusParams{InitialDifficulty: 255, MinDifficulty: 1, MaxChangeFactor: 4}, testLogger())
	header := &BlockHeader{Height: 1, Difficulty: 255}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ce.Mine(ctx, header); err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestRequiredDifficultyNonRetargetHeight(t *testing.T) {
	ce := NewConsensusEngine(ConsensusParams{
		InitialDifficulty: 4, MinDifficulty: 1, AdjustmentInterval: 4,
		TargetBlockTime: 10, MaxChangeFactor: 4,
	}, testLogger())

	lookup := func(h uint64) (*Block, error) {
		return &Block{Header: BlockHeader{Height: h, Difficulty: 4, Timestamp: 1000 + h*10}}, nil
	}

	got, err := ce.RequiredDifficulty(2, lookup)
	if err != nil {
		t.Fatalf("RequiredDifficulty: %v", err)
	}
	if got != 4 {
		t.Fatalf("non-retarget height should inherit parent difficulty, got %d", got)
	}
}

func TestRequiredDifficultyRetargetStable(t *testing.T) {
	ce := NewConsensusEngine(ConsensusParams{
		InitialDifficulty: 4, MinDifficulty: 1, AdjustmentInterval: 4,
		TargetBlockTime: 10, MaxChangeFactor: 4,
	}, testLogger())

	// the retarget at height 4 measures actual = ts(3) - ts(0) = 40 - 0 = 40
	// seconds, equal to expected = 4 * 10: factor == 1.0, difficulty stays
	// put.
	times := map[uint64]uint64{0: 0, 1: 20, 2: 30, 3: 40, 4: 50}
	lookup := func(h uint64) (*Block, error) {
		return &Block{Header: BlockHeader{Height: h, Difficulty: 4, Timestamp: times[h]}}, nil
	}

	got, err := ce.RequiredDifficulty(4, lookup)
	if err != nil {
		t.Fatalf("RequiredDifficulty: %v", err)
	}
	if got != 4 {
		t.Fatalf("stable retarget should leave difficulty unchanged, got %d", got)
	}
}

func TestRequiredDifficultyRetargetClamped(t *testing.T) {
	ce := NewConsensusEngine(ConsensusParams{
		InitialDifficulty: 4, MinDifficulty: 1, AdjustmentInterval: 4,
		TargetBlockTime: 10, MaxChangeFactor: 4,
	}, testLogger())

	// blocks mined far faster than target: factor clamps to MaxChangeFactor.
	times := map[uint64]uint64{0: 10, 1: 11, 2: 12, 3: 13, 4: 14}
	lookup := func(h uint64) (*Block, error) {
		return &Block{Header: BlockHeader{Height: h, Difficulty: 4, Timestamp: times[h]}}, nil
	}

	got, err := ce.RequiredDifficulty(4, lookup)
	if err != nil {
		t.Fatalf("RequiredDifficulty: %v", err)
	}
	if got != 16 {
		t.Fatalf("clamped retarget = %d, want 16 (4 * clamped factor 4)", got)
	}
}
