package pool

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// tickBitmap is a sparse bitset over spacing-compressed tick indices. Each
// word covers 256 consecutive compressed ticks; a set bit means the matching
// TickInfo is initialized. The bitmap and the tick ledger must never
// diverge.
type tickBitmap map[int16]*uint256.Int

func (tb tickBitmap) clone() tickBitmap {
	out := make(tickBitmap, len(tb))
	for word, value := range tb {
		out[word] = new(uint256.Int).Set(value)
	}
	return out
}

// compress maps a tick to its bit index, rounding toward negative infinity
// so negative ticks land in the right word.
func compress(tick, tickSpacing int32) int32 {
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed--
	}
	return compressed
}

func bitmapPosition(compressed int32) (int16, uint8) {
	return int16(compressed >> 8), uint8(compressed & 0xff)
}

// flip toggles the bit for tick, which must be a multiple of tickSpacing.
func (tb tickBitmap) flip(tick, tickSpacing int32) {
	wordPos, bitPos := bitmapPosition(tick / tickSpacing)
	word, ok := tb[wordPos]
	if !ok {
		word = new(uint256.Int)
		tb[wordPos] = word
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
	word.Xor(word, mask)
	if word.IsZero() {
		delete(tb, wordPos)
	}
}

// nextInitialized returns the next initialized tick at or before (searchLeft)
// or strictly after (!searchLeft) the given tick, looking only at the word
// the tick falls in. If the word holds no set bit in that direction the word
// boundary is returned with initialized=false so the swap loop can advance a
// whole word at a time.
func (tb tickBitmap) nextInitialized(tick, tickSpacing int32, searchLeft bool) (int32, bool) {
	compressed := compress(tick, tickSpacing)

	if searchLeft {
		wordPos, bitPos := bitmapPosition(compressed)
		// bits at or below bitPos
		mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos)+1)
		mask.SubUint64(mask, 1)
		var masked *uint256.Int
		if word, ok := tb[wordPos]; ok {
			masked = new(uint256.Int).And(word, mask)
		} else {
			masked = new(uint256.Int)
		}
		if masked.IsZero() {
			return (compressed - int32(bitPos)) * tickSpacing, false
		}
		msb := uint8(masked.BitLen() - 1)
		return (compressed - int32(bitPos-msb)) * tickSpacing, true
	}

	wordPos, bitPos := bitmapPosition(compressed + 1)
	// bits at or above bitPos
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bitPos))
	mask.SubUint64(mask, 1)
	mask.Not(mask)
	var masked *uint256.Int
	if word, ok := tb[wordPos]; ok {
		masked = new(uint256.Int).And(word, mask)
	} else {
		masked = new(uint256.Int)
	}
	if masked.IsZero() {
		return (compressed + 1 + int32(255-bitPos)) * tickSpacing, false
	}
	lsb := trailingZeros(masked)
	return (compressed + 1 + int32(lsb-bitPos)) * tickSpacing, true
}

func trailingZeros(v *uint256.Int) uint8 {
	for limb := 0; limb < 4; limb++ {
		if v[limb] != 0 {
			return uint8(limb*64 + bits.TrailingZeros64(v[limb]))
		}
	}
	return 0
}
