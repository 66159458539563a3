// Package lifetime computes lifetime intervals over a linearised procedure:
// for every virtual register, the set of live ranges and use sites that
// the linear-scan allocator consumes; for every physical register, the
// fixed intervals its hard constraints occupy. No teacher file computes
// intervals -- ir/lir/live.go computes flat reverse-order liveness over a
// three-address list, which this package generalizes to BlockPosition-
// indexed interval liveness, keeping the teacher's "build a live set, walk
// instructions in reverse, mutate it" control flow.
package lifetime

import (
	"fmt"

	"github.com/sherter/minijavac/backend/x64/lir"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// BlockPosition is a global ordinal within one linearised procedure: even
// positions are instruction defs, odd positions are uses (spec §3 "Block
// position"). Positions in different blocks are comparable because every
// block occupies a contiguous range determined by its place in the block
// list and its instruction count.
type BlockPosition int

// ---------------------
// ----- Functions -----
// ---------------------

// numberPositions assigns each block a contiguous BlockPosition range: two
// positions per instruction plus two trailing ones, so defs land on even
// positions and uses on odd ones, matching spec §4.3 step 2's "2k+2"/"2k+1"
// scheme extended to a global numbering, and a block's end lies past the
// def position of its last instruction (the position before the end is the
// one its outgoing edges use).
func numberPositions(blocks []*lir.Block) (starts map[*lir.Block]BlockPosition, ends map[*lir.Block]BlockPosition) {
	starts = make(map[*lir.Block]BlockPosition, len(blocks))
	ends = make(map[*lir.Block]BlockPosition, len(blocks))

	pos := BlockPosition(0)
	for _, b := range blocks {
		starts[b] = pos
		pos += BlockPosition(2*len(b.Instructions) + 2)
		ends[b] = pos
	}
	return starts, ends
}

// instrPos returns the def position (even) of the k'th instruction in a
// block whose own position range starts at blockStart. The use position of
// the same instruction is instrPos-1.
func instrPos(blockStart BlockPosition, k int) BlockPosition {
	return blockStart + BlockPosition(2*k+2)
}

// InstrPos exports instrPos for resolve, which needs the exact same
// def-position numbering to find where a split boundary falls inside a
// block's instruction list.
func InstrPos(blockStart BlockPosition, k int) BlockPosition {
	return instrPos(blockStart, k)
}

func (p BlockPosition) String() string {
	return fmt.Sprintf("%d", int(p))
}
