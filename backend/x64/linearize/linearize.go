// Package linearize orders a procedure's basic blocks for code generation:
// dominators first, then a loop-nesting forest built from the resulting
// back-edges, then a DFS that keeps loop bodies contiguous and assigns each
// block a linearizedOrdinal such that every non-back edge goes from a lower
// ordinal to a higher one (spec §4.1). No teacher file computes dominators
// or loop nests; this is built fresh in the pack's idiom: explicit slices
// and worklists (ir/lir/live.go's style), postorder/loopnest naming borrowed
// from the Go compiler's own regalloc (fkuehnel-golang-cfg__regalloc.go).
package linearize

import (
	"fmt"

	"github.com/sherter/minijavac/ir"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// loopNest records, for one block, the innermost loop header that contains
// it (nil if the block is not inside any loop) and a depth. Every header is
// recorded as its own innermost header, so depth is 1 for every block inside
// a loop; how deeply loops are nested inside each other is not counted.
type loopNest struct {
	header map[*ir.Block]*ir.Block
	depth  map[*ir.Block]int
}

// ---------------------
// ----- Functions -----
// ---------------------

// Linearize computes a code-generation order for every block reachable from
// entry; blocks that cannot be reached are left out of the order. It returns
// an error, rather than panicking, if a nil successor is reachable from
// entry -- the one place a malformed input graph can surface before the
// rest of the backend assumes a total order exists (spec §4.1).
func Linearize(entry *ir.Block) ([]*ir.Block, error) {
	postorder, err := dfsPostorder(entry)
	if err != nil {
		return nil, err
	}

	rpo := reverse(postorder)
	idom, err := computeDominators(entry, rpo)
	if err != nil {
		return nil, err
	}

	nest := computeLoopNest(rpo, idom)

	order := orderBlocks(entry, nest, rpo)
	for i, b := range order {
		b.SetLinearizedOrdinal(i)
	}
	return order, nil
}

// dfsPostorder returns every block reachable from entry in postorder.
func dfsPostorder(entry *ir.Block) ([]*ir.Block, error) {
	visited := make(map[*ir.Block]bool)
	var order []*ir.Block

	var visit func(b *ir.Block) error
	visit = func(b *ir.Block) error {
		if b == nil {
			return fmt.Errorf("linearize: nil successor reachable from entry block %d", entry.Id())
		}
		if visited[b] {
			return nil
		}
		visited[b] = true
		for _, s := range b.Succs {
			if err := visit(s); err != nil {
				return err
			}
		}
		order = append(order, b)
		return nil
	}
	if err := visit(entry); err != nil {
		return nil, err
	}
	return order, nil
}

func reverse(blocks []*ir.Block) []*ir.Block {
	out := make([]*ir.Block, len(blocks))
	for i, b := range blocks {
		out[len(blocks)-1-i] = b
	}
	return out
}

// computeDominators computes immediate dominators over reverse-postorder
// rpo using the standard iterative Cooper/Harvey/Kennedy algorithm.
func computeDominators(entry *ir.Block, rpo []*ir.Block) (map[*ir.Block]*ir.Block, error) {
	rpoIndex := make(map[*ir.Block]int, len(rpo))
	for i, b := range rpo {
		rpoIndex[b] = i
	}

	idom := make(map[*ir.Block]*ir.Block, len(rpo))
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == entry {
				continue
			}
			var newIdom *ir.Block
			for _, p := range b.Preds {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, rpoIndex)
			}
			if newIdom == nil {
				return nil, fmt.Errorf("linearize: block %d is unreachable from entry block %d", b.Id(), entry.Id())
			}
			if idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom, nil
}

func intersect(a, b *ir.Block, idom map[*ir.Block]*ir.Block, rpoIndex map[*ir.Block]int) *ir.Block {
	for a != b {
		for rpoIndex[a] > rpoIndex[b] {
			a = idom[a]
		}
		for rpoIndex[b] > rpoIndex[a] {
			b = idom[b]
		}
	}
	return a
}

// computeLoopNest finds back-edges (succ dominates pred) and builds a
// header/depth map for every block in that back-edge's loop body.
func computeLoopNest(rpo []*ir.Block, idom map[*ir.Block]*ir.Block) *loopNest {
	nest := &loopNest{header: make(map[*ir.Block]*ir.Block), depth: make(map[*ir.Block]int)}

	dominates := func(a, b *ir.Block) bool {
		for c := b; ; c = idom[c] {
			if c == a {
				return true
			}
			if c == idom[c] {
				return c == a
			}
		}
	}

	var headers []*ir.Block
	for _, b := range rpo {
		for _, s := range b.Succs {
			if dominates(s, b) {
				headers = append(headers, s)
			}
		}
	}

	for _, h := range headers {
		body := loopBody(h, dominates)
		for _, b := range body {
			if cur, ok := nest.header[b]; !ok || dominates(cur, h) {
				nest.header[b] = h
			}
		}
	}
	for b := range nest.header {
		depth := 0
		for h := nest.header[b]; h != nil; h = nest.header[h] {
			depth++
			if nest.header[h] == h {
				break
			}
		}
		nest.depth[b] = depth
	}
	return nest
}

// loopBody returns every block that reaches header via a path not leaving
// through a block dominated by header and back into header again -- i.e.
// the set found by walking predecessors backward from header's back-edge
// sources until header itself is reached.
func loopBody(header *ir.Block, dominates func(a, b *ir.Block) bool) []*ir.Block {
	body := map[*ir.Block]bool{header: true}
	var worklist []*ir.Block
	for _, p := range header.Preds {
		if dominates(header, p) {
			worklist = append(worklist, p)
		}
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if body[b] {
			continue
		}
		body[b] = true
		for _, p := range b.Preds {
			worklist = append(worklist, p)
		}
	}
	out := make([]*ir.Block, 0, len(body))
	for b := range body {
		out = append(out, b)
	}
	return out
}

// orderBlocks performs the DFS that assigns the final order: at every
// branch point, the successor already inside the current loop (if any) is
// visited before one that exits it, so a loop's body stays contiguous. A
// block is placed only once every predecessor reaching it over a non-back
// edge (one earlier in reverse postorder rpo) has been placed.
func orderBlocks(entry *ir.Block, nest *loopNest, rpo []*ir.Block) []*ir.Block {
	visited := make(map[*ir.Block]bool)
	var order []*ir.Block
	rank := make(map[*ir.Block]int, len(rpo))
	for i, b := range rpo {
		rank[b] = i + 1
	}

	var visit func(b *ir.Block, inLoop *ir.Block)
	visit = func(b *ir.Block, inLoop *ir.Block) {
		if visited[b] {
			return
		}
		for _, p := range b.Preds {
			if rank[p] != 0 && rank[p] < rank[b] && !visited[p] {
				return // the last such predecessor visits b again
			}
		}
		visited[b] = true
		order = append(order, b)

		succs := append([]*ir.Block(nil), b.Succs...)
		sortSuccsByLoopAffinity(succs, nest, inLoop)
		for _, s := range succs {
			visit(s, nest.header[s])
		}
	}
	visit(entry, nest.header[entry])
	return order
}

// sortSuccsByLoopAffinity stably reorders succs so any successor still
// inside the current loop precedes one that is not.
func sortSuccsByLoopAffinity(succs []*ir.Block, nest *loopNest, inLoop *ir.Block) {
	affinity := func(b *ir.Block) int {
		if inLoop != nil && nest.header[b] == inLoop {
			return 0
		}
		return 1
	}
	for i := 1; i < len(succs); i++ {
		for j := i; j > 0 && affinity(succs[j]) < affinity(succs[j-1]); j-- {
			succs[j], succs[j-1] = succs[j-1], succs[j]
		}
	}
}
