// Package merkle builds binary hash trees over donation fingerprints.
//
// Pairing policy: at every level nodes are paired left to right, and an odd
// last node is paired with itself (H(x+x)) rather than promoted unchanged.
// A single leaf therefore has root H(h+h). Proof and verification code must
// follow the same shape.
//
// Nodes are combined by hashing the concatenation of the two children's hex
// renderings, left then right. Trees are never persisted; they are rebuilt
// from the ordered leaf set on every query.
package merkle

import (
	"errors"
	"fmt"

	"github.com/jmerrifield20/ZakatLedger/internal/digest"
)

// ErrLeafOutOfRange is returned by Proof for an index outside the tree.
var ErrLeafOutOfRange = errors.New("leaf index out of range")

// Combine hashes the concatenated hex forms of left and right.
func Combine(left, right digest.Hash) digest.Hash {
	return digest.SumString(left.String() + right.String())
}

// ComputeRoot returns the Merkle root of leaves. ok is false when there are
// no leaves, since no root is defined for an empty set.
func ComputeRoot(leaves []digest.Hash) (root digest.Hash, ok bool) {
	if len(leaves) == 0 {
		return digest.Zero, false
	}
	level := append([]digest.Hash(nil), leaves...)
	for {
		level = nextLevel(level)
		if len(level) == 1 {
			return level[0], true
		}
	}
}

func nextLevel(level []digest.Hash) []digest.Hash {
	next := make([]digest.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, Combine(left, right))
	}
	return next
}

// Tree keeps every level of a built tree so that inclusion proofs can be read off it.
// levels[0] holds the leaves; the last level holds the root.
type Tree struct {
	levels [][]digest.Hash
}

// Build constructs the full tree. It returns nil for an empty leaf set.
func Build(leaves []digest.Hash) *Tree {
	if len(leaves) == 0 {
		return nil
	}
	level := append([]digest.Hash(nil), leaves...)
	t := &Tree{levels: [][]digest.Hash{level}}
	for {
		level = nextLevel(level)
		t.levels = append(t.levels, level)
		if len(level) == 1 {
			return t
		}
	}
}

// Root returns the tree's root hash.
func (t *Tree) Root() digest.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Leaves returns a copy of the leaf level.
func (t *Tree) Leaves() []digest.Hash {
	return append([]digest.Hash(nil), t.levels[0]...)
}

// Depth returns the number of hashing rounds between a leaf and the root.
func (t *Tree) Depth() int {
	return len(t.levels) - 1
}

// Step is one level of an inclusion proof.
type Step struct {
	Sibling digest.Hash `json:"sibling"`
	// Left is true when Sibling sits to the left of the running hash.
	Left bool `json:"left"`
}

// Proof is an inclusion proof for the leaf at Index.
type Proof struct {
	Index int         `json:"index"`
	Leaf  digest.Hash `json:"leaf"`
	Steps []Step      `json:"steps"`
}

// Proof returns the inclusion proof for leaf i. The sibling of an odd last
// node is the node itself.
func (t *Tree) Proof(i int) (*Proof, error) {
	if i < 0 || i >= t.LeafCount() {
		return nil, fmt.Errorf("%w: %d of %d", ErrLeafOutOfRange, i, t.LeafCount())
	}
	p := &Proof{Index: i, Leaf: t.levels[0][i], Steps: make([]Step, 0, t.Depth())}
	idx := i
	for _, row := range t.levels[:len(t.levels)-1] {
		var s Step
		if idx%2 == 0 {
			sib := idx + 1
			if sib >= len(row) {
				sib = idx
			}
			s = Step{Sibling: row[sib], Left: false}
		} else {
			s = Step{Sibling: row[idx-1], Left: true}
		}
		p.Steps = append(p.Steps, s)
		idx /= 2
	}
	return p, nil
}

// VerifyProof reports whether proof connects leaf to root.
func VerifyProof(leaf digest.Hash, proof *Proof, root digest.Hash) bool {
	if proof == nil || proof.Leaf != leaf {
		return false
	}
	h := leaf
	for _, s := range proof.Steps {
		if s.Left {
			h = Combine(s.Sibling, h)
		} else {
			h = Combine(h, s.Sibling)
		}
	}
	return h == root
}
