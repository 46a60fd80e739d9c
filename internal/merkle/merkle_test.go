package merkle_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"github.com/jmerrifield20/ZakatLedger/internal/merkle"
)

var (
	f1 = digest.MustParse(strings.Repeat("a", 64))
	f2 = digest.MustParse(strings.Repeat("b", 64))
	f3 = digest.MustParse(strings.Repeat("c", 64))
)

// h hashes the concatenation of hex strings, the way nodes are combined.
func h(parts ...digest.Hash) digest.Hash {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.String())
	}
	return digest.SumString(sb.String())
}

func TestComputeRoot_empty(t *testing.T) {
	if _, ok := merkle.ComputeRoot(nil); ok {
		t.Error("ComputeRoot(nil) reported a root")
	}
	if _, ok := merkle.ComputeRoot([]digest.Hash{}); ok {
		t.Error("ComputeRoot([]) reported a root")
	}
}

func TestComputeRoot_singleLeafIsSelfPaired(t *testing.T) {
	root, ok := merkle.ComputeRoot([]digest.Hash{f1})
	if !ok {
		t.Fatal("no root for single leaf")
	}
	if root == f1 {
		t.Error("single leaf was promoted instead of self-paired")
	}
	if root != h(f1, f1) {
		t.Errorf("root = %s, want H(f1+f1) = %s", root, h(f1, f1))
	}
}

func TestComputeRoot_twoLeaves(t *testing.T) {
	root, _ := merkle.ComputeRoot([]digest.Hash{f1, f2})
	if root != h(f1, f2) {
		t.Errorf("root = %s, want H(f1+f2)", root)
	}
	want := digest.SumString(strings.Repeat("a", 64) + strings.Repeat("b", 64))
	if root != want {
		t.Errorf("root = %s, want %s", root, want)
	}
}

func TestComputeRoot_threeLeavesDuplicatesLast(t *testing.T) {
	root, _ := merkle.ComputeRoot([]digest.Hash{f1, f2, f3})
	h12 := h(f1, f2)
	h33 := h(f3, f3)
	if root != h(h12, h33) {
		t.Errorf("root = %s, want H(H12+H33)", root)
	}
}

func TestComputeRoot_fiveLeavesOddAtEveryLevel(t *testing.T) {
	f4 := digest.SumString("4")
	f5 := digest.SumString("5")
	root, _ := merkle.ComputeRoot([]digest.Hash{f1, f2, f3, f4, f5})

	l1 := []digest.Hash{h(f1, f2), h(f3, f4), h(f5, f5)}
	l2 := []digest.Hash{h(l1[0], l1[1]), h(l1[2], l1[2])}
	if root != h(l2[0], l2[1]) {
		t.Errorf("five-leaf root mismatch")
	}
}

func TestComputeRoot_orderSensitive(t *testing.T) {
	ab, _ := merkle.ComputeRoot([]digest.Hash{f1, f2})
	ba, _ := merkle.ComputeRoot([]digest.Hash{f2, f1})
	if ab == ba {
		t.Error("root did not change when leaves were swapped")
	}
}

func TestComputeRoot_doesNotMutateInput(t *testing.T) {
	leaves := []digest.Hash{f1, f2, f3}
	merkle.ComputeRoot(leaves)
	if leaves[0] != f1 || leaves[1] != f2 || leaves[2] != f3 {
		t.Error("input slice modified")
	}
}

func TestComputeRoot_concurrentCallsAgree(t *testing.T) {
	leaves := make([]digest.Hash, 33)
	for i := range leaves {
		leaves[i] = digest.SumString(fmt.Sprint(i))
	}
	want, _ := merkle.ComputeRoot(leaves)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, _ := merkle.ComputeRoot(leaves); got != want {
				t.Errorf("concurrent root %s != %s", got, want)
			}
		}()
	}
	wg.Wait()
}

func TestBuild_matchesComputeRoot(t *testing.T) {
	for n := 1; n <= 17; n++ {
		leaves := make([]digest.Hash, n)
		for i := range leaves {
			leaves[i] = digest.SumString(fmt.Sprintf("leaf-%d", i))
		}
		tree := merkle.Build(leaves)
		want, _ := merkle.ComputeRoot(leaves)
		if tree.Root() != want {
			t.Errorf("n=%d: Build root %s != ComputeRoot %s", n, tree.Root(), want)
		}
		if tree.LeafCount() != n {
			t.Errorf("n=%d: LeafCount = %d", n, tree.LeafCount())
		}
	}
	if merkle.Build(nil) != nil {
		t.Error("Build(nil) should be nil")
	}
}

func TestProof_everyLeafVerifies(t *testing.T) {
	for n := 1; n <= 13; n++ {
		leaves := make([]digest.Hash, n)
		for i := range leaves {
			leaves[i] = digest.SumString(fmt.Sprintf("%d/%d", i, n))
		}
		tree := merkle.Build(leaves)
		for i := range leaves {
			p, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("n=%d i=%d: %v", n, i, err)
			}
			if len(p.Steps) != tree.Depth() {
				t.Errorf("n=%d i=%d: %d steps, depth %d", n, i, len(p.Steps), tree.Depth())
			}
			if !merkle.VerifyProof(leaves[i], p, tree.Root()) {
				t.Errorf("n=%d i=%d: proof did not verify", n, i)
			}
		}
	}
}

func TestProof_oddLastSiblingIsItself(t *testing.T) {
	tree := merkle.Build([]digest.Hash{f1, f2, f3})
	p, err := tree.Proof(2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Steps[0].Sibling != f3 || p.Steps[0].Left {
		t.Errorf("first step = %+v, want self-sibling on the right", p.Steps[0])
	}
}

func TestVerifyProof_rejectsWrongLeafOrRoot(t *testing.T) {
	tree := merkle.Build([]digest.Hash{f1, f2, f3})
	p, _ := tree.Proof(1)

	if merkle.VerifyProof(f3, p, tree.Root()) {
		t.Error("proof verified for the wrong leaf")
	}
	if merkle.VerifyProof(f2, p, digest.SumString("other root")) {
		t.Error("proof verified against the wrong root")
	}
	if merkle.VerifyProof(f2, nil, tree.Root()) {
		t.Error("nil proof verified")
	}
}

func TestProof_outOfRange(t *testing.T) {
	tree := merkle.Build([]digest.Hash{f1})
	if _, err := tree.Proof(1); !errors.Is(err, merkle.ErrLeafOutOfRange) {
		t.Errorf("Proof(1) error = %v", err)
	}
	if _, err := tree.Proof(-1); !errors.Is(err, merkle.ErrLeafOutOfRange) {
		t.Errorf("Proof(-1) error = %v", err)
	}
}
