package chain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrChainIntegrity is wrapped by ValidationResult.Err for a broken chain.
var ErrChainIntegrity = errors.New("chain integrity violation")

// ViolationKind names the invariant a block failed.
type ViolationKind string

const (
	// ViolationIndexGap: the block's index is not its position in the chain.
	ViolationIndexGap ViolationKind = "index_gap"
	// ViolationHashMismatch: the stored blockHash differs from the recomputed one.
	ViolationHashMismatch ViolationKind = "hash_mismatch"
	// ViolationBrokenLink: prevHash is not the predecessor's hash (or GENESIS at 0).
	ViolationBrokenLink ViolationKind = "broken_link"
	// ViolationMalformedField: a stored field did not decode, or createdAt
	// carries precision the block hash does not cover.
	ViolationMalformedField ViolationKind = "malformed_field"
)

// Violation describes the first block that failed validation.
type Violation struct {
	Index  int           `json:"index"`
	Kind   ViolationKind `json:"kind"`
	Detail string        `json:"detail"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Length    int        `json:"length"`
	Violation *Violation `json:"violation,omitempty"`
}

// Err returns nil for a valid chain and an error wrapping ErrChainIntegrity otherwise.
func (r ValidationResult) Err() error {
	if r.Valid || r.Violation == nil {
		return nil
	}
	return fmt.Errorf("%w at index %d (%s): %s",
		ErrChainIntegrity, r.Violation.Index, r.Violation.Kind, r.Violation.Detail)
}

// Validate walks blocks once and reports the first violated invariant.
// It never mutates its input and can be run against a chain produced
// anywhere, e.g. one handed over by an external auditor.
//
// For each position i it checks, in order: every field decoded, index == i,
// createdAt has millisecond precision, the stored hash matches the
// recomputed one, and prevHash links to the predecessor's recomputed hash
// (GENESIS at i == 0).
func Validate(blocks []Block) ValidationResult {
	res := ValidationResult{Length: len(blocks)}

	var prevHash Link
	for i := range blocks {
		b := &blocks[i]

		if err := b.Malformed(); err != nil {
			res.Violation = &Violation{
				Index:  i,
				Kind:   ViolationMalformedField,
				Detail: strings.ReplaceAll(err.Error(), "\n", "; "),
			}
			return res
		}

		if b.Index != i {
			res.Violation = &Violation{
				Index:  i,
				Kind:   ViolationIndexGap,
				Detail: fmt.Sprintf("expected index %d, found %d", i, b.Index),
			}
			return res
		}

		if !b.CreatedAt.Equal(Stamp(b.CreatedAt)) {
			res.Violation = &Violation{
				Index:  i,
				Kind:   ViolationMalformedField,
				Detail: fmt.Sprintf("createdAt %s is finer than millisecond precision", b.CreatedAt.UTC().Format(time.RFC3339Nano)),
			}
			return res
		}

		computed := b.ComputeHash()
		if computed != b.BlockHash {
			res.Violation = &Violation{
				Index:  i,
				Kind:   ViolationHashMismatch,
				Detail: fmt.Sprintf("stored %s, computed %s", b.BlockHash, computed),
			}
			return res
		}

		if i == 0 {
			if !b.PrevHash.IsGenesis() {
				res.Violation = &Violation{
					Index:  0,
					Kind:   ViolationBrokenLink,
					Detail: fmt.Sprintf("genesis block prevHash is %s, want %s", b.PrevHash, GenesisPrev),
				}
				return res
			}
		} else if b.PrevHash != prevHash {
			res.Violation = &Violation{
				Index:  i,
				Kind:   ViolationBrokenLink,
				Detail: fmt.Sprintf("prevHash %s does not match block %d hash %s", b.PrevHash, i-1, prevHash),
			}
			return res
		}

		prevHash = LinkTo(computed)
	}

	res.Valid = true
	return res
}
