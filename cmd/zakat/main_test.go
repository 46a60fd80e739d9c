package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/chainfile"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
)

func writeChain(t *testing.T, name string, n int, tamper func([]chain.Block)) string {
	t.Helper()
	ctx := context.Background()
	ledger := chain.NewMemoryLedger()
	for i := 0; i < n; i++ {
		if _, err := ledger.Append(ctx, digest.SumString("receipt-"+strconv.Itoa(i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	blocks, err := ledger.Blocks(ctx)
	if err != nil {
		t.Fatalf("Blocks: %v", err)
	}
	if tamper != nil {
		tamper(blocks)
	}

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := chainfile.Encode(f, blocks, chainfile.FormatForPath(path)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	chainFile, verifyVerbose, proofJSON = "", false, false
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestVerify_file(t *testing.T) {
	for _, name := range []string{"ledger.json", "ledger.cbor"} {
		path := writeChain(t, name, 5, nil)
		if err := run(t, "verify", "--file", path); err != nil {
			t.Errorf("%s: verify: %v", name, err)
		}
	}
}

func TestVerify_tamperedFile(t *testing.T) {
	path := writeChain(t, "ledger.cbor", 4, func(b []chain.Block) {
		b[2].MetadataHash = digest.SumString("forged")
	})
	if err := run(t, "verify", "--file", path); err == nil {
		t.Fatal("expected verify to fail on a tampered chain")
	}
}

func TestVerify_malformedFieldInFile(t *testing.T) {
	path := writeChain(t, "ledger.json", 3, nil)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	fp := `"` + digest.SumString("receipt-1").String() + `"`
	if err := os.WriteFile(path, []byte(strings.Replace(string(raw), fp, `"deadbeef"`, 1)), 0o644); err != nil {
		t.Fatal(err)
	}

	err = run(t, "verify", "--file", path)
	if !errors.Is(err, chain.ErrChainIntegrity) {
		t.Fatalf("verify error = %v, want ErrChainIntegrity", err)
	}
}

func TestRootAndProof_file(t *testing.T) {
	path := writeChain(t, "ledger.json", 5, nil)
	if err := run(t, "root", "--file", path); err != nil {
		t.Errorf("root: %v", err)
	}
	for _, idx := range []string{"0", "4"} {
		if err := run(t, "proof", idx, "--file", path); err != nil {
			t.Errorf("proof %s: %v", idx, err)
		}
	}
	if err := run(t, "proof", "5", "--file", path); err == nil {
		t.Error("expected out-of-range proof to fail")
	}
}
