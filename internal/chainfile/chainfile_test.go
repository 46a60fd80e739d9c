package chainfile_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/chainfile"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
)

func sampleChain(t *testing.T) []chain.Block {
	t.Helper()
	ctx := context.Background()
	l := chain.NewMemoryLedger()
	now := time.Date(2025, 3, 1, 12, 0, 0, 123_456_789, time.UTC)
	l.SetClock(func() time.Time { now = now.Add(time.Second); return now })
	for _, c := range []string{"a", "b", "c"} {
		if _, err := l.Append(ctx, digest.MustParse(strings.Repeat(c, 64))); err != nil {
			t.Fatal(err)
		}
	}
	blocks, err := l.Blocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return blocks
}

func TestRoundTrip(t *testing.T) {
	blocks := sampleChain(t)
	for _, f := range []chainfile.Format{chainfile.JSON, chainfile.CBOR} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			if err := chainfile.Encode(&buf, blocks, f); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := chainfile.Decode(&buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(got) != len(blocks) {
				t.Fatalf("got %d blocks, want %d", len(got), len(blocks))
			}
			for i := range blocks {
				if got[i].BlockHash != blocks[i].BlockHash ||
					got[i].PrevHash != blocks[i].PrevHash ||
					!got[i].CreatedAt.Equal(blocks[i].CreatedAt) {
					t.Errorf("block %d differs after round trip", i)
				}
			}
			if res := chain.Validate(got); !res.Valid {
				t.Errorf("decoded chain invalid: %+v", res.Violation)
			}
		})
	}
}

func TestCBOR_isSmallerAndSigned(t *testing.T) {
	blocks := sampleChain(t)
	var j, c bytes.Buffer
	if err := chainfile.Encode(&j, blocks, chainfile.JSON); err != nil {
		t.Fatal(err)
	}
	if err := chainfile.Encode(&c, blocks, chainfile.CBOR); err != nil {
		t.Fatal(err)
	}
	if c.Len() >= j.Len() {
		t.Errorf("cbor %d bytes, json %d bytes", c.Len(), j.Len())
	}
	if !bytes.HasPrefix(c.Bytes(), []byte{0x89, 'z', 'k', 't'}) {
		t.Error("cbor export lacks file signature")
	}
}

func TestEncode_emptyChain(t *testing.T) {
	var buf bytes.Buffer
	if err := chainfile.Encode(&buf, nil, chainfile.JSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty chain encoded as %q", buf.String())
	}
}

func TestDecode_rejectsGarbage(t *testing.T) {
	if _, err := chainfile.Decode(strings.NewReader("{oops")); err == nil {
		t.Error("expected json error")
	}
	bad := append([]byte{0x89, 'z', 'k', 't', 0x0d, 0x0a, 0x1a, 0x0a}, 0xff, 0x00)
	if _, err := chainfile.Decode(bytes.NewReader(bad)); err == nil {
		t.Error("expected cbor error")
	}
}

func TestDecode_jsonFieldTamper(t *testing.T) {
	blocks := sampleChain(t)
	var buf bytes.Buffer
	if err := chainfile.Encode(&buf, blocks, chainfile.JSON); err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(buf.String(), `"`+blocks[1].MetadataHash.String()+`"`, `"deadbeef"`, 1)

	got, err := chainfile.Decode(strings.NewReader(tampered))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	res := chain.Validate(got)
	if res.Valid || res.Violation.Index != 1 || res.Violation.Kind != chain.ViolationMalformedField {
		t.Fatalf("Validate = %+v, want malformed_field at 1", res.Violation)
	}
	if !strings.Contains(res.Violation.Detail, "metadataHash") {
		t.Errorf("detail %q does not name the field", res.Violation.Detail)
	}

	// JSON keeps the bad value; CBOR cannot carry it.
	var again bytes.Buffer
	if err := chainfile.Encode(&again, got, chainfile.JSON); err != nil {
		t.Fatalf("re-encode json: %v", err)
	}
	if !strings.Contains(again.String(), `"deadbeef"`) {
		t.Error("re-encoded chain lost the tampered value")
	}
	if err := chainfile.Encode(&again, got, chainfile.CBOR); !errors.Is(err, chainfile.ErrMalformedBlock) {
		t.Errorf("cbor encode error = %v, want ErrMalformedBlock", err)
	}
}

type rawCBORBlock struct {
	Index        int    `cbor:"1,keyasint"`
	MetadataHash []byte `cbor:"2,keyasint"`
	PrevHash     []byte `cbor:"3,keyasint"`
	BlockHash    []byte `cbor:"4,keyasint"`
	CreatedAt    string `cbor:"5,keyasint"`
}

type rawCBORBody struct {
	Version int            `cbor:"1,keyasint"`
	Blocks  []rawCBORBlock `cbor:"2,keyasint"`
}

func TestDecode_cborFieldTamper(t *testing.T) {
	var buf bytes.Buffer
	if err := chainfile.Encode(&buf, sampleChain(t), chainfile.CBOR); err != nil {
		t.Fatal(err)
	}
	signature, payload := buf.Bytes()[:8], buf.Bytes()[8:]

	var body rawCBORBody
	if err := cbor.Unmarshal(payload, &body); err != nil {
		t.Fatal(err)
	}
	body.Blocks[2].BlockHash = body.Blocks[2].BlockHash[:4]
	edited, err := cbor.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}

	got, err := chainfile.Decode(bytes.NewReader(append(append([]byte{}, signature...), edited...)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d blocks, want 3", len(got))
	}
	res := chain.Validate(got)
	if res.Valid || res.Violation.Index != 2 || res.Violation.Kind != chain.ViolationMalformedField {
		t.Errorf("Validate = %+v, want malformed_field at 2", res.Violation)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := chainfile.ParseFormat("CBOR"); err != nil || f != chainfile.CBOR {
		t.Errorf("ParseFormat(CBOR) = %q, %v", f, err)
	}
	if _, err := chainfile.ParseFormat("xml"); !errors.Is(err, chainfile.ErrUnknownFormat) {
		t.Errorf("want ErrUnknownFormat, got %v", err)
	}
	if chainfile.FormatForPath("out/ledger.CBOR") != chainfile.CBOR {
		t.Error("FormatForPath should pick CBOR by extension")
	}
	if chainfile.FormatForPath("ledger.json") != chainfile.JSON {
		t.Error("FormatForPath should default to JSON")
	}
}
