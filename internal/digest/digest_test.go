package digest_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jmerrifield20/ZakatLedger/internal/digest"
)

func TestSumString_knownVector(t *testing.T) {
	got := digest.SumString("abc").String()
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("SumString(abc) = %s, want %s", got, want)
	}
}

func TestParse_roundTrip(t *testing.T) {
	h := digest.SumString("donation")
	parsed, err := digest.Parse(h.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != h {
		t.Errorf("Parse(String()) = %s, want %s", parsed, h)
	}
}

func TestParse_rejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"short":     "abcd",
		"non-hex":   strings.Repeat("z", 64),
		"too long":  strings.Repeat("a", 66),
		"uppercase": strings.Repeat("G", 64),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := digest.Parse(in); !errors.Is(err, digest.ErrMalformed) {
				t.Errorf("Parse(%q) error = %v, want ErrMalformed", in, err)
			}
		})
	}
}

func TestHash_JSON(t *testing.T) {
	h := digest.SumString("x")
	b, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"`+h.String()+`"` {
		t.Errorf("marshal = %s", b)
	}

	var back digest.Hash
	if err := json.Unmarshal([]byte(`"nothex"`), &back); err == nil {
		t.Error("expected error unmarshalling malformed hash")
	}
}

func TestIsZero(t *testing.T) {
	if !digest.Zero.IsZero() {
		t.Error("Zero.IsZero() = false")
	}
	if digest.SumString("").IsZero() {
		t.Error("digest of empty string reported as zero")
	}
}
