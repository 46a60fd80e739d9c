// Package chainfile reads and writes exported ledgers. A chain can be stored
// as the JSON array served by the API, or as a compact CBOR document prefixed
// with a file signature.
package chainfile

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
)

// Format is an export encoding.
type Format string

const (
	JSON Format = "json"
	CBOR Format = "cbor"
)

// ErrUnknownFormat is returned for an unsupported Format value.
var ErrUnknownFormat = errors.New("unknown chain file format")

// ErrMalformedBlock is returned when a block whose stored fields did not
// decode is encoded as CBOR. Only JSON keeps such fields as they were read.
var ErrMalformedBlock = errors.New("malformed block cannot be encoded as cbor")

var magic = []byte{0x89, 'z', 'k', 't', 0x0d, 0x0a, 0x1a, 0x0a}

const cborVersion = 1

type cborBody struct {
	Version int         `cbor:"1,keyasint"`
	Blocks  []cborBlock `cbor:"2,keyasint"`
}

// cborBlock carries hashes as raw bytes. An empty PrevHash marks genesis.
type cborBlock struct {
	Index        int    `cbor:"1,keyasint"`
	MetadataHash []byte `cbor:"2,keyasint"`
	PrevHash     []byte `cbor:"3,keyasint"`
	BlockHash    []byte `cbor:"4,keyasint"`
	CreatedAt    string `cbor:"5,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case JSON, CBOR:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatForPath picks CBOR for a .cbor extension and JSON otherwise.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".cbor") {
		return CBOR
	}
	return JSON
}

// Encode writes blocks to w in format f.
func Encode(w io.Writer, blocks []chain.Block, f Format) error {
	if blocks == nil {
		blocks = []chain.Block{}
	}
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(blocks); err != nil {
			return fmt.Errorf("encode json chain: %w", err)
		}
		return nil
	case CBOR:
		body := cborBody{Version: cborVersion, Blocks: make([]cborBlock, len(blocks))}
		for i, b := range blocks {
			if err := b.Malformed(); err != nil {
				return fmt.Errorf("%w: block %d: %v", ErrMalformedBlock, i, err)
			}
			body.Blocks[i] = toCBOR(b)
		}
		raw, err := encMode.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode cbor chain: %w", err)
		}
		if _, err := w.Write(append(append([]byte{}, magic...), raw...)); err != nil {
			return fmt.Errorf("write cbor chain: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Decode reads a chain in either format, detected from the file signature.
// Only a document that cannot be parsed at all is an error; blocks with
// fields that do not decode are returned for chain.Validate to report.
func Decode(r io.Reader) ([]chain.Block, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read chain: %w", err)
	}
	if bytes.HasPrefix(raw, magic) {
		return decodeCBOR(raw[len(magic):])
	}
	var blocks []chain.Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("decode json chain: %w", err)
	}
	return blocks, nil
}

func decodeCBOR(raw []byte) ([]chain.Block, error) {
	var body cborBody
	if err := cbor.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode cbor chain: %w", err)
	}
	if body.Version != cborVersion {
		return nil, fmt.Errorf("decode cbor chain: unsupported version %d", body.Version)
	}
	blocks := make([]chain.Block, len(body.Blocks))
	for i, cb := range body.Blocks {
		blocks[i] = fromCBOR(cb)
	}
	return blocks, nil
}

func toCBOR(b chain.Block) cborBlock {
	cb := cborBlock{
		Index:        b.Index,
		MetadataHash: b.MetadataHash[:],
		BlockHash:    b.BlockHash[:],
		CreatedAt:    chain.FormatTime(b.CreatedAt),
	}
	if !b.PrevHash.IsGenesis() {
		h := b.PrevHash.Hash()
		cb.PrevHash = h[:]
	}
	return cb
}

// fromCBOR never fails: a field that does not decode is marked on the block
// (hashes rendered as hex) and reported by chain.Validate.
func fromCBOR(cb cborBlock) chain.Block {
	b := chain.Block{Index: cb.Index, PrevHash: chain.GenesisLink()}
	if h, err := hashFromBytes(cb.MetadataHash); err != nil {
		b.MarkMalformed("metadataHash", hex.EncodeToString(cb.MetadataHash), err)
	} else {
		b.MetadataHash = h
	}
	if h, err := hashFromBytes(cb.BlockHash); err != nil {
		b.MarkMalformed("blockHash", hex.EncodeToString(cb.BlockHash), err)
	} else {
		b.BlockHash = h
	}
	if len(cb.PrevHash) > 0 {
		h, err := hashFromBytes(cb.PrevHash)
		if err == nil && h.IsZero() {
			err = fmt.Errorf("%w: zero digest is reserved", digest.ErrMalformed)
		}
		if err != nil {
			b.MarkMalformed("prevHash", hex.EncodeToString(cb.PrevHash), err)
		} else {
			b.PrevHash = chain.LinkTo(h)
		}
	}
	if t, err := chain.ParseTime(cb.CreatedAt); err != nil {
		b.MarkMalformed("createdAt", cb.CreatedAt, err)
	} else {
		b.CreatedAt = t
	}
	return b
}

func hashFromBytes(b []byte) (digest.Hash, error) {
	var h digest.Hash
	if len(b) != digest.Size {
		return h, fmt.Errorf("%w: %d bytes", digest.ErrMalformed, len(b))
	}
	copy(h[:], b)
	return h, nil
}
