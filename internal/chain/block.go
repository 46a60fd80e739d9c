package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmerrifield20/ZakatLedger/internal/digest"
)

// GenesisPrev is the literal prevHash carried by the block at index 0.
const GenesisPrev = "GENESIS"

// timeLayout is the ISO-8601 rendering of CreatedAt used in the canonical form.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Link is a block's prevHash: either the predecessor's BlockHash or the
// genesis sentinel. The zero Link is the genesis sentinel.
type Link struct {
	h digest.Hash
}

// GenesisLink returns the sentinel link used by the first block.
func GenesisLink() Link { return Link{} }

// LinkTo returns a link pointing at the block whose hash is h.
func LinkTo(h digest.Hash) Link { return Link{h: h} }

// IsGenesis reports whether l is the genesis sentinel.
func (l Link) IsGenesis() bool { return l.h.IsZero() }

// Hash returns the predecessor hash. It is digest.Zero for the genesis sentinel.
func (l Link) Hash() digest.Hash { return l.h }

// String returns "GENESIS" or the predecessor hash in hex.
func (l Link) String() string {
	if l.IsGenesis() {
		return GenesisPrev
	}
	return l.h.String()
}

// MarshalText implements encoding.TextMarshaler.
func (l Link) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Link) UnmarshalText(text []byte) error {
	parsed, err := ParseLink(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLink decodes the persisted prevHash form. An all-zero hex digest is
// rejected because it would be indistinguishable from the sentinel.
func ParseLink(s string) (Link, error) {
	if s == GenesisPrev {
		return GenesisLink(), nil
	}
	h, err := digest.Parse(s)
	if err != nil {
		return Link{}, fmt.Errorf("parse prev hash: %w", err)
	}
	if h.IsZero() {
		return Link{}, fmt.Errorf("parse prev hash: %w: zero digest is reserved", digest.ErrMalformed)
	}
	return LinkTo(h), nil
}

// Block is a single entry of the donation ledger.
//
// A block loaded from storage may carry fields that did not decode, for
// example a metadataHash edited to something that is not a digest. Such a
// block still loads; Malformed reports the bad fields, Validate flags the
// block, and MarshalJSON writes the bad values back exactly as they were read.
type Block struct {
	Index        int
	MetadataHash digest.Hash
	PrevHash     Link
	BlockHash    digest.Hash
	CreatedAt    time.Time

	faults *faultSet
}

// fieldFault is a persisted field that did not decode. raw is the value as
// stored, in JSON form.
type fieldFault struct {
	field string
	raw   json.RawMessage
	err   error
}

type faultSet struct {
	list []fieldFault
}

var errMissingField = errors.New("missing")

// MarkMalformed records that field was stored as persisted and could not be
// decoded into the block.
func (b *Block) MarkMalformed(field, persisted string, err error) {
	raw, _ := json.Marshal(persisted)
	b.addFault(field, raw, err)
}

// addFault copies the fault list so blocks copied before the call are not
// affected.
func (b *Block) addFault(field string, raw json.RawMessage, err error) {
	fs := &faultSet{}
	if b.faults != nil {
		fs.list = append(fs.list, b.faults.list...)
	}
	fs.list = append(fs.list, fieldFault{field: field, raw: raw, err: err})
	b.faults = fs
}

func (b *Block) fault(field string) *fieldFault {
	if b.faults == nil {
		return nil
	}
	for i := range b.faults.list {
		if b.faults.list[i].field == field {
			return &b.faults.list[i]
		}
	}
	return nil
}

// Malformed returns an error naming every field that did not decode, or nil.
func (b *Block) Malformed() error {
	if b.faults == nil {
		return nil
	}
	errs := make([]error, 0, len(b.faults.list))
	for _, f := range b.faults.list {
		if f.raw == nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.field, f.err))
			continue
		}
		errs = append(errs, fmt.Errorf("%s %s: %w", f.field, f.raw, f.err))
	}
	return errors.Join(errs...)
}

// blockJSON is the persisted form. Fields stay raw so one bad field does not
// stop the rest of the chain from loading.
type blockJSON struct {
	Index        json.RawMessage `json:"index"`
	MetadataHash json.RawMessage `json:"metadataHash"`
	PrevHash     json.RawMessage `json:"prevHash"`
	BlockHash    json.RawMessage `json:"blockHash"`
	CreatedAt    json.RawMessage `json:"createdAt"`
}

// MarshalJSON writes {index, metadataHash, prevHash, blockHash, createdAt}.
// Fields that did not decode are written back as they were read.
func (b Block) MarshalJSON() ([]byte, error) {
	var firstErr error
	field := func(name string, v any) json.RawMessage {
		if f := b.fault(name); f != nil {
			if f.raw == nil {
				return json.RawMessage("null")
			}
			return f.raw
		}
		raw, err := json.Marshal(v)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", name, err)
		}
		return raw
	}
	out := blockJSON{
		Index:        field("index", b.Index),
		MetadataHash: field("metadataHash", b.MetadataHash),
		PrevHash:     field("prevHash", b.PrevHash),
		BlockHash:    field("blockHash", b.BlockHash),
		CreatedAt:    field("createdAt", b.CreatedAt),
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a persisted block. Only input that is not a JSON
// object fails; bad or missing fields are recorded on the block instead.
func (b *Block) UnmarshalJSON(data []byte) error {
	var in blockJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var out Block
	out.decodeField("index", in.Index, &out.Index)
	out.decodeField("metadataHash", in.MetadataHash, &out.MetadataHash)
	out.decodeField("prevHash", in.PrevHash, &out.PrevHash)
	out.decodeField("blockHash", in.BlockHash, &out.BlockHash)
	out.decodeField("createdAt", in.CreatedAt, &out.CreatedAt)
	*b = out
	return nil
}

func (b *Block) decodeField(name string, raw json.RawMessage, dst any) {
	if len(raw) == 0 || string(raw) == "null" {
		b.addFault(name, nil, errMissingField)
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		b.addFault(name, append(json.RawMessage(nil), raw...), err)
	}
}

// canonical renders the fields covered by BlockHash.
func (b *Block) canonical() string {
	return fmt.Sprintf("%d|%s|%s|%s",
		b.Index, b.MetadataHash, b.PrevHash, b.CreatedAt.UTC().Format(timeLayout),
	)
}

// ComputeHash recomputes the block hash from the block's stated fields.
// It ignores the stored BlockHash.
func (b *Block) ComputeHash() digest.Hash {
	return digest.SumString(b.canonical())
}

// Stamp normalises t to the precision stored in every backend.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatTime renders t in the canonical ISO-8601 layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a timestamp written by FormatTime (or any RFC 3339 value).
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at: %w", err)
	}
	return t.UTC(), nil
}
