package donation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"github.com/jmerrifield20/ZakatLedger/internal/risk"
)

// DefaultCurrency is used when the service is not configured with one.
const DefaultCurrency = "PKR"

// ErrValidation is returned by service methods when the caller supplies
// invalid input. Handlers map it to 400.
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }

// Receipt is the record a donation's fingerprint is computed over. Field
// order is fixed by the struct, so its JSON encoding is deterministic.
type Receipt struct {
	AnonymousID string       `json:"anonymousId"`
	Amount      float64      `json:"amount"`
	Note        *string      `json:"note"`
	Category    string       `json:"category"`
	Currency    string       `json:"currency"`
	Risk        *risk.Report `json:"risk"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Fingerprint returns SHA-256 over the receipt's JSON encoding.
func (r *Receipt) Fingerprint() (digest.Hash, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return digest.Zero, fmt.Errorf("marshal receipt: %w", err)
	}
	return digest.Sum(raw), nil
}

// Donation is a recorded donation: its receipt, the fingerprint committed to
// the ledger and the index of the block holding it.
type Donation struct {
	ID           uuid.UUID   `json:"id"`
	MetadataHash digest.Hash `json:"metadataHash"`
	BlockIndex   int         `json:"blockIndex"`
	Receipt      Receipt     `json:"receipt"`
}

// FingerprintMatches recomputes the receipt fingerprint and compares it with
// the stored MetadataHash.
func (d *Donation) FingerprintMatches() bool {
	fp, err := d.Receipt.Fingerprint()
	return err == nil && fp == d.MetadataHash
}

// Recorded is returned by Service.Record: the stored donation together with
// the block that commits to it.
type Recorded struct {
	Donation *Donation   `json:"donation"`
	Block    *chain.Block `json:"block"`
}

// Amount accepts either a JSON number or a numeric string.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	f, err := strconv.ParseFloat(string(bytes.TrimSpace(data)), 64)
	if err != nil {
		return fmt.Errorf("amount must be numeric")
	}
	*a = Amount(f)
	return nil
}

// RecordRequest is the payload for recording a donation.
type RecordRequest struct {
	Amount Amount `json:"amount"`
	Note   string `json:"note"`
}
