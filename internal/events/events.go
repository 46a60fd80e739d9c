// Package events announces committed donations to downstream consumers over
// NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/donation"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// DefaultSubject is the subject block events are published on.
const DefaultSubject = "zakat.ledger.blocks"

// StreamName is the JetStream stream holding block events.
const StreamName = "ZAKAT_LEDGER"

// BlockAppended is published after a donation's block is committed and the
// donation is stored. It carries no donor-identifying data.
type BlockAppended struct {
	DonationID   string    `json:"donation_id"`
	BlockIndex   int       `json:"block_index"`
	BlockHash    string    `json:"block_hash"`
	PrevHash     string    `json:"prev_hash"`
	MetadataHash string    `json:"metadata_hash"`
	Category     string    `json:"category"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Flagged      bool      `json:"flagged"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewBlockAppended builds the event for a recorded donation.
func NewBlockAppended(d *donation.Donation, b *chain.Block) BlockAppended {
	return BlockAppended{
		DonationID:   d.ID.String(),
		BlockIndex:   b.Index,
		BlockHash:    b.BlockHash.String(),
		PrevHash:     b.PrevHash.String(),
		MetadataHash: b.MetadataHash.String(),
		Category:     d.Receipt.Category,
		Amount:       d.Receipt.Amount,
		Currency:     d.Receipt.Currency,
		Flagged:      d.Receipt.Risk != nil && d.Receipt.Risk.Flagged,
		Timestamp:    b.CreatedAt,
	}
}

// streamPublisher is the subset of jetstream.JetStream used for publishing.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher publishes BlockAppended events to JetStream. The block hash is
// used as the message ID so a retried publish is deduplicated by the server.
type NATSPublisher struct {
	js      streamPublisher
	subject string
	logger  *zap.Logger
}

// NewNATSPublisher creates a publisher for subject (DefaultSubject if empty).
func NewNATSPublisher(js streamPublisher, subject string, logger *zap.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{js: js, subject: subject, logger: logger}
}

// Publish implements donation.EventPublisher.
func (p *NATSPublisher) Publish(ctx context.Context, d *donation.Donation, b *chain.Block) error {
	data, err := json.Marshal(NewBlockAppended(d, b))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ack, err := p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID(b.BlockHash.String()))
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.logger.Debug("block event published",
		zap.Int("block_index", b.Index),
		zap.Uint64("stream_seq", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate),
	)
	return nil
}

// EnsureStream creates or updates the stream that captures subject.
func EnsureStream(ctx context.Context, js jetstream.JetStream, subject string) error {
	if subject == "" {
		subject = DefaultSubject
	}
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{subject},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// ConnectNATS dials the server at url with unlimited reconnects and returns
// the connection and its JetStream context.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("zakatd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
