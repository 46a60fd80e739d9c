package donation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/risk"
	"go.uber.org/zap"
)

// EventPublisher announces donations once they are committed to the ledger.
// *events.NATSPublisher satisfies this interface.
type EventPublisher interface {
	Publish(ctx context.Context, d *Donation, b *chain.Block) error
}

// MetricsRecorder is an optional callback for recording donation outcomes.
type MetricsRecorder func(category string, flagged bool)

// Service records donations: it derives the receipt, commits its fingerprint
// to the ledger and stores the donation record.
type Service struct {
	ledger    *chain.Ledger
	repo      Repository
	scorer    risk.Scorer    // nil = no risk scoring
	publisher EventPublisher // nil = no events
	onMetrics MetricsRecorder
	currency  string
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates a new donation Service.
func NewService(ledger *chain.Ledger, repo Repository, logger *zap.Logger) *Service {
	return &Service{
		ledger:   ledger,
		repo:     repo,
		currency: DefaultCurrency,
		now:      time.Now,
		logger:   logger,
	}
}

// SetRiskScorer configures the scorer whose report is attached to receipts.
func (s *Service) SetRiskScorer(sc risk.Scorer) {
	s.scorer = sc
}

// SetPublisher configures the event publisher.
func (s *Service) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// SetCurrency sets the currency written on receipts.
func (s *Service) SetCurrency(c string) {
	if c != "" {
		s.currency = c
	}
}

// Record validates a donation, commits its fingerprint to the ledger and
// saves the donation. The ledger append is the commit point: if it fails
// nothing is stored.
func (s *Service) Record(ctx context.Context, req *RecordRequest) (*Recorded, error) {
	amount := float64(req.Amount)
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, &ErrValidation{Msg: "Amount must be > 0"}
	}

	receipt := Receipt{
		AnonymousID: uuid.NewString(),
		Amount:      amount,
		Category:    Classify(req.Note),
		Currency:    s.currency,
		CreatedAt:   chain.Stamp(s.now()),
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		receipt.Note = &note
	}

	if s.scorer != nil {
		rep, err := s.scorer.Score(ctx, risk.Input{Amount: amount, Note: req.Note, Currency: s.currency})
		if err != nil {
			s.logger.Warn("risk scoring failed (non-fatal)", zap.Error(err))
		} else {
			receipt.Risk = rep
		}
	}

	fp, err := receipt.Fingerprint()
	if err != nil {
		return nil, err
	}

	block, err := s.ledger.Append(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("append to ledger: %w", err)
	}

	d := &Donation{
		ID:           uuid.New(),
		MetadataHash: fp,
		BlockIndex:   block.Index,
		Receipt:      receipt,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		s.logger.Error("donation committed to ledger but not saved",
			zap.Int("block_index", block.Index),
			zap.Stringer("metadata_hash", fp),
			zap.Error(err),
		)
		return nil, fmt.Errorf("save donation: %w", err)
	}

	flagged := receipt.Risk != nil && receipt.Risk.Flagged
	if s.onMetrics != nil {
		s.onMetrics(receipt.Category, flagged)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, d, block); err != nil {
			s.logger.Warn("publish donation event (non-fatal)", zap.Error(err))
		}
	}

	s.logger.Info("donation recorded",
		zap.String("id", d.ID.String()),
		zap.Int("block_index", block.Index),
		zap.String("category", receipt.Category),
		zap.Bool("flagged", flagged),
	)
	return &Recorded{Donation: d, Block: block}, nil
}

// List returns every stored donation in recording order.
func (s *Service) List(ctx context.Context) ([]*Donation, error) {
	return s.repo.List(ctx)
}

// Get returns a single donation.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Donation, error) {
	return s.repo.GetByID(ctx, id)
}
