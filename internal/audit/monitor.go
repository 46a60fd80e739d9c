// Package audit periodically re-validates the ledger and publishes the result
// through the gRPC health service and metrics callbacks.
package audit

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"github.com/jmerrifield20/ZakatLedger/internal/merkle"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reporting ledger integrity.
const ServiceName = "zakat.ledger"

// Config holds monitor configuration.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Ledger is the part of *chain.Ledger the monitor reads.
type Ledger interface {
	Verify(ctx context.Context) (chain.ValidationResult, error)
	Fingerprints(ctx context.Context) ([]digest.Hash, error)
}

// StatusSetter is satisfied by *health.Server.
type StatusSetter interface {
	SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus)
}

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(valid bool, length int)

// ViolationFunc is called whenever a check finds the chain broken.
type ViolationFunc func(ctx context.Context, r Report)

// Report is the outcome of a single integrity check.
type Report struct {
	CheckedAt time.Time        `json:"checkedAt"`
	Valid     bool             `json:"valid"`
	Length    int              `json:"length"`
	Violation *chain.Violation `json:"violation,omitempty"`
	Root      *digest.Hash     `json:"merkleRoot"`
	Error     string           `json:"error,omitempty"`
}

// Monitor runs periodic ledger integrity checks.
type Monitor struct {
	ledger      Ledger
	status      StatusSetter // nil = no gRPC health reporting
	cfg         Config
	onMetrics   MetricsRecordFunc
	onViolation ViolationFunc

	mu   sync.RWMutex
	last *Report

	logger *zap.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(ledger Ledger, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout == 0 || cfg.Timeout >= cfg.Interval {
		cfg.Timeout = cfg.Interval / 2
	}
	return &Monitor{ledger: ledger, cfg: cfg, logger: logger}
}

// SetStatusSetter configures the gRPC health server to update.
func (m *Monitor) SetStatusSetter(s StatusSetter) {
	m.status = s
}

// SetMetricsRecord configures the metrics recording callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) {
	m.onMetrics = fn
}

// SetViolationHandler configures the callback fired on a broken chain.
func (m *Monitor) SetViolationHandler(fn ViolationFunc) {
	m.onViolation = fn
}

// Start checks the ledger immediately and then on every tick until quit is
// signalled.
func (m *Monitor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.runOnce()
	for {
		select {
		case <-ticker.C:
			m.runOnce()
		case <-quit:
			return
		}
	}
}

func (m *Monitor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()
	m.Check(ctx)
}

// Check validates the ledger once, records the report and returns it.
func (m *Monitor) Check(ctx context.Context) Report {
	r := Report{CheckedAt: time.Now().UTC()}

	res, err := m.ledger.Verify(ctx)
	switch {
	case err != nil:
		r.Error = err.Error()
		m.logger.Error("audit: read ledger", zap.Error(err))
		m.setStatus(grpc_health_v1.HealthCheckResponse_UNKNOWN)
	case !res.Valid:
		r.Length = res.Length
		r.Violation = res.Violation
		m.logger.Error("audit: ledger integrity violation",
			zap.Int("index", res.Violation.Index),
			zap.String("kind", string(res.Violation.Kind)),
			zap.String("detail", res.Violation.Detail),
		)
		m.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		if m.onViolation != nil {
			m.onViolation(ctx, r)
		}
	default:
		r.Valid = true
		r.Length = res.Length
		if fps, err := m.ledger.Fingerprints(ctx); err == nil {
			if root, ok := merkle.ComputeRoot(fps); ok {
				r.Root = &root
			}
		}
		m.logger.Debug("audit: ledger valid", zap.Int("length", r.Length))
		m.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	}

	if m.onMetrics != nil {
		m.onMetrics(r.Valid, r.Length)
	}

	m.mu.Lock()
	m.last = &r
	m.mu.Unlock()
	return r
}

// Last returns the most recent report, if any check has run.
func (m *Monitor) Last() (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Report{}, false
	}
	return *m.last, true
}

func (m *Monitor) setStatus(s grpc_health_v1.HealthCheckResponse_ServingStatus) {
	if m.status != nil {
		m.status.SetServingStatus(ServiceName, s)
	}
}
