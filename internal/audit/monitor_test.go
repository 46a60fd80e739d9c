package audit_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jmerrifield20/ZakatLedger/internal/audit"
	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"github.com/jmerrifield20/ZakatLedger/internal/merkle"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

var ctx = context.Background()

func servingStatus(t *testing.T, hs *health.Server) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: audit.ServiceName})
	if err != nil {
		t.Fatalf("health Check: %v", err)
	}
	return resp.Status
}

func TestCheck_validLedger(t *testing.T) {
	ledger := chain.NewMemoryLedger()
	fps := []digest.Hash{
		digest.MustParse(strings.Repeat("a", 64)),
		digest.MustParse(strings.Repeat("b", 64)),
		digest.MustParse(strings.Repeat("c", 64)),
	}
	for _, fp := range fps {
		if _, err := ledger.Append(ctx, fp); err != nil {
			t.Fatal(err)
		}
	}

	hs := health.NewServer()
	m := audit.NewMonitor(ledger, audit.Config{}, zap.NewNop())
	m.SetStatusSetter(hs)

	var gotValid bool
	var gotLen int
	m.SetMetricsRecord(func(valid bool, length int) { gotValid, gotLen = valid, length })

	r := m.Check(ctx)
	if !r.Valid || r.Length != 3 {
		t.Fatalf("report = %+v", r)
	}
	want, _ := merkle.ComputeRoot(fps)
	if r.Root == nil || *r.Root != want {
		t.Errorf("root = %v, want %s", r.Root, want)
	}
	if !gotValid || gotLen != 3 {
		t.Errorf("metrics got (%v, %d)", gotValid, gotLen)
	}
	if s := servingStatus(t, hs); s != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", s)
	}

	last, ok := m.Last()
	if !ok || last.Length != 3 {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestCheck_emptyLedgerHasNoRoot(t *testing.T) {
	m := audit.NewMonitor(chain.NewMemoryLedger(), audit.Config{}, zap.NewNop())
	if _, ok := m.Last(); ok {
		t.Error("Last() before any check must report false")
	}
	r := m.Check(ctx)
	if !r.Valid || r.Length != 0 || r.Root != nil {
		t.Errorf("report = %+v", r)
	}
}

type stubLedger struct {
	res chain.ValidationResult
	err error
}

func (s stubLedger) Verify(context.Context) (chain.ValidationResult, error) { return s.res, s.err }
func (s stubLedger) Fingerprints(context.Context) ([]digest.Hash, error) { return nil, nil }

func TestCheck_violation(t *testing.T) {
	broken := stubLedger{res: chain.ValidationResult{
		Length:    4,
		Violation: &chain.Violation{Index: 2, Kind: chain.ViolationHashMismatch, Detail: "tampered"},
	}}
	hs := health.NewServer()
	m := audit.NewMonitor(broken, audit.Config{}, zap.NewNop())
	m.SetStatusSetter(hs)

	var alerted *audit.Report
	m.SetViolationHandler(func(_ context.Context, r audit.Report) { alerted = &r })

	r := m.Check(ctx)
	if r.Valid || r.Violation == nil || r.Violation.Index != 2 {
		t.Fatalf("report = %+v", r)
	}
	if alerted == nil || alerted.Violation.Kind != chain.ViolationHashMismatch {
		t.Error("violation handler not called")
	}
	if r.Root != nil {
		t.Error("no root for a broken chain")
	}
	if s := servingStatus(t, hs); s != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", s)
	}
}

func TestCheck_storageError(t *testing.T) {
	hs := health.NewServer()
	m := audit.NewMonitor(stubLedger{err: errors.New("db down")}, audit.Config{}, zap.NewNop())
	m.SetStatusSetter(hs)

	r := m.Check(ctx)
	if r.Valid || r.Error == "" {
		t.Errorf("report = %+v", r)
	}
	if s := servingStatus(t, hs); s != grpc_health_v1.HealthCheckResponse_UNKNOWN {
		t.Errorf("status = %v, want UNKNOWN", s)
	}
}

func TestStart_checksImmediatelyAndStops(t *testing.T) {
	m := audit.NewMonitor(chain.NewMemoryLedger(), audit.Config{Interval: time.Hour}, zap.NewNop())
	checked := make(chan struct{}, 1)
	m.SetMetricsRecord(func(bool, int) {
		select {
		case checked <- struct{}{}:
		default:
		}
	})

	quit := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		m.Start(quit)
		close(done)
	}()

	select {
	case <-checked:
	case <-time.After(2 * time.Second):
		t.Fatal("no check on start")
	}
	quit <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
