//go:build integration

package chain_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"github.com/jmerrifield20/ZakatLedger/migrations"
	"go.uber.org/zap"
)

// setupPostgres connects to ZAKAT_TEST_DATABASE_URL, applies the schema and
// empties the ledger tables. The database must be disposable.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("ZAKAT_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("ZAKAT_TEST_DATABASE_URL not set, skipping postgres test")
	}

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := migrations.Apply(ctx, db, zap.NewNop()); err != nil {
		db.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	// TRUNCATE does not fire the row-level append-only trigger.
	truncate := func() {
		if _, err := db.Exec(ctx, "TRUNCATE donations, ledger_blocks"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		db.Close()
	})
	return db
}

// withoutAppendOnly lets a test rewrite stored rows the way an attacker with
// direct database access would.
func withoutAppendOnly(t *testing.T, db *pgxpool.Pool, edit func()) {
	t.Helper()
	if _, err := db.Exec(ctx, "ALTER TABLE ledger_blocks DISABLE TRIGGER ledger_blocks_append_only"); err != nil {
		t.Fatalf("disable trigger: %v", err)
	}
	defer func() {
		if _, err := db.Exec(ctx, "ALTER TABLE ledger_blocks ENABLE TRIGGER ledger_blocks_append_only"); err != nil {
			t.Errorf("enable trigger: %v", err)
		}
	}()
	edit()
}

func TestPostgresStore_roundTrip(t *testing.T) {
	db := setupPostgres(t)
	l := chain.New(chain.NewPostgresStore(db, zap.NewNop()), nil)

	appended := appendAll(t, l, f1, f2, f3)

	n, err := l.Len(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Len = %d, %v; want 3", n, err)
	}
	got, err := l.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.BlockHash != appended[1].BlockHash || !got.CreatedAt.Equal(appended[1].CreatedAt) {
		t.Errorf("Get(1) = %+v, want %+v", got, appended[1])
	}
	if got.PrevHash != chain.LinkTo(appended[0].BlockHash) {
		t.Errorf("block 1 does not link to block 0")
	}
	if _, err := l.Get(ctx, 3); err == nil {
		t.Error("expected ErrNotFound past the tip")
	}

	res, err := l.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Valid || res.Length != 3 {
		t.Errorf("Verify = %+v, want valid chain of 3", res)
	}
}

func TestPostgresStore_concurrentAppend(t *testing.T) {
	db := setupPostgres(t)

	// Separate ledgers share no mutex; the advisory lock keeps the chain linear.
	ledgers := make([]*chain.Ledger, 4)
	for i := range ledgers {
		ledgers[i] = chain.New(chain.NewPostgresStore(db, zap.NewNop()), nil)
	}

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := digest.SumString("pg-donation-" + string(rune('A'+i)))
			if _, err := ledgers[i%len(ledgers)].Append(ctx, fp); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Append: %v", err)
	}

	res, err := ledgers[0].Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Valid || res.Length != n {
		t.Errorf("Verify = %+v, want valid chain of %d", res, n)
	}
}

func TestPostgresStore_rejectsUpdate(t *testing.T) {
	db := setupPostgres(t)
	l := chain.New(chain.NewPostgresStore(db, zap.NewNop()), nil)
	appendAll(t, l, f1, f2)

	if _, err := db.Exec(ctx, "UPDATE ledger_blocks SET metadata_hash = $1 WHERE idx = 1", f3.String()); err == nil {
		t.Fatal("expected the append-only trigger to reject UPDATE")
	}
	if _, err := db.Exec(ctx, "DELETE FROM ledger_blocks WHERE idx = 1"); err == nil {
		t.Fatal("expected the append-only trigger to reject DELETE")
	}
}

func TestPostgresStore_malformedColumns(t *testing.T) {
	tests := []struct {
		name  string
		index int
		sql   string
		arg   any
	}{
		// CHAR(64) pads the short value with spaces.
		{"short metadata hash", 1, "UPDATE ledger_blocks SET metadata_hash = $1 WHERE idx = 1", "deadbeef"},
		{"bad prev hash", 2, "UPDATE ledger_blocks SET prev_hash = $1 WHERE idx = 2", "not-a-link"},
		{"sub-millisecond created_at", 0, "UPDATE ledger_blocks SET created_at = $1 WHERE idx = 0",
			time.Date(2025, 3, 1, 12, 0, 0, 1_500_000, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupPostgres(t)
			l := chain.New(chain.NewPostgresStore(db, zap.NewNop()), nil)
			appendAll(t, l, f1, f2, f3)

			withoutAppendOnly(t, db, func() {
				if _, err := db.Exec(ctx, tt.sql, tt.arg); err != nil {
					t.Fatalf("edit row: %v", err)
				}
			})

			res, err := l.Verify(ctx)
			if err != nil {
				t.Fatalf("Verify returned a storage error for a bad column: %v", err)
			}
			if res.Valid || res.Violation == nil {
				t.Fatal("expected an invalid chain")
			}
			if res.Violation.Index != tt.index || res.Violation.Kind != chain.ViolationMalformedField {
				t.Errorf("violation = %+v, want malformed_field at %d", res.Violation, tt.index)
			}
			if res.Length != 3 {
				t.Errorf("Length = %d, want 3", res.Length)
			}
		})
	}
}
