package allocator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GideonNut/moviemeter/internal/catalog"
	"github.com/GideonNut/moviemeter/internal/ledger"
	"github.com/GideonNut/moviemeter/internal/testutil"
	"github.com/GideonNut/moviemeter/pkg/models"
)

// fakeLedger simulates the relayer-side contract with controllable failures.
type fakeLedger struct {
	mu            sync.Mutex
	titles        []string
	registerCalls int32
	failRegister  error
	failScan      error
}

func (f *fakeLedger) RegisterMedia(ctx context.Context, title string) (int64, error) {
	atomic.AddInt32(&f.registerCalls, 1)
	if f.failRegister != nil {
		return 0, f.failRegister
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return int64(len(f.titles) - 1), nil
}

func (f *fakeLedger) FindMediaByTitle(ctx context.Context, title string, limit int64) (int64, bool, error) {
	if f.failScan != nil {
		return 0, false, f.failScan
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.titles) - 1; i >= 0; i-- {
		if f.titles[i] == title {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func newTestAllocator(t *testing.T, fl *fakeLedger) (*Allocator, *catalog.Repo) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	repo := catalog.NewRepo(db)
	a := New(repo, fl)
	a.PollInterval = 5 * time.Millisecond
	a.WaitTimeout = 2 * time.Second
	return a, repo
}

func TestResolveAllocatesOnce(t *testing.T) {
	fl := &fakeLedger{}
	a, repo := newTestAllocator(t, fl)
	ctx := context.Background()

	id := testutil.InsertMedia(t, repo.DB, models.KindMovie, "p1", "Dune", time.Now().UTC())

	got, err := a.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 0 {
		t.Errorf("contract id = %d, want 0", got)
	}

	// second resolve is a cache hit, no new registration
	got2, err := a.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if got2 != got {
		t.Errorf("second resolve id = %d, want %d", got2, got)
	}
	if n := atomic.LoadInt32(&fl.registerCalls); n != 1 {
		t.Errorf("register calls = %d, want 1", n)
	}
}

func TestConcurrentResolveSingleRegistration(t *testing.T) {
	fl := &fakeLedger{}
	a, repo := newTestAllocator(t, fl)
	ctx := context.Background()

	id := testutil.InsertMedia(t, repo.DB, models.KindMovie, "p1", "Arrival", time.Now().UTC())

	const callers = 10
	results := make([]int64, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = a.Resolve(ctx, id)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d id = %d, want %d", i, results[i], results[0])
		}
	}
	if n := atomic.LoadInt32(&fl.registerCalls); n != 1 {
		t.Errorf("register calls = %d, want exactly 1", n)
	}
}

func TestRegisterFailureRollsBackClaim(t *testing.T) {
	fl := &fakeLedger{failRegister: ledger.ErrUnavailable}
	a, repo := newTestAllocator(t, fl)
	ctx := context.Background()

	id := testutil.InsertMedia(t, repo.DB, models.KindMovie, "p1", "Heat", time.Now().UTC())

	if _, err := a.Resolve(ctx, id); !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("resolve err = %v, want ErrUnavailable", err)
	}

	m, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.ContractID != nil {
		t.Fatalf("contract id = %v, want nil after rollback", m.ContractID)
	}

	// subsequent attempt succeeds exactly once
	fl.failRegister = nil
	got, err := a.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("retry resolve: %v", err)
	}
	if got != 0 {
		t.Errorf("contract id = %d, want 0", got)
	}
	if n := atomic.LoadInt32(&fl.registerCalls); n != 2 {
		t.Errorf("register calls = %d, want 2 (one failed, one succeeded)", n)
	}
}

func TestResolveAdoptsOrphanedRegistration(t *testing.T) {
	// simulates a crash after on-chain registration but before finalize:
	// the title already exists on-chain, the cache row has no id.
	fl := &fakeLedger{titles: []string{"Alien", "Blade Runner"}}
	a, repo := newTestAllocator(t, fl)
	ctx := context.Background()

	id := testutil.InsertMedia(t, repo.DB, models.KindMovie, "p1", "Blade Runner", time.Now().UTC())

	got, err := a.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 1 {
		t.Errorf("contract id = %d, want adopted id 1", got)
	}
	if n := atomic.LoadInt32(&fl.registerCalls); n != 0 {
		t.Errorf("register calls = %d, want 0 (adoption, not re-registration)", n)
	}
}

func TestResolveRecoversAbandonedClaim(t *testing.T) {
	// simulates a crash while the claim was held: the persisted -1 sentinel
	// has no live owner. After the wait expires the claim is reset and the
	// orphaned on-chain entry adopted instead of re-registered.
	fl := &fakeLedger{titles: []string{"Stalker"}}
	a, repo := newTestAllocator(t, fl)
	a.WaitTimeout = 50 * time.Millisecond
	ctx := context.Background()

	id := testutil.InsertMedia(t, repo.DB, models.KindMovie, "p1", "Stalker", time.Now().UTC())
	if err := repo.ClaimContractID(ctx, id); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// no finalize, no release: the holder is gone

	got, err := a.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("resolve after abandoned claim: %v", err)
	}
	if got != 0 {
		t.Errorf("contract id = %d, want adopted id 0", got)
	}
	if n := atomic.LoadInt32(&fl.registerCalls); n != 0 {
		t.Errorf("register calls = %d, want 0 (adoption, not re-registration)", n)
	}

	// the record carries the final id now; nothing is stuck allocating
	m, _ := repo.GetByID(ctx, id)
	if !m.Allocated() || *m.ContractID != 0 {
		t.Errorf("contract id = %v, want finalized 0", m.ContractID)
	}

	got2, err := a.Resolve(ctx, id)
	if err != nil || got2 != got {
		t.Errorf("second resolve = %d, %v", got2, err)
	}
}

func TestResolveRecoversAbandonedClaimWithoutChainEntry(t *testing.T) {
	// holder crashed before reaching the chain: recovery must fall through
	// to a single fresh registration.
	fl := &fakeLedger{}
	a, repo := newTestAllocator(t, fl)
	a.WaitTimeout = 50 * time.Millisecond
	ctx := context.Background()

	id := testutil.InsertMedia(t, repo.DB, models.KindMovie, "p1", "Brazil", time.Now().UTC())
	if err := repo.ClaimContractID(ctx, id); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, err := a.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("resolve after abandoned claim: %v", err)
	}
	if got != 0 {
		t.Errorf("contract id = %d, want 0", got)
	}
	if n := atomic.LoadInt32(&fl.registerCalls); n != 1 {
		t.Errorf("register calls = %d, want exactly 1", n)
	}
}

func TestScanFailureAbortsWithoutRegistering(t *testing.T) {
	fl := &fakeLedger{failScan: ledger.ErrUnavailable}
	a, repo := newTestAllocator(t, fl)
	ctx := context.Background()

	id := testutil.InsertMedia(t, repo.DB, models.KindMovie, "p1", "Solaris", time.Now().UTC())

	if _, err := a.Resolve(ctx, id); !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("resolve err = %v, want ErrUnavailable", err)
	}
	if n := atomic.LoadInt32(&fl.registerCalls); n != 0 {
		t.Errorf("register calls = %d, want 0 when the scan cannot run", n)
	}

	m, _ := repo.GetByID(ctx, id)
	if m.ContractID != nil {
		t.Errorf("contract id = %v, want nil after rollback", m.ContractID)
	}
}

func TestResolveMissingMedia(t *testing.T) {
	a, _ := newTestAllocator(t, &fakeLedger{})
	if _, err := a.Resolve(context.Background(), "missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
