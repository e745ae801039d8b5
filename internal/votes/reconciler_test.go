package votes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GideonNut/moviemeter/internal/catalog"
	"github.com/GideonNut/moviemeter/internal/ledger"
	"github.com/GideonNut/moviemeter/internal/points"
	"github.com/GideonNut/moviemeter/internal/testutil"
	"github.com/GideonNut/moviemeter/pkg/models"
)

// fakeChain scripts relayer behavior per submit attempt.
type fakeChain struct {
	mu          sync.Mutex
	tally       models.Tally
	submitPlan  []submitStep // consumed one per SubmitVote call
	submitCalls int
	readErr     error // every ReadTally call
	readErrOnce error // next ReadTally call only
}

type submitStep struct {
	err   error
	lands bool // transaction reached the chain despite err (timeout case)
}

func (f *fakeChain) SubmitVote(ctx context.Context, contractID int64, address string, choice models.VoteChoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	step := submitStep{} // default: clean success
	if f.submitCalls < len(f.submitPlan) {
		step = f.submitPlan[f.submitCalls]
	}
	f.submitCalls++

	if step.err == nil || step.lands {
		if choice == models.VoteYes {
			f.tally.Yes++
		} else {
			f.tally.No++
		}
	}
	return step.err
}

func (f *fakeChain) ReadTally(ctx context.Context, contractID int64) (models.Tally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErrOnce != nil {
		err := f.readErrOnce
		f.readErrOnce = nil
		return models.Tally{}, err
	}
	if f.readErr != nil {
		return models.Tally{}, f.readErr
	}
	return f.tally, nil
}

type fixedResolver struct {
	id  int64
	err error
}

func (r fixedResolver) Resolve(ctx context.Context, mediaID string) (int64, error) {
	return r.id, r.err
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.Tally
}

func (b *recordingBroadcaster) BroadcastTally(mediaID string, contractID int64, tally models.Tally) {
	b.mu.Lock()
	b.events = append(b.events, tally)
	b.mu.Unlock()
}

func newTestReconciler(t *testing.T, chain *fakeChain) (*Reconciler, *catalog.Repo, *points.Repo) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	catRepo := catalog.NewRepo(db)
	ptsRepo := points.NewRepo(db)

	rec := NewReconciler(catRepo, ptsRepo, chain, fixedResolver{id: 3})
	rec.Backoff = time.Millisecond
	return rec, catRepo, ptsRepo
}

// seedAllocated inserts a media row already carrying contract id 3.
func seedAllocated(t *testing.T, repo *catalog.Repo) string {
	t.Helper()
	ctx := context.Background()
	id := testutil.InsertMedia(t, repo.DB, models.KindMovie, "p1", "Inception", time.Now().UTC())
	if err := repo.ClaimContractID(ctx, id); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.FinalizeContractID(ctx, id, 3); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return id
}

func TestCastVoteHappyPath(t *testing.T) {
	chain := &fakeChain{tally: models.Tally{Yes: 5, No: 2}}
	rec, catRepo, ptsRepo := newTestReconciler(t, chain)
	bc := &recordingBroadcaster{}
	rec.Broadcaster = bc
	ctx := context.Background()

	id := seedAllocated(t, catRepo)

	tally, err := rec.CastVote(ctx, "0xvoter", id, models.VoteYes)
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if tally.Yes != 6 || tally.No != 2 {
		t.Errorf("tally = %+v, want {6 2}", tally)
	}

	// cache mirrors the ledger snapshot
	m, _ := catRepo.GetByID(ctx, id)
	if m.Votes != tally {
		t.Errorf("cached votes = %+v, want %+v", m.Votes, tally)
	}

	// points accrued
	p, _ := ptsRepo.Get(ctx, "0xvoter")
	if p == nil || p.VotePoints != rec.VotePoints {
		t.Errorf("points = %+v, want vote points %d", p, rec.VotePoints)
	}

	// tally pushed to the live feed
	if len(bc.events) != 1 || bc.events[0] != tally {
		t.Errorf("broadcasts = %+v", bc.events)
	}
}

func TestRejectedLeavesStateUntouched(t *testing.T) {
	chain := &fakeChain{
		tally:      models.Tally{Yes: 5, No: 2},
		submitPlan: []submitStep{{err: ledger.ErrRejected}},
	}
	rec, catRepo, ptsRepo := newTestReconciler(t, chain)
	ctx := context.Background()

	id := seedAllocated(t, catRepo)
	preMedia, _ := catRepo.GetByID(ctx, id)

	if _, err := rec.CastVote(ctx, "0xvoter", id, models.VoteYes); !errors.Is(err, ledger.ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}

	// no retry on a permanent rejection
	if chain.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", chain.submitCalls)
	}

	postMedia, _ := catRepo.GetByID(ctx, id)
	if postMedia.Votes != preMedia.Votes {
		t.Errorf("cached votes mutated: %+v -> %+v", preMedia.Votes, postMedia.Votes)
	}
	if p, _ := ptsRepo.Get(ctx, "0xvoter"); p != nil {
		t.Errorf("points accrued on rejected vote: %+v", p)
	}
}

func TestUnavailableRetriesThenSucceeds(t *testing.T) {
	chain := &fakeChain{
		submitPlan: []submitStep{
			{err: ledger.ErrUnavailable},
			{err: ledger.ErrUnavailable},
			{}, // third attempt succeeds
		},
	}
	rec, catRepo, ptsRepo := newTestReconciler(t, chain)
	ctx := context.Background()

	id := seedAllocated(t, catRepo)

	tally, err := rec.CastVote(ctx, "0xvoter", id, models.VoteNo)
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if chain.submitCalls != 3 {
		t.Errorf("submit calls = %d, want 3", chain.submitCalls)
	}
	if tally.No != 1 {
		t.Errorf("tally = %+v", tally)
	}
	if p, _ := ptsRepo.Get(ctx, "0xvoter"); p == nil {
		t.Error("points missing after eventual success")
	}
}

func TestUnavailableExhaustsAttempts(t *testing.T) {
	chain := &fakeChain{
		submitPlan: []submitStep{
			{err: ledger.ErrUnavailable},
			{err: ledger.ErrUnavailable},
			{err: ledger.ErrUnavailable},
		},
	}
	rec, catRepo, ptsRepo := newTestReconciler(t, chain)
	ctx := context.Background()

	id := seedAllocated(t, catRepo)

	if _, err := rec.CastVote(ctx, "0xvoter", id, models.VoteYes); !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if chain.submitCalls != 3 {
		t.Errorf("submit calls = %d, want MaxAttempts", chain.submitCalls)
	}
	if p, _ := ptsRepo.Get(ctx, "0xvoter"); p != nil {
		t.Errorf("points accrued on failed vote: %+v", p)
	}
}

func TestTimeoutResolvedByTallyReread(t *testing.T) {
	// the submit times out but the transaction actually lands; the
	// reconciler must detect that from the tally, not re-submit
	chain := &fakeChain{
		tally:      models.Tally{Yes: 1, No: 0},
		submitPlan: []submitStep{{err: ledger.ErrTimeout, lands: true}},
	}
	rec, catRepo, _ := newTestReconciler(t, chain)
	ctx := context.Background()

	id := seedAllocated(t, catRepo)

	tally, err := rec.CastVote(ctx, "0xvoter", id, models.VoteYes)
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if chain.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1 (no blind re-submission)", chain.submitCalls)
	}
	if tally.Yes != 2 {
		t.Errorf("tally = %+v, want yes=2 (exactly one vote recorded)", tally)
	}
}

func TestTimeoutWithoutBaselineNeverResubmits(t *testing.T) {
	// the baseline tally read failed, so after a timeout the re-read cannot
	// tell whether the transaction landed. The only safe move is to stop:
	// another submission could record the vote twice.
	chain := &fakeChain{
		tally:       models.Tally{Yes: 1, No: 0},
		readErrOnce: ledger.ErrUnavailable,
		submitPlan:  []submitStep{{err: ledger.ErrTimeout, lands: true}},
	}
	rec, catRepo, ptsRepo := newTestReconciler(t, chain)
	ctx := context.Background()

	id := seedAllocated(t, catRepo)

	_, err := rec.CastVote(ctx, "0xvoter", id, models.VoteYes)
	if !errors.Is(err, ledger.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if chain.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1 (no re-submission with unknown fate)", chain.submitCalls)
	}

	// nothing accrued, cache untouched
	p, _ := ptsRepo.Get(ctx, "0xvoter")
	if p != nil {
		t.Errorf("points = %+v, want none", p)
	}
	m, _ := catRepo.GetByID(ctx, id)
	if m.Votes != (models.Tally{}) {
		t.Errorf("cached votes = %+v, want zero", m.Votes)
	}
}

func TestTimeoutWithFailedRereadNeverResubmits(t *testing.T) {
	chain := &fakeChain{
		readErr:    ledger.ErrUnavailable,
		submitPlan: []submitStep{{err: ledger.ErrTimeout, lands: true}},
	}
	rec, catRepo, _ := newTestReconciler(t, chain)

	id := seedAllocated(t, catRepo)

	_, err := rec.CastVote(context.Background(), "0xvoter", id, models.VoteYes)
	if !errors.Is(err, ledger.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if chain.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", chain.submitCalls)
	}
}

func TestAllocatesOnFirstVote(t *testing.T) {
	chain := &fakeChain{}
	rec, catRepo, _ := newTestReconciler(t, chain)
	rec.Resolver = fixedResolver{id: 7}
	ctx := context.Background()

	id := testutil.InsertMedia(t, catRepo.DB, models.KindMovie, "p1", "Fresh", time.Now().UTC())

	if _, err := rec.CastVote(ctx, "0xvoter", id, models.VoteYes); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if chain.submitCalls != 1 {
		t.Errorf("submit calls = %d", chain.submitCalls)
	}
}

func TestCastVoteUnknownMedia(t *testing.T) {
	rec, _, _ := newTestReconciler(t, &fakeChain{})
	if _, err := rec.CastVote(context.Background(), "0xvoter", "missing", models.VoteYes); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResyncRepairsCache(t *testing.T) {
	chain := &fakeChain{tally: models.Tally{Yes: 9, No: 4}}
	rec, catRepo, _ := newTestReconciler(t, chain)
	ctx := context.Background()

	id := seedAllocated(t, catRepo)

	tally, err := rec.Resync(ctx, id)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if tally.Yes != 9 || tally.No != 4 {
		t.Errorf("tally = %+v", tally)
	}

	m, _ := catRepo.GetByID(ctx, id)
	if m.Votes != tally {
		t.Errorf("cached votes = %+v, want %+v", m.Votes, tally)
	}
}

func TestResyncUnallocatedIsNoop(t *testing.T) {
	chain := &fakeChain{tally: models.Tally{Yes: 5}}
	rec, catRepo, _ := newTestReconciler(t, chain)
	ctx := context.Background()

	id := testutil.InsertMedia(t, catRepo.DB, models.KindMovie, "p1", "Unpublished", time.Now().UTC())

	tally, err := rec.Resync(ctx, id)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if tally.Yes != 0 || tally.No != 0 {
		t.Errorf("tally = %+v, want zero for unallocated item", tally)
	}
}
