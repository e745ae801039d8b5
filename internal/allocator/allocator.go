package allocator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/GideonNut/moviemeter/internal/catalog"
	"github.com/GideonNut/moviemeter/pkg/models"
)

// errClaimReleased signals that the claim holder rolled back; the waiter
// should go back and try to claim for itself.
var errClaimReleased = errors.New("claim released")

// Ledger is the slice of the relayer client the allocator needs.
type Ledger interface {
	RegisterMedia(ctx context.Context, title string) (int64, error)
	FindMediaByTitle(ctx context.Context, title string, limit int64) (int64, bool, error)
}

// Allocator assigns each media item its on-chain contract id at most once.
//
// Protocol: claim the cache row with a conditional NULL -> allocating update,
// register on-chain, then finalize allocating -> id. Losers of the claim
// poll until the winner finalizes or rolls back. registerMedia is not
// idempotent on-chain, so only the claim holder ever calls it — and even the
// holder first scans the chain for an entry with this title, adopting one
// left behind by a crash between registration and finalize.
type Allocator struct {
	Catalog *catalog.Repo
	Ledger  Ledger

	// PollInterval/WaitTimeout bound how losers wait on the winner.
	PollInterval time.Duration
	WaitTimeout  time.Duration

	// ScanLimit bounds the query-before-register title scan.
	ScanLimit int64
}

func New(cat *catalog.Repo, led Ledger) *Allocator {
	return &Allocator{
		Catalog:      cat,
		Ledger:       led,
		PollInterval: 100 * time.Millisecond,
		WaitTimeout:  30 * time.Second,
		ScanLimit:    200,
	}
}

// Resolve returns the item's contract id, allocating one if needed.
func (a *Allocator) Resolve(ctx context.Context, mediaID string) (int64, error) {
	for {
		m, err := a.Catalog.GetByID(ctx, mediaID)
		if err != nil {
			return 0, err
		}
		if m == nil {
			return 0, catalog.ErrNotFound
		}
		if m.Allocated() {
			return *m.ContractID, nil
		}

		if m.Allocating() {
			id, err := a.waitForWinner(ctx, mediaID)
			if errors.Is(err, errClaimReleased) {
				continue
			}
			return id, err
		}

		err = a.Catalog.ClaimContractID(ctx, mediaID)
		if errors.Is(err, catalog.ErrConflict) {
			// raced with another caller between read and claim
			id, err := a.waitForWinner(ctx, mediaID)
			if errors.Is(err, errClaimReleased) {
				continue
			}
			return id, err
		}
		if err != nil {
			return 0, err
		}

		id, err := a.register(ctx, m.Title)
		if err != nil {
			if rbErr := a.Catalog.ReleaseContractID(ctx, mediaID); rbErr != nil {
				log.Printf("[allocator] rollback claim for %s: %v", mediaID, rbErr)
			}
			return 0, err
		}

		if err := a.Catalog.FinalizeContractID(ctx, mediaID, id); err != nil {
			return 0, fmt.Errorf("finalize %s: %w", mediaID, err)
		}
		return id, nil
	}
}

// register obtains an on-chain id, preferring adoption of an existing entry
// over a fresh registration. A scan failure aborts rather than risking a
// duplicate registration.
func (a *Allocator) register(ctx context.Context, title string) (int64, error) {
	id, found, err := a.Ledger.FindMediaByTitle(ctx, title, a.ScanLimit)
	if err != nil {
		return 0, fmt.Errorf("pre-register scan: %w", err)
	}
	if found {
		log.Printf("[allocator] adopting existing on-chain entry %d for %q", id, title)
		return id, nil
	}
	return a.Ledger.RegisterMedia(ctx, title)
}

// waitForWinner polls until the claim holder finalizes an id or releases the
// claim. A release surfaces as errClaimReleased so the caller can re-claim.
//
// A claim that outlives WaitTimeout has no live owner — the holder crashed
// between claim and finalize. The waiter resets it to NULL and re-claims;
// the pre-register adoption scan then picks up any entry the dead holder
// managed to register, so the reset cannot cause a duplicate registration.
func (a *Allocator) waitForWinner(ctx context.Context, mediaID string) (int64, error) {
	deadline := time.Now().Add(a.WaitTimeout)
	for {
		m, err := a.Catalog.GetByID(ctx, mediaID)
		if err != nil {
			return 0, err
		}
		if m == nil {
			return 0, catalog.ErrNotFound
		}
		if m.Allocated() {
			return *m.ContractID, nil
		}
		if m.ContractID == nil || *m.ContractID != models.AllocatingContractID {
			return 0, errClaimReleased
		}

		if time.Now().After(deadline) {
			// conditional on the sentinel, so a winner finalizing right
			// now is never overwritten
			if err := a.Catalog.ReleaseContractID(ctx, mediaID); err != nil {
				return 0, fmt.Errorf("reset stale claim for %s: %w", mediaID, err)
			}
			log.Printf("[allocator] reset stale claim for %s after %s", mediaID, a.WaitTimeout)
			return 0, errClaimReleased
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(a.PollInterval):
		}
	}
}
