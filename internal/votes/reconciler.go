package votes

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/GideonNut/moviemeter/internal/catalog"
	"github.com/GideonNut/moviemeter/internal/ledger"
	"github.com/GideonNut/moviemeter/pkg/models"
)

// Ledger is the slice of the relayer client the reconciler uses.
type Ledger interface {
	SubmitVote(ctx context.Context, contractID int64, address string, choice models.VoteChoice) error
	ReadTally(ctx context.Context, contractID int64) (models.Tally, error)
}

// ContractResolver supplies the item's on-chain id, allocating on first use.
type ContractResolver interface {
	Resolve(ctx context.Context, mediaID string) (int64, error)
}

// Notifier is the external notification dispatcher. Calls are
// fire-and-forget; a dispatch failure never rolls back a vote.
type Notifier interface {
	Notify(recipientID, title, body string)
}

// Broadcaster pushes reconciled tallies to the live feed.
type Broadcaster interface {
	BroadcastTally(mediaID string, contractID int64, tally models.Tally)
}

// Reconciler owns the castVote flow: resolve contract id, submit through
// the relayer, resync the cached tally from the chain, accrue points.
//
// The cache is never incremented optimistically — after a successful submit
// the tally is always pulled back from the chain, because concurrent voters
// may have landed in between and the chain is the only authority.
type Reconciler struct {
	Catalog  *catalog.Repo
	Points   PointsLedger
	Ledger   Ledger
	Resolver ContractResolver

	Notifier    Notifier    // optional
	Broadcaster Broadcaster // optional

	MaxAttempts int
	Backoff     time.Duration
	VotePoints  int64
}

// PointsLedger is the accrual surface the reconciler needs.
type PointsLedger interface {
	AddVotePoints(ctx context.Context, address string, amount int64) error
}

func NewReconciler(cat *catalog.Repo, pts PointsLedger, led Ledger, res ContractResolver) *Reconciler {
	return &Reconciler{
		Catalog:     cat,
		Points:      pts,
		Ledger:      led,
		Resolver:    res,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
		VotePoints:  10,
	}
}

// CastVote submits one ballot and returns the post-vote ledger tally.
//
// Failure policy: Rejected is permanent — surfaced to the caller with no
// cache or points mutation. Unavailable retries up to MaxAttempts with
// backoff. Timeout means the transaction's fate is unknown: it is resolved
// by re-reading the tally and comparing against the pre-submit snapshot,
// never by blind re-submission.
func (r *Reconciler) CastVote(ctx context.Context, address, mediaID string, choice models.VoteChoice) (models.Tally, error) {
	if !choice.Valid() {
		return models.Tally{}, fmt.Errorf("invalid choice %q", choice)
	}

	m, err := r.Catalog.GetByID(ctx, mediaID)
	if err != nil {
		return models.Tally{}, err
	}
	if m == nil {
		return models.Tally{}, catalog.ErrNotFound
	}

	var contractID int64
	if m.Allocated() {
		contractID = *m.ContractID
	} else {
		contractID, err = r.Resolver.Resolve(ctx, mediaID)
		if err != nil {
			return models.Tally{}, fmt.Errorf("resolve contract id: %w", err)
		}
	}

	intent := models.VoteIntent{
		Address:     address,
		MediaID:     mediaID,
		ContractID:  contractID,
		Choice:      choice,
		SubmittedAt: time.Now().UTC(),
	}

	if err := r.submit(ctx, intent); err != nil {
		return models.Tally{}, err
	}

	// Resync from the source of truth. If this read fails the vote has
	// still landed; points accrue now and the cache catches up on the
	// next successful resync for this item.
	tally, err := r.Ledger.ReadTally(ctx, contractID)
	if err != nil {
		r.accrue(ctx, address)
		return models.Tally{}, fmt.Errorf("vote landed, tally resync pending: %w", err)
	}

	if err := r.Catalog.UpdateTally(ctx, mediaID, tally); err != nil {
		r.accrue(ctx, address)
		return models.Tally{}, fmt.Errorf("vote landed, cache update failed: %w", err)
	}

	r.accrue(ctx, address)

	if r.Broadcaster != nil {
		r.Broadcaster.BroadcastTally(mediaID, contractID, tally)
	}
	if r.Notifier != nil {
		r.Notifier.Notify(address, "Vote recorded", fmt.Sprintf("Your %s vote on %s counted.", choice, m.Title))
	}

	return tally, nil
}

// submit drives the bounded retry loop around SubmitVote.
func (r *Reconciler) submit(ctx context.Context, intent models.VoteIntent) error {
	before, beforeErr := r.Ledger.ReadTally(ctx, intent.ContractID)

	var lastErr error
	for attempt := 0; attempt < r.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.Backoff * time.Duration(attempt)):
			}
		}

		err := r.Ledger.SubmitVote(ctx, intent.ContractID, intent.Address, intent.Choice)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ledger.ErrRejected) {
			return err
		}

		if errors.Is(err, ledger.ErrTimeout) {
			after, rerr := r.Ledger.ReadTally(ctx, intent.ContractID)
			if rerr != nil || beforeErr != nil {
				// without a baseline and a fresh read the transaction's
				// fate is unknowable; re-submitting could double the vote
				return fmt.Errorf("vote fate unresolved: %w", err)
			}
			if after.Total() > before.Total() {
				// the uncertain transaction did land
				return nil
			}
			// proven not landed; safe to retry
			before = after
		}
	}
	return fmt.Errorf("vote not accepted after %d attempts: %w", r.MaxAttempts, lastErr)
}

func (r *Reconciler) accrue(ctx context.Context, address string) {
	if err := r.Points.AddVotePoints(ctx, address, r.VotePoints); err != nil {
		log.Printf("[votes] accrue points for %s: %v", address, err)
	}
}

// Resync pulls the authoritative tally for one item and overwrites the
// cache. Repairs partial writes left by a crash between submit and resync.
func (r *Reconciler) Resync(ctx context.Context, mediaID string) (models.Tally, error) {
	m, err := r.Catalog.GetByID(ctx, mediaID)
	if err != nil {
		return models.Tally{}, err
	}
	if m == nil {
		return models.Tally{}, catalog.ErrNotFound
	}
	if !m.Allocated() {
		// nothing on-chain yet; the zero cache value is already correct
		return m.Votes, nil
	}

	tally, err := r.Ledger.ReadTally(ctx, *m.ContractID)
	if err != nil {
		return models.Tally{}, err
	}
	if err := r.Catalog.UpdateTally(ctx, mediaID, tally); err != nil {
		return models.Tally{}, err
	}
	if r.Broadcaster != nil {
		r.Broadcaster.BroadcastTally(mediaID, *m.ContractID, tally)
	}
	return tally, nil
}
