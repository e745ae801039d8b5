package importer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/GideonNut/moviemeter/internal/catalog"
	"github.com/GideonNut/moviemeter/pkg/models"
)

// Catalog is the slice of the media store the importer writes through.
type Catalog interface {
	GetByProviderID(ctx context.Context, kind models.MediaKind, providerID string) (*models.MediaItem, error)
	Insert(ctx context.Context, m *models.MediaItem) error
	UpdateMetadata(ctx context.Context, m *models.MediaItem, now time.Time) error
	ListCreatedSince(ctx context.Context, kind models.MediaKind, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Announcer pushes "new title" notices out to registered clients. Calls are
// fire and forget.
type Announcer interface {
	BroadcastNewMedia(title string)
}

// Service drives bulk catalog imports and windowed retractions. Both are
// cache-only operations: nothing here ever reaches the ledger. A retracted
// item's on-chain registration simply stops being mirrored.
type Service struct {
	Catalog  Catalog
	Source   Source
	Announce Announcer // optional

	// Now is injectable for tests.
	Now func() time.Time
}

func NewService(cat Catalog, src Source) *Service {
	return &Service{Catalog: cat, Source: src, Now: time.Now}
}

// Result summarizes one import run.
type Result struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// Import fetches one provider listing and upserts it into the cache keyed by
// (kind, provider id). Re-running the same import refreshes metadata only:
// votes, contract ids and comment counts on existing rows are never touched.
func (s *Service) Import(ctx context.Context, kind models.MediaKind, q Query) (Result, error) {
	var res Result

	items, err := s.Source.Fetch(ctx, kind, q)
	if err != nil {
		return res, fmt.Errorf("fetch from %s: %w", s.Source.Name(), err)
	}
	res.Fetched = len(items)

	now := s.Now().UTC()
	seen := make(map[string]bool, len(items))

	for i := range items {
		m := &items[i]
		if seen[m.ProviderID] {
			// provider pages can repeat entries
			res.Skipped++
			continue
		}
		seen[m.ProviderID] = true

		existing, err := s.Catalog.GetByProviderID(ctx, kind, m.ProviderID)
		if err != nil {
			return res, fmt.Errorf("lookup provider id %s: %w", m.ProviderID, err)
		}

		if existing == nil {
			m.ID = uuid.NewString()
			m.CreatedAt = now
			m.UpdatedAt = now
			if err := s.Catalog.Insert(ctx, m); err != nil {
				return res, fmt.Errorf("insert %q: %w", m.Title, err)
			}
			res.Inserted++
			if s.Announce != nil {
				s.Announce.BroadcastNewMedia(m.Title)
			}
			continue
		}

		if err := s.Catalog.UpdateMetadata(ctx, m, now); err != nil {
			return res, fmt.Errorf("refresh %q: %w", m.Title, err)
		}
		res.Updated++
	}

	log.Printf("[importer] %s %s: fetched=%d inserted=%d updated=%d skipped=%d",
		s.Source.Name(), kind, res.Fetched, res.Inserted, res.Updated, res.Skipped)
	return res, nil
}

// Retract hard-deletes every item of the given kind created within the last
// window. Deletes are best effort per row; a failed row is logged and skipped
// so one bad row cannot wedge the batch. Returns the number actually deleted.
func (s *Service) Retract(ctx context.Context, kind models.MediaKind, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, fmt.Errorf("retraction window must be positive")
	}

	cutoff := s.Now().UTC().Add(-window)
	ids, err := s.Catalog.ListCreatedSince(ctx, kind, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list retraction candidates: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		ok, err := s.Catalog.Delete(ctx, id)
		if err != nil {
			log.Printf("[importer] retract %s: delete %s: %v", kind, id, err)
			continue
		}
		if ok {
			deleted++
		}
	}

	log.Printf("[importer] retract %s: window=%s candidates=%d deleted=%d",
		kind, window, len(ids), deleted)
	return deleted, nil
}

var _ Catalog = (*catalog.Repo)(nil)
