package models

import (
	"strings"
	"time"
)

// MediaKind discriminates the two catalog variants. Variant-only fields
// (Movie / TV below) are read only after checking Kind.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
)

// AllocatingContractID is the reserved in-flight marker written while an
// on-chain registration is underway. Real contract ids are >= 0.
const AllocatingContractID int64 = -1

// Tally mirrors the on-chain yes/no counters for one media item.
// The chain is authoritative; this is a cache snapshot.
type Tally struct {
	Yes int64 `json:"yes"`
	No  int64 `json:"no"`
}

func (t Tally) Total() int64 { return t.Yes + t.No }

// MovieDetails holds the movie-only fields.
type MovieDetails struct {
	ReleaseYear int `json:"releaseYear,omitempty"`
}

// TVDetails holds the TV-show-only fields.
type TVDetails struct {
	FirstAirDate string `json:"firstAirDate,omitempty"`
}

// MediaItem is the cached form of a movie or TV show.
//
// ProviderID is the external catalog identifier and the dedup key for
// imports. ContractID is nil until the item is registered on-chain; once a
// real id is set it never changes. PosterPath is stored provider-relative
// and made absolute at read time.
type MediaItem struct {
	ID           string        `json:"id"`
	Kind         MediaKind     `json:"kind"`
	ProviderID   string        `json:"provider_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	PosterPath   string        `json:"poster_path,omitempty"`
	Genres       []string      `json:"genres"`
	Votes        Tally         `json:"votes"`
	CommentCount int           `json:"comment_count"`
	ContractID   *int64        `json:"contract_id,omitempty"`
	Movie        *MovieDetails `json:"movie,omitempty"`
	TV           *TVDetails    `json:"tv,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Allocated reports whether the item carries a final on-chain id.
func (m *MediaItem) Allocated() bool {
	return m.ContractID != nil && *m.ContractID >= 0
}

// Allocating reports whether a registration is currently in flight.
func (m *MediaItem) Allocating() bool {
	return m.ContractID != nil && *m.ContractID == AllocatingContractID
}

// PosterURL joins the stored provider-relative poster path onto base.
// Empty when no poster is known.
func (m *MediaItem) PosterURL(base string) string {
	if m.PosterPath == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(m.PosterPath, "/")
}

// VoteChoice is a yes/no ballot value.
type VoteChoice string

const (
	VoteYes VoteChoice = "yes"
	VoteNo  VoteChoice = "no"
)

func (v VoteChoice) Valid() bool { return v == VoteYes || v == VoteNo }

// VoteIntent is the ephemeral record of one vote being reconciled. It is
// never persisted; it either resolves into a tally update plus points
// accrual or is discarded.
type VoteIntent struct {
	Address     string     `json:"address"`
	MediaID     string     `json:"media_id"`
	ContractID  int64      `json:"contract_id"`
	Choice      VoteChoice `json:"choice"`
	SubmittedAt time.Time  `json:"submitted_at"`
}
