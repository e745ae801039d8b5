package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GideonNut/moviemeter/pkg/models"
	"github.com/GideonNut/moviemeter/pkg/utils"
)

// QueryMode selects which provider listing an import pulls from.
type QueryMode string

const (
	ModeTrending QueryMode = "trending"
	ModeSearch   QueryMode = "search"
)

// Query describes one provider fetch. Term is required for search mode and
// ignored for trending.
type Query struct {
	Mode QueryMode
	Term string
}

func (q Query) Validate() error {
	switch q.Mode {
	case ModeTrending:
		return nil
	case ModeSearch:
		if strings.TrimSpace(q.Term) == "" {
			return fmt.Errorf("search query requires a term")
		}
		return nil
	default:
		return fmt.Errorf("unknown query mode %q", q.Mode)
	}
}

// Source fetches catalog entries from an external metadata provider and maps
// them into MediaItem values. Returned items carry provider metadata only;
// ids, timestamps and vote state are the importer's business.
type Source interface {
	Name() string
	Fetch(ctx context.Context, kind models.MediaKind, q Query) ([]models.MediaItem, error)
}

// TMDBSource pulls movie and TV listings from a TMDB-compatible API.
type TMDBSource struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
	Pages   int // pages per fetch (20 items each)
}

func NewTMDBSource(cfg utils.ProviderConfig) *TMDBSource {
	return &TMDBSource{
		Client:  &http.Client{Timeout: 12 * time.Second},
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:  cfg.APIKey,
		Pages:   2,
	}
}

func (s *TMDBSource) Name() string { return "tmdb" }

type tmdbResponse struct {
	Page    int `json:"page"`
	Results []struct {
		ID           int64   `json:"id"`
		Title        string  `json:"title"` // movie
		Name         string  `json:"name"`  // tv
		Overview     string  `json:"overview"`
		PosterPath   string  `json:"poster_path"`
		GenreIDs     []int64 `json:"genre_ids"`
		ReleaseDate  string  `json:"release_date"`   // movie, YYYY-MM-DD
		FirstAirDate string  `json:"first_air_date"` // tv, YYYY-MM-DD
	} `json:"results"`
	TotalPages int `json:"total_pages"`
}

func (s *TMDBSource) Fetch(ctx context.Context, kind models.MediaKind, q Query) ([]models.MediaItem, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	pages := s.Pages
	if pages <= 0 {
		pages = 1
	}

	var all []models.MediaItem
	for page := 1; page <= pages; page++ {
		items, more, err := s.fetchPage(ctx, kind, q, page)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if !more {
			break
		}
	}
	return all, nil
}

func (s *TMDBSource) fetchPage(ctx context.Context, kind models.MediaKind, q Query, page int) ([]models.MediaItem, bool, error) {
	u, err := url.Parse(s.endpoint(kind, q))
	if err != nil {
		return nil, false, fmt.Errorf("tmdb: build url: %w", err)
	}
	vals := u.Query()
	vals.Set("api_key", s.APIKey)
	vals.Set("page", strconv.Itoa(page))
	if q.Mode == ModeSearch {
		vals.Set("query", strings.TrimSpace(q.Term))
	}
	u.RawQuery = vals.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("tmdb: build request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("tmdb: request: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// body may echo the api key on some providers; report status only
		return nil, false, fmt.Errorf("tmdb: status %d", resp.StatusCode)
	}

	var tr tmdbResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, false, fmt.Errorf("tmdb: decode: %w", err)
	}

	items := make([]models.MediaItem, 0, len(tr.Results))
	for _, r := range tr.Results {
		title := r.Title
		if kind == models.KindTV {
			title = r.Name
		}
		title = strings.TrimSpace(title)
		if r.ID == 0 || title == "" {
			continue
		}

		m := models.MediaItem{
			Kind:        kind,
			ProviderID:  strconv.FormatInt(r.ID, 10),
			Title:       title,
			Description: strings.TrimSpace(r.Overview),
			PosterPath:  r.PosterPath,
			Genres:      genreNames(r.GenreIDs),
		}
		switch kind {
		case models.KindMovie:
			if y := yearOf(r.ReleaseDate); y > 0 {
				m.Movie = &models.MovieDetails{ReleaseYear: y}
			}
		case models.KindTV:
			if r.FirstAirDate != "" {
				m.TV = &models.TVDetails{FirstAirDate: r.FirstAirDate}
			}
		}
		items = append(items, m)
	}
	return items, tr.Page < tr.TotalPages, nil
}

func (s *TMDBSource) endpoint(kind models.MediaKind, q Query) string {
	path := "movie"
	if kind == models.KindTV {
		path = "tv"
	}
	if q.Mode == ModeSearch {
		return s.BaseURL + "/search/" + path
	}
	return s.BaseURL + "/trending/" + path + "/week"
}

// tmdbGenres covers the stable TMDB genre dictionary for movies and TV.
// Unknown ids are dropped rather than guessed.
var tmdbGenres = map[int64]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
	10759: "Action & Adventure",
	10762: "Kids",
	10763: "News",
	10764: "Reality",
	10765: "Sci-Fi & Fantasy",
	10766: "Soap",
	10767: "Talk",
	10768: "War & Politics",
}

func genreNames(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := tmdbGenres[id]; ok {
			out = append(out, name)
		}
	}
	return out
}

// yearOf extracts the year from a YYYY-MM-DD provider date.
func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
