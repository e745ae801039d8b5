package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GideonNut/moviemeter/pkg/models"
)

type Handler struct {
	Repo *Repo

	// ImageBaseURL is joined onto stored provider-relative poster paths
	// at read time; the provider domain is never baked into the cache.
	ImageBaseURL string
}

func NewHandler(repo *Repo, imageBaseURL string) *Handler {
	return &Handler{Repo: repo, ImageBaseURL: imageBaseURL}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)        // GET /media
	rg.GET("/:id", h.getByID) // GET /media/:id
}

type mediaResponse struct {
	models.MediaItem
	PosterURL string `json:"poster_url,omitempty"`
}

func (h *Handler) render(m models.MediaItem) mediaResponse {
	return mediaResponse{MediaItem: m, PosterURL: m.PosterURL(h.ImageBaseURL)}
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{
		Q:      c.Query("q"),
		Limit:  parseInt(c.Query("limit"), 20),
		Offset: parseInt(c.Query("offset"), 0),
	}

	switch kind := c.Query("kind"); kind {
	case "", "all":
	case string(models.KindMovie), string(models.KindTV):
		q.Kind = models.MediaKind(kind)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "kind must be movie or tv"})
		return
	}

	// genres=Action,Drama OR genres=Action&genres=Drama
	genres := c.QueryArray("genres")
	if len(genres) == 0 {
		if s := c.Query("genres"); s != "" {
			genres = strings.Split(s, ",")
		}
	}
	q.Genres = genres

	total, err := h.Repo.Count(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "count failed"})
		return
	}

	items, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "list failed"})
		return
	}

	out := make([]mediaResponse, 0, len(items))
	for _, m := range items {
		out = append(out, h.render(m))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   total,
		"limit":   q.Limit,
		"offset":  q.Offset,
		"items":   out,
	})
}

func (h *Handler) getByID(c *gin.Context) {
	id := c.Param("id")
	m, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "get failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "item": h.render(*m)})
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
