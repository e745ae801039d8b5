package points

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GideonNut/moviemeter/pkg/models"
)

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.get) // GET /points?address=  |  GET /points (leaderboard)
}

// get serves both shapes: with an address it returns that record (a
// default-zero one when the address has never earned), without it the
// leaderboard.
func (h *Handler) get(c *gin.Context) {
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		h.leaderboard(c)
		return
	}

	p, err := h.Repo.Get(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "points lookup failed"})
		return
	}
	if p == nil {
		zero := models.ZeroPoints(address)
		p = &zero
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "points": p})
}

func (h *Handler) leaderboard(c *gin.Context) {
	limit := 100
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	records, err := h.Repo.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "leaderboard failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "leaderboard": records})
}
