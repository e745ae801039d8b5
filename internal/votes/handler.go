package votes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GideonNut/moviemeter/internal/catalog"
	"github.com/GideonNut/moviemeter/internal/identity"
	"github.com/GideonNut/moviemeter/internal/ledger"
	"github.com/GideonNut/moviemeter/pkg/models"
)

type Handler struct {
	Reconciler *Reconciler
}

func NewHandler(rec *Reconciler) *Handler {
	return &Handler{Reconciler: rec}
}

// RegisterProtectedRoutes mounts the voting endpoint behind identity
// middleware.
func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/votes", h.castVote)
}

// RegisterAdminRoutes mounts the maintenance resync endpoint.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/resync/:id", h.resync)
}

type castVoteReq struct {
	MediaID string `json:"media_id"`
	Choice  string `json:"choice"` // "yes" or "no"
}

func (h *Handler) castVote(c *gin.Context) {
	address := identity.MustGetAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	var req castVoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	mediaID := strings.TrimSpace(req.MediaID)
	if mediaID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "media_id required"})
		return
	}

	choice := models.VoteChoice(strings.ToLower(strings.TrimSpace(req.Choice)))
	if !choice.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "choice must be yes or no"})
		return
	}

	tally, err := h.Reconciler.CastVote(c.Request.Context(), address, mediaID, choice)
	if err != nil {
		status, msg := mapVoteError(err)
		c.JSON(status, gin.H{"success": false, "error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "votes": tally})
}

func (h *Handler) resync(c *gin.Context) {
	tally, err := h.Reconciler.Resync(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, msg := mapVoteError(err)
		c.JSON(status, gin.H{"success": false, "error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "votes": tally})
}

// mapVoteError keeps responses display-safe: taxonomy and a short reason,
// never relayer internals or credentials.
func mapVoteError(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "media not found"
	case errors.Is(err, ledger.ErrRejected):
		return http.StatusBadGateway, "vote rejected by relayer"
	case errors.Is(err, ledger.ErrUnavailable), errors.Is(err, ledger.ErrTimeout):
		return http.StatusServiceUnavailable, "ledger temporarily unavailable, try again"
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict, "allocation in progress, try again"
	default:
		return http.StatusInternalServerError, "vote failed"
	}
}
