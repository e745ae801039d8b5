package comments

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GideonNut/moviemeter/internal/catalog"
	"github.com/GideonNut/moviemeter/internal/identity"
)

// PointsLedger is the accrual surface for comment rewards.
type PointsLedger interface {
	AddCommentPoints(ctx context.Context, address string, amount int64) error
}

type Handler struct {
	Repo    *Repo
	Catalog *catalog.Repo

	Points        PointsLedger
	CommentPoints int64
}

func NewHandler(repo *Repo, cat *catalog.Repo, pts PointsLedger, commentPoints int64) *Handler {
	return &Handler{Repo: repo, Catalog: cat, Points: pts, CommentPoints: commentPoints}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/media/:id/comments", h.listByMedia)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/comments", h.create)
	rg.POST("/comments/:id/like", h.like)
	rg.POST("/comments/:id/replies", h.reply)
}

type createReq struct {
	MediaID string `json:"media_id"`
	Content string `json:"content"`
}

func (h *Handler) create(c *gin.Context) {
	address := identity.MustGetAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	mediaID := strings.TrimSpace(req.MediaID)
	content := strings.TrimSpace(req.Content)
	if mediaID == "" || content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "media_id and content required"})
		return
	}

	m, err := h.Catalog.GetByID(c.Request.Context(), mediaID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "media lookup failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "media not found"})
		return
	}

	cm, err := h.Repo.Create(c.Request.Context(), mediaID, address, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "create failed"})
		return
	}

	// accrual failure never unwinds the comment
	if h.Points != nil {
		if err := h.Points.AddCommentPoints(c.Request.Context(), address, h.CommentPoints); err != nil {
			log.Printf("[comments] accrue points for %s: %v", address, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "comment": cm})
}

func (h *Handler) like(c *gin.Context) {
	address := identity.MustGetAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	cm, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "lookup failed"})
		return
	}
	if cm == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "comment not found"})
		return
	}

	added, err := h.Repo.Like(c.Request.Context(), id, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "like failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "liked": added})
}

type replyReq struct {
	Content string `json:"content"`
}

func (h *Handler) reply(c *gin.Context) {
	address := identity.MustGetAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	var req replyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "content required"})
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	cm, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "lookup failed"})
		return
	}
	if cm == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "comment not found"})
		return
	}

	rp, err := h.Repo.Reply(c.Request.Context(), id, address, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "reply failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "reply": rp})
}

func (h *Handler) listByMedia(c *gin.Context) {
	mediaID := strings.TrimSpace(c.Param("id"))
	if mediaID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "media id required"})
		return
	}

	limit := parseInt(c.Query("limit"), 20)
	offset := parseInt(c.Query("offset"), 0)

	items, err := h.Repo.ListByMedia(c.Request.Context(), mediaID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"limit":   limit,
		"offset":  offset,
		"items":   items,
	})
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
