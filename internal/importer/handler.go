package importer

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GideonNut/moviemeter/pkg/models"
)

type Handler struct {
	Service *Service

	// DefaultWindow bounds retractions when the request does not name one.
	DefaultWindow time.Duration
}

func NewHandler(svc *Service, defaultWindow time.Duration) *Handler {
	return &Handler{Service: svc, DefaultWindow: defaultWindow}
}

// RegisterAdminRoutes mounts the import and retraction endpoints. The caller
// is expected to wrap the group in admin auth.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/import", h.runImport)
	rg.POST("/retract/movies", h.retract(models.KindMovie))
	rg.POST("/retract/tv", h.retract(models.KindTV))
}

type importReq struct {
	Kind string `json:"kind"` // "movie" or "tv"
	Mode string `json:"mode"` // "trending" or "search"
	Term string `json:"term,omitempty"`
}

func (h *Handler) runImport(c *gin.Context) {
	var req importReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	kind := models.MediaKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind != models.KindMovie && kind != models.KindTV {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "kind must be movie or tv"})
		return
	}

	q := Query{Mode: QueryMode(strings.ToLower(strings.TrimSpace(req.Mode))), Term: req.Term}
	if q.Mode == "" {
		q.Mode = ModeTrending
	}
	if err := q.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	res, err := h.Service.Import(c.Request.Context(), kind, q)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "import failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

type retractReq struct {
	// Window is a Go duration string, e.g. "24h". Optional.
	Window string `json:"window,omitempty"`
}

func (h *Handler) retract(kind models.MediaKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		window := h.DefaultWindow

		var req retractReq
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
				return
			}
			if req.Window != "" {
				d, err := time.ParseDuration(req.Window)
				if err != nil || d <= 0 {
					c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid window"})
					return
				}
				window = d
			}
		}

		deleted, err := h.Service.Retract(c.Request.Context(), kind, window)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "retraction failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "deleted_count": deleted})
	}
}
