package sink

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/logger"
)

// NewRouter exposes the records held by latest as a read-only JSON API.
func NewRouter(latest *Latest, log logger.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), loggingMiddleware(log))

	h := &apiHandler{latest: latest, log: log}

	router.GET("/healthz", h.healthz)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/devices", h.devices)
		v1.GET("/devices/:id", h.device)
	}

	return router
}

type apiHandler struct {
	latest *Latest
	log    logger.Logger
}

func (h *apiHandler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "devices": h.latest.Len()})
}

// devices lists the newest record of every device. The optional
// min_status query keeps records whose overall status is at least that
// severity.
func (h *apiHandler) devices(c *gin.Context) {
	records := h.latest.Records()

	if q := c.Query("min_status"); q != "" {
		threshold, err := health.ParseSeverity(q)
		if err != nil {
			h.errorResponse(c, http.StatusBadRequest, "invalid min_status: "+q)
			return
		}
		filtered := records[:0]
		for _, rec := range records {
			if rec.Overall().AtLeast(threshold) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"count":   len(records),
		"devices": records,
	})
}

func (h *apiHandler) device(c *gin.Context) {
	id := c.Param("id")
	rec, ok := h.latest.Get(id)
	if !ok {
		h.errorResponse(c, http.StatusNotFound, "device not found: "+id)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "record": rec})
}

func (h *apiHandler) errorResponse(c *gin.Context, code int, message string) {
	h.log.Debug().Int("status", code).Str("path", c.Request.URL.Path).Msg(message)
	c.AbortWithStatusJSON(code, gin.H{
		"status": "error",
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request completed")
	}
}
