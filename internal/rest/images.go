package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/madnificent/mu-image-service/image/application"
	"github.com/madnificent/mu-image-service/image/domain"
	"github.com/madnificent/mu-image-service/internal/metrics"
)

// ImageHandler serves cached or freshly derived image renditions.
type ImageHandler struct {
	resolver *application.Resolver
}

// GetImage handles GET /image/:id?width=<int>&height=<int>. Either
// dimension is independently optional; an omitted one leaves that axis
// unconstrained.
func (h *ImageHandler) GetImage(c *gin.Context) {
	start := time.Now()
	defer func() { metrics.RequestDuration.Observe(time.Since(start).Seconds()) }()

	id := c.Param("id")

	width, err := parseDimension(c.Query("width"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid width")
		return
	}

	height, err := parseDimension(c.Query("height"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid height")
		return
	}

	stream, contentType, err := h.resolver.Resolve(c.Request.Context(), id, width, height)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.String(http.StatusNotFound, "File not found")
			return
		}

		log.Error().Err(err).Str("id", id).Msg("Failed to resolve image")
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	defer stream.Close()

	// Length is unknown for fresh derivations; gin falls back to chunked
	// transfer. An error past this point can only truncate the body.
	c.DataFromReader(http.StatusOK, -1, contentType, stream, nil)
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// parseDimension maps an absent query value to the unset sentinel 0 and
// rejects anything that is not a positive integer.
func parseDimension(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid dimension %q: %w", raw, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("dimension cannot be negative: %d", value)
	}

	return value, nil
}
