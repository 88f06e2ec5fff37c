package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"party-rounds/internal/game"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage exposes the reason of a classified error. Store and oracle
// failures are replaced by fallback.
func clientMessage(err error, fallback string) string {
	var gameErr *game.Error
	if errors.As(err, &gameErr) && statusFor(err) != http.StatusInternalServerError {
		return gameErr.Error()
	}
	return fallback
}

func writeError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed path=%s error=%v", c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": clientMessage(err, fallback)})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if _, ok := allowed[origin]; ok {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Accept, Content-Type, Origin, X-Requested-With")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// originAllowed gates websocket upgrades. Non-browser clients send no Origin.
func originAllowed(origins []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}
