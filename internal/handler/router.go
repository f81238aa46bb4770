package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/menta2k/safety-analyzer/internal/middleware"
)

// NewRouter builds the gin engine with the standard middleware chain
func NewRouter(h *Handler, maxBodyBytes int64) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.BodyLimit(maxBodyBytes))

	h.Register(r)
	return r
}
