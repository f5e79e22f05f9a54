package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/madnificent/mu-image-service/image/application"
)

// NewApi registers the service's routes on the given engine.
func NewApi(router *gin.Engine, resolver *application.Resolver) {
	h := &ImageHandler{resolver: resolver}

	router.GET("/image/:id", h.GetImage)
	router.GET("/health", Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
