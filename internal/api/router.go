package api

import (
	"net/http"
	"time"

	"exto/internal/images"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger       zerolog.Logger
	AllowOrigins []string
	// UploadDir is served under images.UploadPrefix when set.
	UploadDir string
}

// NewRouter builds the gin engine with the shared middleware stack and the handler routes.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	engine := gin.New()
	engine.Use(requestLogger(opts.Logger))
	engine.Use(gin.CustomRecovery(handlePanics()))

	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-CSRF-Token", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if opts.UploadDir != "" {
		engine.Use(static.Serve(images.UploadPrefix, static.LocalFile(opts.UploadDir, false)))
	}

	h.RegisterRoutes(engine)
	return engine
}
