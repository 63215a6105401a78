// Package httpapi assembles the gin router.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmerrell/ollamadesk/internal/common"
	"github.com/pmerrell/ollamadesk/internal/httpapi/handlers"
	"github.com/pmerrell/ollamadesk/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// The SPA frontend runs on its own dev port.
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{"X-Session-Uid", "X-Chat-Uid", "X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", func(c *gin.Context) { common.Ok(c, gin.H{"pong": true}) })

	// chat core
	r.POST("/chat", h.SendChat)
	r.GET("/list-models", h.ListModels)
	r.GET("/search", h.SearchChats)

	// sessions
	r.GET("/session/list", h.ListSessions)
	r.GET("/session/list/:archive", h.ListSessions)
	r.POST("/session", h.CreateSession)
	r.GET("/session/:uid", h.GetSession)
	r.PUT("/session/:uid", h.UpdateSession)
	r.DELETE("/session/:uid", h.DeleteSession)
	r.POST("/session/:uid/chat/delete", h.DeleteChats)

	// modelfiles (personas)
	r.GET("/modelfile/list", h.ListModelfiles)
	r.POST("/modelfile", h.CreateModelfile)
	r.PUT("/modelfile/:uid", h.UpdateModelfile)
	r.DELETE("/modelfile/:uid", h.DeleteModelfile)

	// projects and staged files
	r.GET("/project/list", h.ListProjects)
	r.POST("/project", h.CreateProject)
	r.DELETE("/project/:uid", h.DeleteProject)
	r.GET("/project/:uid/files", h.ListProjectFiles)
	r.POST("/project/:uid/file", h.UploadProjectFile)
	r.DELETE("/project/:uid/file/:id", h.DeleteProjectFile)

	// fine-tuning jobs
	r.POST("/tune", h.CreateTuneJob)
	r.GET("/job/list", h.ListTuneJobs)
	r.GET("/job/:id", h.GetTuneJob)

	return r
}
