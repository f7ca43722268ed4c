// Package api serves the REST/OPDS/WebSocket surface, grounded on the
// teacher's internal/api.Server (a struct of repositories plus a
// router, a {success,data,error} Response envelope) but rebuilt on
// github.com/gin-gonic/gin rather than a bare http.ServeMux, matching
// nabbar/golib's gin usage elsewhere in the pack.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stumpdev/stump-go/internal/auth"
	"github.com/stumpdev/stump-go/internal/catalog"
	"github.com/stumpdev/stump-go/internal/jobs"
	"github.com/stumpdev/stump-go/internal/progress"
)

// Response is the envelope every REST endpoint returns, matching the
// teacher's api.Response struct field-for-field.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(data interface{}) Response { return Response{Success: true, Data: data} }
func fail(msg string) Response     { return Response{Success: false, Error: msg} }

// Server wires the catalog store, progress bus, job queue, and auth
// issuer onto a gin engine.
type Server struct {
	store  *catalog.SQLiteStore
	bus    *progress.Bus
	queue  *jobs.Queue
	issuer *auth.Issuer
	engine *gin.Engine
	log    *logrus.Entry
}

// NewServer builds the engine and registers every route.
func NewServer(store *catalog.SQLiteStore, bus *progress.Bus, queue *jobs.Queue, issuer *auth.Issuer) *Server {
	s := &Server{
		store:  store,
		bus:    bus,
		queue:  queue,
		issuer: issuer,
		engine: gin.New(),
		log:    logrus.WithField("component", "api"),
	}
	s.engine.Use(gin.Recovery(), s.corsMiddleware())
	s.setupRoutes()
	return s
}

// Handler returns the root http.Handler, for use with http.Server or
// httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, ok(gin.H{"subscribers": s.bus.SubscriberCount()}))
	})

	s.engine.POST("/auth/login", s.handleLogin)
	s.engine.GET("/ws", s.handleWebSocket)

	opds := s.engine.Group("/opds")
	opds.Use(s.requireAuth())
	{
		opds.GET("", s.handleOPDSRoot)
		opds.GET("/libraries/:libraryID", s.handleOPDSLibrary)
		opds.GET("/series/:seriesID", s.handleOPDSSeries)
		opds.GET("/search", s.handleOPDSSearch)
		opds.GET("/opensearch.xml", s.handleOPDSOpenSearch)
	}

	v1 := s.engine.Group("/api/v1")
	v1.Use(s.requireAuth())
	{
		v1.GET("/libraries/:libraryID", s.handleGetLibrary)
		v1.POST("/libraries/:libraryID/scan", s.handleTriggerScan)
		v1.GET("/series/:seriesID/media", s.handleListMediaInSeries)
		v1.GET("/media/:mediaID/pages/:page", s.handleReadPage)
	}
}
