package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stumpdev/stump-go/internal/archive"
	"github.com/stumpdev/stump-go/internal/auth"
	"github.com/stumpdev/stump-go/internal/catalog"
	"github.com/stumpdev/stump-go/internal/jobs"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail("username and password are required"))
		return
	}

	user, err := s.store.UserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, fail("invalid credentials"))
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, fail("invalid credentials"))
		return
	}

	token, err := s.issuer.Issue(user.ID, user.IsAdmin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, fail("could not issue token"))
		return
	}
	c.JSON(http.StatusOK, ok(gin.H{"token": token}))
}

func (s *Server) handleGetLibrary(c *gin.Context) {
	lib, err := s.store.LibraryByID(c.Request.Context(), c.Param("libraryID"))
	if err == catalog.ErrNotFound {
		c.JSON(http.StatusNotFound, fail("library not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, ok(lib))
}

func (s *Server) handleTriggerScan(c *gin.Context) {
	lib, err := s.store.LibraryByID(c.Request.Context(), c.Param("libraryID"))
	if err == catalog.ErrNotFound {
		c.JSON(http.StatusNotFound, fail("library not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, fail(err.Error()))
		return
	}

	taskID, err := jobs.EnqueueScan(s.queue, lib.Path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, fail("could not enqueue scan"))
		return
	}
	c.JSON(http.StatusAccepted, ok(gin.H{"task_id": taskID}))
}

func (s *Server) handleListMediaInSeries(c *gin.Context) {
	media, err := s.store.ListMediaWithMetaInSeries(c.Request.Context(), c.Param("seriesID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, fail(err.Error()))
		return
	}
	c.JSON(http.StatusOK, ok(media))
}

func (s *Server) handleReadPage(c *gin.Context) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, fail("page must be a positive integer"))
		return
	}

	media, err := s.store.MediaByID(c.Request.Context(), c.Param("mediaID"))
	if err == catalog.ErrNotFound {
		c.JSON(http.StatusNotFound, fail("media not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, fail(err.Error()))
		return
	}

	reader := archive.ForPath(media.Path)
	data, contentType, err := reader.ReadPage(media.Path, page)
	if err != nil {
		c.JSON(http.StatusNotFound, fail("page not found"))
		return
	}
	c.Data(http.StatusOK, contentType, data)
}
