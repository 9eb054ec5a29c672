package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedsearch/core"
)

const errQueryRequired = "Query is required"

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Success bool                 `json:"success"`
	Results []*core.SearchResult `json:"results"`
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// handleHealth reports liveness. It never touches the store.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "healthy", Model: s.model})
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	err := c.ShouldBindJSON(&req)
	if errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errQueryRequired})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if core.IsBlank(req.Query) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errQueryRequired})
		return
	}

	ctx := c.Request.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	results, err := s.service.Search(ctx, req.Query)
	switch {
	case errors.Is(err, core.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": errQueryRequired})
		return
	case err != nil:
		s.logger.Error("search failed", "err", err, "request_id", c.GetString(requestIDKey))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if results == nil {
		results = []*core.SearchResult{}
	}
	c.JSON(http.StatusOK, searchResponse{Success: true, Results: results})
}
