package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/painscope/painscope/pkg/database"
	"github.com/painscope/painscope/pkg/services"
	"github.com/painscope/painscope/pkg/version"
)

// searchHandler handles POST /search: validate, dedupe, enqueue.
func (s *Server) searchHandler(c *gin.Context) {
	var body SearchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			issues := make(map[string][]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
				issues[field] = append(issues[field], "failed "+fe.Tag()+" validation")
			}
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Issues: issues})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed request: " + err.Error()})
		return
	}

	req, err := services.ValidateRequest(body.toModel())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp, err := s.intake.Submit(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SearchResponse{
		SearchID: resp.SearchID,
		Status:   resp.Status,
		Result:   resp.Result,
	})
}

// statusHandler handles GET /search-status?searchId=<uuid>.
func (s *Server) statusHandler(c *gin.Context) {
	searchID := c.Query("searchId")
	if searchID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "searchId query parameter is required"})
		return
	}
	if _, err := uuid.Parse(searchID); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "searchId must be a UUID"})
		return
	}

	resp, err := s.status.Get(c.Request.Context(), searchID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		SearchID:     resp.SearchID,
		Status:       resp.Status,
		ErrorMessage: resp.ErrorMessage,
		Result:       resp.Result,
	})
}

// wsHandler upgrades GET /ws to the event subscription stream.
func (s *Server) wsHandler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// The dashboard origin is enforced by the deployment proxy.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	s.connManager.HandleConnection(c.Request.Context(), conn)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
	}
	httpStatus := http.StatusOK

	if s.db != nil {
		dbHealth, err := database.Health(ctx, s.db)
		resp.Database = dbHealth
		if err != nil {
			resp.Status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	if s.scheduler != nil {
		resp.Scheduler = s.scheduler.Health(ctx)
	}
	if s.connManager != nil {
		resp.WSClients = s.connManager.ActiveConnections()
	}

	c.JSON(httpStatus, resp)
}
