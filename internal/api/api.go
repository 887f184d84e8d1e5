// Package api exposes the monitoring agent over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"castmon/internal/model"
	"castmon/internal/monitor"
	"castmon/internal/storage"
)

// Server is the REST surface over the monitor and violation store.
type Server struct {
	echo  *echo.Echo
	mon   *monitor.Monitor
	store storage.Storage
	days  int
	log   *slog.Logger
}

// New creates a Server. days is the default lookback window for monitoring
// requests that do not specify one.
func New(mon *monitor.Monitor, store storage.Storage, days int, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{echo: e, mon: mon, store: store, days: days, log: log}

	e.GET("/health", s.health)
	e.POST("/api/monitor", s.monitorUsers)
	e.POST("/api/configure", s.configureUsers)
	e.GET("/api/violations", s.violations)
	e.GET("/api/violations/all", s.allViolations)

	return s
}

// Start serves the API on addr, blocking until the server stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// ServeHTTP implements http.Handler (useful for testing).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

type monitorRequest struct {
	Users []monitor.UserConfig `json:"users"`
	Days  int                  `json:"days"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "Farcaster Monitoring Agent",
	})
}

// monitorUsers configures the requested users and runs one monitoring pass
// over them, returning per-user violation counts.
func (s *Server) monitorUsers(c echo.Context) error {
	var req monitorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if len(req.Users) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "users is required"})
	}
	if err := s.mon.Configure(req.Users); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	days := req.Days
	if days <= 0 {
		days = s.days
	}

	results := s.mon.MonitorAllUsers(c.Request().Context(), days)
	total := 0
	for _, n := range results {
		total += n
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":          true,
		"results":          results,
		"total_violations": total,
	})
}

// configureUsers registers user rules without running a pass.
func (s *Server) configureUsers(c echo.Context) error {
	var req monitorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if len(req.Users) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "users is required"})
	}
	if err := s.mon.Configure(req.Users); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":          true,
		"users_configured": len(req.Users),
	})
}

// violations returns stored violations for the user ids in the comma
// separated user_ids query parameter.
func (s *Server) violations(c echo.Context) error {
	var userIDs []string
	for _, id := range strings.Split(c.QueryParam("user_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			userIDs = append(userIDs, id)
		}
	}
	if len(userIDs) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "user_ids is required"})
	}

	violations := []model.Violation{}
	for _, id := range userIDs {
		vs, err := s.store.ViolationsByAuthor(c.Request().Context(), id)
		if err != nil {
			s.log.Error("list violations", "author_id", id, "error", err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "query failed"})
		}
		violations = append(violations, vs...)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"violations": violations,
		"count":      len(violations),
	})
}

func (s *Server) allViolations(c echo.Context) error {
	vs, err := s.store.Violations(c.Request().Context())
	if err != nil {
		s.log.Error("list all violations", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "query failed"})
	}
	if vs == nil {
		vs = []model.Violation{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"violations": vs,
		"count":      len(vs),
	})
}
