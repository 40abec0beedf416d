package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/reelvault/reelvault/apitypes"
	"github.com/reelvault/reelvault/internal/auth"
	"github.com/reelvault/reelvault/internal/diskspace"
	"github.com/reelvault/reelvault/internal/events"
	"github.com/reelvault/reelvault/internal/store"
)

// validIDPattern matches valid ID formats: alphanumeric, hyphens,
// underscores. Permissive enough for ULIDs while blocking path traversal
// and injection.
var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxIDLength is the maximum allowed length for ID parameters.
const maxIDLength = 256

// validateID checks that an ID parameter is non-empty, reasonable length,
// and contains only safe characters.
func validateID(id string) error {
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	if len(id) > maxIDLength {
		return echo.NewHTTPError(http.StatusBadRequest, "id too long")
	}
	if !validIDPattern.MatchString(id) {
		return echo.NewHTTPError(http.StatusBadRequest, "id contains invalid characters")
	}
	return nil
}

// requestValidator adapts go-playground/validator to echo's Validator.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// launcher starts the download pipeline for a created job.
type launcher interface {
	Launch(jobID string)
}

// HTTPServer is the HTTP API server.
type HTTPServer struct {
	echo       *echo.Echo
	store      *store.Store
	bus        *events.Bus
	accountant *diskspace.Accountant
	launcher   launcher
	verifier   auth.Verifier
	logger     zerolog.Logger
}

// HTTPOption is a functional option for configuring the HTTP server.
type HTTPOption func(*HTTPServer)

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger zerolog.Logger) HTTPOption {
	return func(s *HTTPServer) {
		s.logger = logger
	}
}

// WithVerifier enables bearer-token verification on the API.
func WithVerifier(v auth.Verifier) HTTPOption {
	return func(s *HTTPServer) {
		s.verifier = v
	}
}

// NewHTTPServer creates a new HTTP API server.
func NewHTTPServer(
	st *store.Store,
	bus *events.Bus,
	accountant *diskspace.Accountant,
	l launcher,
	opts ...HTTPOption,
) *HTTPServer {
	s := &HTTPServer{
		echo:       echo.New(),
		store:      st,
		bus:        bus,
		accountant: accountant,
		launcher:   l,
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.echo.Validator = &requestValidator{validate: validator.New()}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *HTTPServer) setupMiddleware() {
	s.echo.HideBanner = true
	s.echo.HidePort = true

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Msg("request")
			}
			return nil
		},
	}))

	// Recovery
	s.echo.Use(middleware.Recover())

	// CORS
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
	}))
}

func (s *HTTPServer) setupRoutes() {
	// API routes
	api := s.echo.Group("/api")

	// Health check and the event stream stay token-free; EventSource
	// clients cannot set headers.
	api.GET("/health", s.healthHandler)
	api.GET("/events", s.eventsHandler)

	protected := api.Group("")
	if s.verifier != nil {
		protected.Use(s.bearerAuth)
	}

	// Downloads
	protected.POST("/downloads", s.createDownloadHandler)
	protected.GET("/downloads", s.listDownloadsHandler)
	protected.GET("/downloads/:id", s.getDownloadHandler)
	protected.DELETE("/downloads/:id", s.deleteDownloadHandler)

	// Disk space
	protected.GET("/disk-space", s.diskSpaceHandler)

	// Users
	protected.POST("/users", s.createUserHandler)
	protected.GET("/users", s.listUsersHandler)
	protected.GET("/users/:id", s.getUserHandler)
	protected.PATCH("/users/:id", s.updateUserHandler)
	protected.DELETE("/users/:id", s.deleteUserHandler)
}

// bearerAuth verifies the Authorization header against the configured
// verifier and stores the verified subject on the request context.
func (s *HTTPServer) bearerAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		subject, err := s.verifier.Verify(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		c.Set("subject", subject)
		return next(c)
	}
}

// Start starts the server.
func (s *HTTPServer) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting http server")
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Handlers

func (s *HTTPServer) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, apitypes.HealthResponse{
		Status: "ok",
	})
}

// createDownloadHandler creates a PENDING job and kicks off orchestration.
// The response never waits for, or reports, the transfer's outcome.
func (s *HTTPServer) createDownloadHandler(c echo.Context) error {
	var req apitypes.CreateDownloadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	job, err := s.store.CreateJob(c.Request().Context(), req.URL)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.launcher.Launch(job.ID)

	return c.JSON(http.StatusAccepted, job)
}

func (s *HTTPServer) listDownloadsHandler(c echo.Context) error {
	limit := store.DefaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	jobs, err := s.store.ListJobs(c.Request().Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	return c.JSON(http.StatusOK, jobs)
}

func (s *HTTPServer) getDownloadHandler(c echo.Context) error {
	id := c.Param("id")
	if err := validateID(id); err != nil {
		return err
	}

	job, err := s.store.GetJob(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, apitypes.ErrorResponse{Error: "download not found"})
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	return c.JSON(http.StatusOK, job)
}

// deleteDownloadHandler removes the job record only. It neither deletes the
// downloaded file nor aborts an in-flight transfer; later updates from such
// a transfer land as no-ops.
func (s *HTTPServer) deleteDownloadHandler(c echo.Context) error {
	id := c.Param("id")
	if err := validateID(id); err != nil {
		return err
	}

	if err := s.store.DeleteJob(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, apitypes.ErrorResponse{Error: "download not found"})
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return c.JSON(http.StatusOK, apitypes.MessageResponse{
		Success: true,
		Message: "download deleted",
	})
}

func (s *HTTPServer) diskSpaceHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.accountant.Snapshot(c.Request().Context()))
}

// eventsHandler streams bus events to the client as server-sent events.
// Every new observer immediately receives one unsolicited disk snapshot.
func (s *HTTPServer) eventsHandler(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()

	snapshot := events.Event{
		Type:    events.DiskSnapshot,
		Subject: s.accountant.Snapshot(ctx),
	}
	if err := writeSSE(w, snapshot); err != nil {
		return nil
	}
	w.Flush()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub:
			if !ok {
				return nil
			}
			if err := writeSSE(w, event); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// writeSSE writes one event as an SSE frame.
func writeSSE(w *echo.Response, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}

// User handlers

func (s *HTTPServer) createUserHandler(c echo.Context) error {
	var req apitypes.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user := &store.User{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Subject:        req.Auth0ID,
		Phone:          req.Phone,
		ProfilePicture: req.ProfilePicture,
		Role:           store.Role(req.Role),
	}

	created, err := s.store.CreateUser(c.Request().Context(), user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return c.JSON(http.StatusConflict, apitypes.ErrorResponse{Error: "user already exists"})
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return c.JSON(http.StatusCreated, created)
}

func (s *HTTPServer) listUsersHandler(c echo.Context) error {
	users, err := s.store.ListUsers(c.Request().Context())
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	return c.JSON(http.StatusOK, users)
}

func (s *HTTPServer) getUserHandler(c echo.Context) error {
	id := c.Param("id")
	if err := validateID(id); err != nil {
		return err
	}

	user, err := s.store.GetUser(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, apitypes.ErrorResponse{Error: "user not found"})
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	return c.JSON(http.StatusOK, user)
}

func (s *HTTPServer) updateUserHandler(c echo.Context) error {
	id := c.Param("id")
	if err := validateID(id); err != nil {
		return err
	}

	var req apitypes.UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	fields := map[string]any{}
	if req.FirstName != nil {
		fields["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		fields["last_name"] = *req.LastName
	}
	if req.Email != nil {
		fields["email"] = *req.Email
	}
	if req.Phone != nil {
		fields["phone"] = *req.Phone
	}
	if req.ProfilePicture != nil {
		fields["profile_picture"] = *req.ProfilePicture
	}
	if req.Role != nil {
		fields["role"] = *req.Role
	}

	if len(fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	if err := s.store.UpdateUser(c.Request().Context(), id, fields); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, apitypes.ErrorResponse{Error: "user not found"})
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	user, err := s.store.GetUser(c.Request().Context(), id)
	if err != nil {
		return fmt.Errorf("failed to reload user: %w", err)
	}

	return c.JSON(http.StatusOK, user)
}

func (s *HTTPServer) deleteUserHandler(c echo.Context) error {
	id := c.Param("id")
	if err := validateID(id); err != nil {
		return err
	}

	if err := s.store.DeleteUser(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, apitypes.ErrorResponse{Error: "user not found"})
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return c.JSON(http.StatusOK, apitypes.MessageResponse{
		Success: true,
		Message: "user deleted",
	})
}
