package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"waitlist/internal/config"
	"waitlist/internal/events"
	"waitlist/internal/metrics"
	"waitlist/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Stream is the fan-out side the websocket endpoint subscribes to.
type Stream interface {
	Subscribe(restaurantID string, conn events.Connection) error
	Unsubscribe(restaurantID string, conn events.Connection)
}

// HTTPServer exposes staff actions, the inbound SMS webhook and the dashboard stream.
type HTTPServer struct {
	cfg      *config.Config
	svc      *service.WaitlistService
	stream   Stream
	auth     *HTTPAuth
	validate *validator.Validate
	logger   *zerolog.Logger
	server   *http.Server
}

func NewHTTPServer(cfg *config.Config, svc *service.WaitlistService, stream Stream, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		stream:   stream,
		auth:     NewHTTPAuth(cfg.API),
		validate: newValidator(),
		logger:   logger,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	if len(s.cfg.API.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.API.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", s.auth.headerName()},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Post("/webhooks/sms", s.handleInboundSMS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Route("/restaurants/{restaurantID}", func(r chi.Router) {
			r.Post("/bookings", s.handleCheckIn)
			r.Get("/bookings", s.handleListActive)
			r.Get("/tables", s.handleListTables)
			r.Get("/stream", s.handleStream)
		})

		r.Route("/bookings/{bookingID}", func(r chi.Router) {
			r.Get("/", s.handleGetBooking)
			r.Get("/messages", s.handleListMessages)
			r.Post("/assign", s.handleAssign)
			r.Post("/seat", s.bookingAction(s.svc.SeatBooking))
			r.Post("/complete", s.bookingAction(s.svc.CompleteBooking))
			r.Post("/cancel", s.bookingAction(s.svc.CancelBooking))
			r.Post("/no-show", s.bookingAction(s.svc.MarkNoShow))
		})

		r.Post("/tables/{tableID}/release", s.handleReleaseTable)
	})

	return r
}

// Handler returns the routed handler, e.g. for httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		metrics.IncHTTP(endpoint)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// writeServiceError maps service errors onto HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      conflict.Error(),
			"booking_id": conflict.BookingID,
			"status":     conflict.Status,
		})
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
