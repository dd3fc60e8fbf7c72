package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apiErrors "convertercli/internal/errors"
	"convertercli/internal/infrastructure"
	"convertercli/internal/middleware"
	"convertercli/internal/services"
)

var validate = validator.New()

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// LicenseActivationRequest represents the license activation payload
type LicenseActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=1"`
}

// Bind implements the render.Binder interface for activation requests
func (l *LicenseActivationRequest) Bind(r *http.Request) error {
	if err := validate.Struct(l); err != nil {
		return errors.New("license_key is required")
	}
	return nil
}

// MachineCodeResponse carries the code the user sends to the vendor
type MachineCodeResponse struct {
	MachineCode string `json:"machine_code"`
	TraceID     string `json:"trace_id"`
}

// Routes returns a chi router for license endpoints. The activation
// rate limiter is supplied by the application so limits are shared
// across transports.
func (h *LicenseHandler) Routes(activationLimiter *middleware.RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/status", h.GetStatus)
	r.Get("/machine-code", h.GetMachineCode)

	if activationLimiter != nil {
		r.With(activationLimiter.Handler).Post("/activate", h.Activate)
	} else {
		r.Post("/activate", h.Activate)
	}

	return r
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.get_status",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/status"),
		),
	)
	defer span.End()

	status, err := h.service.GetStatus(ctx)
	if err != nil {
		span.RecordError(err)
		h.renderError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("license.state", status.LicenseStatus))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, status)
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.activate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/activate"),
		),
	)
	defer span.End()

	var req LicenseActivationRequest
	if err := render.Bind(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid activation request",
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apiErrors.InvalidRequestWithError(err))
		return
	}

	status, err := h.service.Activate(ctx, req.LicenseKey)
	if err != nil {
		span.RecordError(err)
		h.renderActivationError(w, r, status, err)
		return
	}

	span.SetAttributes(attribute.String("license.state", status.LicenseStatus))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, status)
}

// GetMachineCode handles GET /api/license/machine-code
func (h *LicenseHandler) GetMachineCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	render.Status(r, http.StatusOK)
	render.JSON(w, r, &MachineCodeResponse{
		MachineCode: h.service.MachineCode(ctx),
		TraceID:     infrastructure.GetTraceID(ctx),
	})
}

// renderActivationError maps typed activation failures onto HTTP
// responses, keeping the resulting status in the body so the GUI can
// render the reason.
func (h *LicenseHandler) renderActivationError(w http.ResponseWriter, r *http.Request, status *services.LicenseStatusResponse, err error) {
	var apiErr *apiErrors.APIError

	switch {
	case errors.Is(err, apiErrors.ErrInvalidLicenseKey):
		apiErr = apiErrors.ErrValidation("license_key", err.Error())
	case errors.Is(err, apiErrors.ErrActivationFailed):
		apiErr = apiErrors.NewWithDetails(http.StatusUnauthorized, "INVALID_LICENSE", err.Error(), status)
	case errors.Is(err, apiErrors.ErrLicenseExpired):
		apiErr = apiErrors.NewWithDetails(http.StatusUnauthorized, "LICENSE_EXPIRED", err.Error(), status)
	case errors.Is(err, apiErrors.ErrNetworkError), errors.Is(err, apiErrors.ErrServerError):
		apiErr = apiErrors.NewWithDetails(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", err.Error(), status)
	default:
		apiErr = apiErrors.ErrInternalServer
	}

	render.Render(w, r, apiErr)
}

// renderError maps service errors for read endpoints.
func (h *LicenseHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "license request failed",
		slog.String("error", err.Error()),
	)
	render.Render(w, r, apiErrors.ErrInternalServer)
}
