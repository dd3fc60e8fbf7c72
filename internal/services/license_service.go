package services

import (
	"context"
	"log/slog"
	"time"

	"convertercli/internal/infrastructure"
	"convertercli/internal/license"
)

// LicenseService provides business logic for license operations.
type LicenseService interface {
	// GetStatus returns the current license status, evaluating once if
	// no evaluation has happened yet this run.
	GetStatus(ctx context.Context) (*LicenseStatusResponse, error)

	// Activate verifies a user-supplied key online and reports the
	// resulting status. The error carries the typed failure for the
	// transport layer to map onto an HTTP response.
	Activate(ctx context.Context, key string) (*LicenseStatusResponse, error)

	// MachineCode returns the code the user sends to the vendor when
	// requesting a license.
	MachineCode(ctx context.Context) string
}

// LicenseStatusResponse is the standardized license status payload.
type LicenseStatusResponse struct {
	LicenseStatus  string     `json:"license_status"` // licensed|grace_period|expired|invalid|unlicensed|verifying
	Message        string     `json:"message"`
	Allowed        bool       `json:"allowed"`
	MachineCode    string     `json:"machine_code"`
	LicenseType    string     `json:"license_type,omitempty"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	DaysLeft       int        `json:"days_left,omitempty"`
	GraceRemaining string     `json:"grace_remaining,omitempty"`
	TraceID        string     `json:"trace_id"`
	Timestamp      time.Time  `json:"timestamp"`
}

// licenseService implements LicenseService on top of the gate.
type licenseService struct {
	manager license.ManagerInterface
	logger  *slog.Logger
}

// NewLicenseService creates a new license service
func NewLicenseService(manager license.ManagerInterface, logger *slog.Logger) LicenseService {
	return &licenseService{
		manager: manager,
		logger:  logger.With(slog.String("service", "license")),
	}
}

func (s *licenseService) GetStatus(ctx context.Context) (*LicenseStatusResponse, error) {
	status, ok := s.manager.Status()
	if !ok {
		s.logger.InfoContext(ctx, "no evaluation yet this run, evaluating now")
		status = s.manager.Evaluate(ctx)
	}

	return s.toResponse(ctx, status), nil
}

func (s *licenseService) Activate(ctx context.Context, key string) (*LicenseStatusResponse, error) {
	s.logger.InfoContext(ctx, "license activation requested",
		slog.String("license_key", license.MaskLicenseKey(key)),
	)

	status, err := s.manager.Activate(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "license activation failed",
			slog.String("state", status.State.String()),
			slog.String("error", err.Error()),
		)
		return s.toResponse(ctx, status), err
	}

	s.logger.InfoContext(ctx, "license activated",
		slog.String("state", status.State.String()),
		slog.Time("expiry_date", status.ExpiryDate),
	)

	return s.toResponse(ctx, status), nil
}

func (s *licenseService) MachineCode(ctx context.Context) string {
	return s.manager.MachineCode()
}

// toResponse maps a gate status onto the transport payload.
func (s *licenseService) toResponse(ctx context.Context, status license.Status) *LicenseStatusResponse {
	resp := &LicenseStatusResponse{
		LicenseStatus: status.State.String(),
		Message:       status.Reason,
		Allowed:       status.Allowed(),
		MachineCode:   status.MachineCode,
		LicenseType:   status.LicenseType,
		TraceID:       infrastructure.GetTraceID(ctx),
		Timestamp:     time.Now(),
	}

	if !status.ExpiryDate.IsZero() {
		expiry := status.ExpiryDate
		resp.ExpiryDate = &expiry
		if days := int(time.Until(expiry).Hours() / 24); days > 0 {
			resp.DaysLeft = days
		}
	}

	if status.GraceRemaining > 0 {
		resp.GraceRemaining = status.GraceRemaining.Round(time.Minute).String()
	}

	return resp
}
