package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	licenseErrors "convertercli/internal/errors"
	"convertercli/internal/license"
)

// MockManager implements license.ManagerInterface for testing.
type MockManager struct {
	mock.Mock
}

func (m *MockManager) Evaluate(ctx context.Context) license.Status {
	args := m.Called(ctx)
	return args.Get(0).(license.Status)
}

func (m *MockManager) Activate(ctx context.Context, licenseKey string) (license.Status, error) {
	args := m.Called(ctx, licenseKey)
	return args.Get(0).(license.Status), args.Error(1)
}

func (m *MockManager) Status() (license.Status, bool) {
	args := m.Called()
	return args.Get(0).(license.Status), args.Bool(1)
}

func (m *MockManager) MachineCode() string {
	args := m.Called()
	return args.String(0)
}

func newTestService(manager *MockManager) LicenseService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLicenseService(manager, logger)
}

func TestServiceGetStatusUsesLastEvaluation(t *testing.T) {
	manager := new(MockManager)
	manager.On("Status").Return(license.Status{
		State:       license.StateLicensed,
		Reason:      "license valid",
		MachineCode: "MACH-0001",
	}, true)

	service := newTestService(manager)
	resp, err := service.GetStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "licensed", resp.LicenseStatus)
	assert.True(t, resp.Allowed)
	assert.Equal(t, "MACH-0001", resp.MachineCode)

	// A cached status must not trigger a fresh verification.
	manager.AssertNotCalled(t, "Evaluate", mock.Anything)
}

func TestServiceGetStatusEvaluatesWhenCold(t *testing.T) {
	manager := new(MockManager)
	manager.On("Status").Return(license.Status{}, false)
	manager.On("Evaluate", mock.Anything).Return(license.Status{
		State:  license.StateUnlicensed,
		Reason: "no license activated on this machine",
	})

	service := newTestService(manager)
	resp, err := service.GetStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "unlicensed", resp.LicenseStatus)
	assert.False(t, resp.Allowed)
	manager.AssertExpectations(t)
}

func TestServiceActivate(t *testing.T) {
	expiry := time.Now().Add(90 * 24 * time.Hour).Truncate(time.Second)

	manager := new(MockManager)
	manager.On("Activate", mock.Anything, "TEST-KEY-0001").Return(license.Status{
		State:       license.StateLicensed,
		Reason:      "license valid",
		LicenseType: "standard",
		ExpiryDate:  expiry,
	}, nil)

	service := newTestService(manager)
	resp, err := service.Activate(context.Background(), "TEST-KEY-0001")

	require.NoError(t, err)
	assert.Equal(t, "licensed", resp.LicenseStatus)
	assert.Equal(t, "standard", resp.LicenseType)
	require.NotNil(t, resp.ExpiryDate)
	assert.True(t, expiry.Equal(*resp.ExpiryDate))
	assert.InDelta(t, 89, resp.DaysLeft, 1)
}

func TestServiceActivateFailureKeepsStatus(t *testing.T) {
	manager := new(MockManager)
	manager.On("Activate", mock.Anything, "BAD-KEY").Return(license.Status{
		State:  license.StateInvalid,
		Reason: "license key revoked (LICENSE_REVOKED)",
	}, licenseErrors.ErrActivationFailed)

	service := newTestService(manager)
	resp, err := service.Activate(context.Background(), "BAD-KEY")

	// The error propagates for transport mapping, but the response
	// still carries the denial reason for the GUI.
	assert.ErrorIs(t, err, licenseErrors.ErrActivationFailed)
	require.NotNil(t, resp)
	assert.Equal(t, "invalid", resp.LicenseStatus)
	assert.Contains(t, resp.Message, "revoked")
}

func TestServiceGraceRemainingFormatting(t *testing.T) {
	manager := new(MockManager)
	manager.On("Status").Return(license.Status{
		State:          license.StateGracePeriod,
		Reason:         "license server unreachable",
		GraceRemaining: 4 * 24 * time.Hour,
	}, true)

	service := newTestService(manager)
	resp, err := service.GetStatus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "grace_period", resp.LicenseStatus)
	assert.True(t, resp.Allowed)
	assert.Equal(t, "96h0m0s", resp.GraceRemaining)
}

func TestServiceMachineCode(t *testing.T) {
	manager := new(MockManager)
	manager.On("MachineCode").Return("AAAA-BBBB-CCCC-DDDD-EEEE-FFFF-0000-1111")

	service := newTestService(manager)
	assert.Equal(t, "AAAA-BBBB-CCCC-DDDD-EEEE-FFFF-0000-1111", service.MachineCode(context.Background()))
}
