package license

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"convertercli/internal/config"
	licenseErrors "convertercli/internal/errors"
	"convertercli/internal/security"
)

// ManagerInterface is the gate surface consumed by the service layer;
// an interface so handlers can be tested against a mock.
type ManagerInterface interface {
	Evaluate(ctx context.Context) Status
	Activate(ctx context.Context, licenseKey string) (Status, error)
	Status() (Status, bool)
	MachineCode() string
}

// Manager is the license gate. It orchestrates the fingerprint
// generator, cache store and client through the state machine and is
// the only component the rest of the application talks to.
type Manager struct {
	fingerprint *security.FingerprintManager
	store       *Store
	client      *Client
	machine     *stateMachine
	clock       Clock
	logger      *slog.Logger
	metrics     *LicenseMetrics

	// flight collapses concurrent evaluations onto one in-flight
	// verification; activateMu serialises user-driven activations.
	flight     singleflight.Group
	activateMu sync.Mutex

	statusMu   sync.RWMutex
	lastStatus *Status
}

// NewManager wires the gate from configuration.
func NewManager(cfg config.LicenseConfig, licenseFile string, logger *slog.Logger) (*Manager, error) {
	store, err := NewStore(licenseFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create license store: %w", err)
	}

	return &Manager{
		fingerprint: security.NewFingerprintManager(),
		store:       store,
		client:      NewClient(cfg, logger),
		machine:     newStateMachine(cfg.GraceWindow, logger),
		clock:       SystemClock,
		logger:      logger.With(slog.String("component", "license_manager")),
	}, nil
}

// SetMetrics attaches observability instruments. Optional.
func (m *Manager) SetMetrics(metrics *LicenseMetrics) {
	m.metrics = metrics
}

// WithClock replaces the clock. Tests only.
func (m *Manager) WithClock(clock Clock) *Manager {
	m.clock = clock
	m.client.WithClock(clock)
	return m
}

// WithHardwareSource replaces the hardware source feeding the
// fingerprint. Tests only.
func (m *Manager) WithHardwareSource(source security.HardwareSource) *Manager {
	m.fingerprint = security.NewFingerprintManagerWithSource(source)
	return m
}

// MachineCode returns the machine code binding licenses to this host.
func (m *Manager) MachineCode() string {
	return m.fingerprint.MachineCode()
}

// LicensePath returns the cache file location, for diagnostics.
func (m *Manager) LicensePath() string {
	return m.store.Path()
}

// Status returns the status from the most recent evaluation, if any.
// The GUI polls this without triggering a new verification.
func (m *Manager) Status() (Status, bool) {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()

	if m.lastStatus == nil {
		return Status{}, false
	}
	return *m.lastStatus, true
}

// Evaluate runs one verification cycle with the freshest known license
// key and returns the derived status. It never returns an error: every
// failure mode maps onto a status the caller can display. Concurrent
// calls join the in-flight evaluation instead of issuing a duplicate
// network request.
func (m *Manager) Evaluate(ctx context.Context) Status {
	result, _, shared := m.flight.Do("evaluate", func() (interface{}, error) {
		return m.evaluate(ctx, ""), nil
	})

	status := result.(Status)
	if shared {
		m.logger.DebugContext(ctx, "joined in-flight license evaluation",
			slog.String("state", status.State.String()),
		)
	}
	return status
}

// Activate verifies a user-supplied key online and, on success, makes
// it the new cache baseline. The returned status reflects the key just
// supplied, not any previously cached one.
func (m *Manager) Activate(ctx context.Context, licenseKey string) (Status, error) {
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return Status{}, fmt.Errorf("%w: license key must not be empty", licenseErrors.ErrInvalidLicenseKey)
	}

	m.activateMu.Lock()
	defer m.activateMu.Unlock()

	status := m.evaluate(ctx, licenseKey)
	m.metrics.RecordActivation(ctx, status.State == StateLicensed)

	switch status.State {
	case StateLicensed:
		return status, nil
	case StateInvalid:
		return status, fmt.Errorf("%w: %s", licenseErrors.ErrActivationFailed, status.Reason)
	case StateExpired:
		return status, fmt.Errorf("%w: %s", licenseErrors.ErrLicenseExpired, status.Reason)
	default:
		return status, fmt.Errorf("%w: %s", licenseErrors.ErrNetworkError, status.Reason)
	}
}

// evaluate is the transition algorithm: fingerprint, cache load,
// online verification, cache update, status derivation.
func (m *Manager) evaluate(ctx context.Context, providedKey string) Status {
	machineCode := m.fingerprint.MachineCode()
	now := m.clock.Now()

	m.setStatus(Status{
		State:       StateVerifying,
		Reason:      "verification in progress",
		MachineCode: machineCode,
		CheckedAt:   now,
	})

	cache := m.store.Load(machineCode)

	licenseKey := providedKey
	if licenseKey == "" && cache != nil {
		licenseKey = cache.LicenseKey
	}

	if licenseKey == "" {
		status := Status{
			State:       StateUnlicensed,
			Reason:      "no license activated on this machine",
			MachineCode: machineCode,
			CheckedAt:   now,
		}
		m.setStatus(status)
		m.metrics.RecordEvaluation(ctx, status)
		return status
	}

	m.logger.InfoContext(ctx, "starting license verification",
		slog.String("machine_code", machineCode),
		slog.String("license_key", MaskLicenseKey(licenseKey)),
		slog.Bool("cached_baseline", cache != nil),
	)

	start := m.clock.Now()
	outcome := m.client.Verify(ctx, machineCode, licenseKey)
	m.metrics.RecordVerification(ctx, outcome, m.clock.Now().Sub(start))

	// Only authoritative successes become the new baseline. Rejections
	// are not persisted so the prior good record stays available for
	// operator forensics; it is still ignored for grace below.
	if outcome.Success {
		record := &CachedLicenseRecord{
			MachineCode: machineCode,
			LicenseKey:  licenseKey,
			Outcome:     outcome,
			VerifiedAt:  m.clock.Now(),
		}
		if err := m.store.Save(record); err != nil {
			m.logger.WarnContext(ctx, "failed to persist license baseline",
				slog.String("error", err.Error()),
			)
		}
	}

	status := m.machine.resolve(outcome, cache, machineCode, m.clock.Now())
	m.setStatus(status)
	m.metrics.RecordEvaluation(ctx, status)

	return status
}

func (m *Manager) setStatus(status Status) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.lastStatus = &status
}

// MaskLicenseKey hides most of a license key for logging.
func MaskLicenseKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-4)
}
