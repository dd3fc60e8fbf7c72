package license

import (
	"time"
)

// Outcome error codes synthesized by the client. Codes other than these
// come from the authority verbatim (e.g. INVALID_LICENSE).
const (
	CodeNetworkError = "NETWORK_ERROR"
	CodeServerError  = "SERVER_ERROR"
)

// VerificationOutcome is the result of one verification exchange with
// the license authority, or a synthesized transport-failure result.
// It is the only value the client ever produces.
type VerificationOutcome struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	ErrorCode   string            `json:"error_code,omitempty"`
	ExpiryDate  time.Time         `json:"expiry_date,omitempty"`
	LicenseType string            `json:"license_type,omitempty"`
	UserInfo    map[string]string `json:"user_info,omitempty"`
}

// Transient reports whether the outcome is a transport or server
// failure, i.e. eligible for retry and for cache fallback.
func (o VerificationOutcome) Transient() bool {
	return !o.Success && (o.ErrorCode == CodeNetworkError || o.ErrorCode == CodeServerError)
}

// Rejected reports whether the authority explicitly denied the license.
// A rejection must never be masked by a cached success.
func (o VerificationOutcome) Rejected() bool {
	return !o.Success && !o.Transient()
}

// HasExpiry reports whether the authority attached an expiry date.
// A success without one is a perpetual license.
func (o VerificationOutcome) HasExpiry() bool {
	return !o.ExpiryDate.IsZero()
}

// CachedLicenseRecord is the persisted verification baseline. It is
// trusted only when the checksum recomputes and the machine code
// matches the current fingerprint; the store folds every other case
// into absence.
type CachedLicenseRecord struct {
	MachineCode string              `json:"machine_code"`
	LicenseKey  string              `json:"license_key"`
	Outcome     VerificationOutcome `json:"outcome"`
	VerifiedAt  time.Time           `json:"verified_at"`
	Checksum    string              `json:"checksum"`
}

// State is a position in the license state machine.
type State int

const (
	StateUnlicensed State = iota
	StateVerifying
	StateLicensed
	StateGracePeriod
	StateExpired
	StateInvalid
)

// String returns the wire/log representation of the state.
func (s State) String() string {
	switch s {
	case StateUnlicensed:
		return "unlicensed"
	case StateVerifying:
		return "verifying"
	case StateLicensed:
		return "licensed"
	case StateGracePeriod:
		return "grace_period"
	case StateExpired:
		return "expired"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Status is the derived license status handed to the rest of the
// application. It is created by one evaluation and never mutated;
// callers treat anything other than Licensed or GracePeriod as deny.
type Status struct {
	State          State         `json:"state"`
	Reason         string        `json:"reason"`
	MachineCode    string        `json:"machine_code"`
	ExpiryDate     time.Time     `json:"expiry_date,omitempty"`
	LicenseType    string        `json:"license_type,omitempty"`
	GraceRemaining time.Duration `json:"grace_remaining,omitempty"`
	CheckedAt      time.Time     `json:"checked_at"`
}

// Allowed reports whether gated functionality may run.
func (s Status) Allowed() bool {
	return s.State == StateLicensed || s.State == StateGracePeriod
}
