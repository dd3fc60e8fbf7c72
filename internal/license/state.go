package license

import (
	"fmt"
	"log/slog"
	"time"
)

// stateMachine derives the license status from the freshest
// verification outcome and the cached baseline. Transitions:
//
//	Unlicensed -> Verifying -> {Licensed, GracePeriod, Expired, Invalid}
//
// Licensed and GracePeriod re-enter Verifying on the next evaluation;
// Invalid requires a fresh key from the user.
type stateMachine struct {
	graceWindow time.Duration
	logger      *slog.Logger
}

func newStateMachine(graceWindow time.Duration, logger *slog.Logger) *stateMachine {
	return &stateMachine{
		graceWindow: graceWindow,
		logger:      logger.With(slog.String("component", "license_state")),
	}
}

// resolve computes the status for a completed verification attempt.
// cache is the trustworthy cached record or nil; it is consulted only
// for transient failures — an authoritative rejection is never masked
// by a cached success.
func (sm *stateMachine) resolve(outcome VerificationOutcome, cache *CachedLicenseRecord, machineCode string, now time.Time) Status {
	status := Status{
		MachineCode: machineCode,
		CheckedAt:   now,
	}

	switch {
	case outcome.Success:
		if outcome.HasExpiry() && outcome.ExpiryDate.Before(now) {
			status.State = StateExpired
			status.ExpiryDate = outcome.ExpiryDate
			status.Reason = fmt.Sprintf("license expired on %s", outcome.ExpiryDate.Format("2006-01-02"))
		} else {
			status.State = StateLicensed
			status.ExpiryDate = outcome.ExpiryDate
			status.LicenseType = outcome.LicenseType
			status.Reason = successReason(outcome)
		}

	case outcome.Rejected():
		status.State = StateInvalid
		status.Reason = rejectionReason(outcome)

	default: // transient network/server failure
		status = sm.resolveOffline(outcome, cache, machineCode, now)
	}

	sm.logger.Info("license state resolved",
		slog.String("state", status.State.String()),
		slog.String("reason", status.Reason),
		slog.Bool("allowed", status.Allowed()),
	)

	return status
}

// resolveOffline applies the grace rule when the authority could not be
// reached: a cached past success keeps the application usable for the
// grace window measured from the last successful verification.
func (sm *stateMachine) resolveOffline(outcome VerificationOutcome, cache *CachedLicenseRecord, machineCode string, now time.Time) Status {
	status := Status{
		MachineCode: machineCode,
		CheckedAt:   now,
	}

	if cache == nil || !cache.Outcome.Success {
		status.State = StateUnlicensed
		status.Reason = offlineReason(outcome)
		return status
	}

	elapsed := now.Sub(cache.VerifiedAt)
	if elapsed <= sm.graceWindow {
		remaining := sm.graceWindow - elapsed
		status.State = StateGracePeriod
		status.GraceRemaining = remaining
		status.ExpiryDate = cache.Outcome.ExpiryDate
		status.LicenseType = cache.Outcome.LicenseType
		status.Reason = fmt.Sprintf("license server unreachable, offline grace for %s more",
			remaining.Round(time.Minute))
		return status
	}

	status.State = StateExpired
	status.Reason = fmt.Sprintf("license server unreachable and offline grace of %s exhausted",
		sm.graceWindow)
	return status
}

func successReason(outcome VerificationOutcome) string {
	if outcome.HasExpiry() {
		return fmt.Sprintf("license valid until %s", outcome.ExpiryDate.Format("2006-01-02"))
	}
	if outcome.Message != "" {
		return outcome.Message
	}
	return "license valid"
}

func rejectionReason(outcome VerificationOutcome) string {
	if outcome.Message != "" && outcome.ErrorCode != "" {
		return fmt.Sprintf("%s (%s)", outcome.Message, outcome.ErrorCode)
	}
	if outcome.Message != "" {
		return outcome.Message
	}
	return outcome.ErrorCode
}

func offlineReason(outcome VerificationOutcome) string {
	if outcome.Message != "" {
		return outcome.Message
	}
	return "license server unreachable and no prior verification on this machine"
}
