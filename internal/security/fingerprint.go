package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
)

// UnknownIdentifier substitutes any hardware identifier that cannot be
// collected, keeping machine code generation total.
const UnknownIdentifier = "UNKNOWN"

// identifierSeparator joins the raw identifiers before hashing. Part of
// the machine code derivation, so it must never change.
const identifierSeparator = "|"

// FingerprintManager derives the machine code that binds a license to
// one physical machine. The code is a deterministic function of the
// board serial, CPU identifier, primary MAC address and disk serial,
// in that fixed order.
type FingerprintManager struct {
	source HardwareSource

	mu     sync.RWMutex
	cached string
}

// NewFingerprintManager creates a fingerprint manager for the current
// platform.
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{source: NewHardwareSource()}
}

// NewFingerprintManagerWithSource creates a fingerprint manager with an
// injected hardware source. Used by tests and diagnostics.
func NewFingerprintManagerWithSource(source HardwareSource) *FingerprintManager {
	return &FingerprintManager{source: source}
}

// MachineCode returns the machine code for this host. It never fails:
// identifiers that cannot be collected are replaced with the UNKNOWN
// sentinel so the derivation stays deterministic. The result is cached
// for the process lifetime; hardware does not change under a running
// process.
func (fm *FingerprintManager) MachineCode() string {
	fm.mu.RLock()
	if fm.cached != "" {
		code := fm.cached
		fm.mu.RUnlock()
		return code
	}
	fm.mu.RUnlock()

	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.cached == "" {
		fm.cached = formatMachineCode(fm.collectIdentifiers())
	}
	return fm.cached
}

// Components returns the raw identifiers for support diagnostics, with
// failed collections already folded to the sentinel.
func (fm *FingerprintManager) Components() map[string]string {
	ids := fm.collectIdentifiers()
	return map[string]string{
		"board_serial": ids[0],
		"cpu_id":       ids[1],
		"mac_address":  ids[2],
		"disk_serial":  ids[3],
	}
}

// collectIdentifiers queries the four identifiers in derivation order.
func (fm *FingerprintManager) collectIdentifiers() [4]string {
	var ids [4]string

	collect := func(name string, f func() (string, error)) string {
		value, err := f()
		if err != nil || strings.TrimSpace(value) == "" {
			slog.Warn("hardware identifier unavailable, using sentinel",
				slog.String("identifier", name),
				slog.Any("error", err),
			)
			return UnknownIdentifier
		}
		return strings.TrimSpace(value)
	}

	ids[0] = collect("board_serial", fm.source.BoardSerial)
	ids[1] = collect("cpu_id", fm.source.CPUID)
	ids[2] = collect("mac_address", fm.source.PrimaryMAC)
	ids[3] = collect("disk_serial", fm.source.DiskSerial)

	return ids
}

// formatMachineCode hashes the joined identifiers and formats the first
// 32 hex characters as eight uppercase groups of four joined by
// hyphens, e.g. 9F2C-11AB-....
func formatMachineCode(ids [4]string) string {
	combined := strings.Join(ids[:], identifierSeparator)
	sum := sha256.Sum256([]byte(combined))
	digest := strings.ToUpper(hex.EncodeToString(sum[:16]))

	groups := make([]string, 0, 8)
	for i := 0; i < len(digest); i += 4 {
		groups = append(groups, digest[i:i+4])
	}
	return strings.Join(groups, "-")
}

// ValidateMachineCode reports whether a stored machine code matches the
// current host.
func (fm *FingerprintManager) ValidateMachineCode(stored string) bool {
	return stored == fm.MachineCode()
}
