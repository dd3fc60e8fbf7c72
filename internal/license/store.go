package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/scrypt"
)

// checksumSecret seeds the scrypt derivation of the checksum key. It
// only needs to defeat casual editing of license.dat; the authority
// remains the source of truth.
const checksumSecret = "material-converter-license-baseline-v1"

var checksumSalt = []byte("convertercli.license.store")

// Store persists the last verification outcome bound to a machine code.
// Load never returns an error to callers: a missing file, a checksum
// mismatch and a foreign machine code are all folded into absence so
// the state machine sees exactly two cases, trustworthy cache or none.
type Store struct {
	path   string
	key    []byte
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a store writing to the given file path.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	key, err := scrypt.Key([]byte(checksumSecret), checksumSalt, 32768, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive checksum key: %w", err)
	}

	return &Store{
		path:   path,
		key:    key,
		logger: logger.With(slog.String("component", "license_store")),
	}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the cached record for the given machine code, or nil if
// no trustworthy record exists.
func (s *Store) Load(machineCode string) *CachedLicenseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read license cache",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	var record CachedLicenseRecord
	if err := json.Unmarshal(data, &record); err != nil {
		s.logger.Warn("license cache is not valid JSON, treating as absent",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if record.Checksum != s.checksum(&record) {
		s.logger.Warn("license cache checksum mismatch, treating as absent",
			slog.String("path", s.path),
		)
		return nil
	}

	if record.MachineCode != machineCode {
		s.logger.Warn("license cache bound to different machine, treating as absent",
			slog.String("cached_machine_code", record.MachineCode),
		)
		return nil
	}

	return &record
}

// Save atomically replaces the cached record. The checksum is computed
// here; callers never set it. A crash mid-write leaves the previous
// valid file intact because the temp file is renamed over it.
func (s *Store) Save(record *CachedLicenseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.Checksum = s.checksum(record)

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal license record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create license directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".license-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp license file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write license record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp license file: %w", err)
	}

	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set license file permissions: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace license file: %w", err)
	}

	s.logger.Info("license cache updated",
		slog.String("path", s.path),
		slog.Time("verified_at", record.VerifiedAt),
	)

	return nil
}

// checksum computes the keyed hash over the record's canonical field
// string. Every field that influences trust decisions participates.
func (s *Store) checksum(record *CachedLicenseRecord) string {
	canonical := strings.Join([]string{
		record.MachineCode,
		record.LicenseKey,
		strconv.FormatBool(record.Outcome.Success),
		record.Outcome.ErrorCode,
		record.Outcome.LicenseType,
		formatChecksumTime(record.Outcome.ExpiryDate),
		formatChecksumTime(record.VerifiedAt),
	}, "|")

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func formatChecksumTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
