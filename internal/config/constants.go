package config

import "time"

// Application identity sent to the license authority on every
// verification request. The authority matches licenses per application,
// so these values are part of the wire contract.
const (
	AppName    = "material-converter"
	AppVersion = "1.0.0"
)

// UserAgent is the HTTP User-Agent header for license authority calls.
const UserAgent = AppName + "/" + AppVersion

// License verification defaults.
const (
	// DefaultLicenseServerURL is the base URL of the license authority.
	// The verify endpoint is DefaultLicenseServerURL + "/verify".
	DefaultLicenseServerURL = "https://license.material-converter.example.com/v1"

	// DefaultRequestTimeout bounds one whole request/response cycle
	// against the authority.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultGraceWindow is how long a previously verified license keeps
	// the application usable while the authority is unreachable.
	DefaultGraceWindow = 7 * 24 * time.Hour

	// DefaultLicenseFile is the cache file name, stored next to the
	// executable.
	DefaultLicenseFile = "license.dat"

	// MaxVerifyAttempts caps the retry loop for transient failures.
	MaxVerifyAttempts = 3

	// VerifyBackoffBase is the first retry delay; subsequent delays
	// double, capped at the request timeout.
	VerifyBackoffBase = 1 * time.Second
)
