// Package config resolves seatd's environment-and-flag-layered settings:
// the daemon's listen socket and log level, and the client library's
// backend selection and log verbosity (spec.md §6).
// Flags passed explicitly by the caller always win; otherwise the
// matching environment variable is used; otherwise a default.
package config

import "os"

// DefaultSocketPath is spec.md §6's well-known daemon socket path.
const DefaultSocketPath = "/run/seatd.sock"

// DefaultLogLevel is used when neither a flag nor SEATD_LOGLEVEL is set.
const DefaultLogLevel = "info"

// ResolveSocketPath layers a CLI flag value over the SEATD_SOCK
// environment variable over DefaultSocketPath, per spec.md §6 ("client
// side: override socket path"). cmd/seatd resolves its --socket flag
// through this; seatclient reads SEATD_SOCK itself, falling back to the
// same /run/seatd.sock default.
func ResolveSocketPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("SEATD_SOCK"); v != "" {
		return v
	}
	return DefaultSocketPath
}

// ResolveLogLevel layers a CLI flag value over SEATD_LOGLEVEL over
// DefaultLogLevel. SEATD_LOGLEVEL's values are {silent, info, debug}
// per spec.md §6; internal/logger.New also accepts "warn" and "error"
// and treats any other string as "info".
func ResolveLogLevel(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("SEATD_LOGLEVEL"); v != "" {
		return v
	}
	return DefaultLogLevel
}

// ResolveBackend reads LIBSEAT_BACKEND, the client-side override that
// restricts seatclient.OpenSeat's backend probing to one named backend.
// Empty means "probe every registered backend in order".
func ResolveBackend() string {
	return os.Getenv("LIBSEAT_BACKEND")
}
