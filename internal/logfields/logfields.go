package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID       = "run_id"
	KeyStage       = "stage"
	KeyPlugin      = "plugin"
	KeyCommand     = "command"
	KeyInjector    = "injector"
	KeyRunner      = "runner"
	KeyTarget      = "target"
	KeyURL         = "url"
	KeyFingerprint = "fingerprint"
	KeySource      = "fingerprint_source"
	KeyCacheState  = "cache_state"
	KeyBackend     = "backend"
	KeyPath        = "path"
	KeyStatus      = "status"
	KeyBytes       = "bytes"
	KeyDurationMS  = "duration_ms"
	KeyJobID       = "job_id"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Plugin(name string) slog.Attr    { return slog.String(KeyPlugin, name) }
func Command(name string) slog.Attr   { return slog.String(KeyCommand, name) }
func Injector(name string) slog.Attr  { return slog.String(KeyInjector, name) }
func Runner(name string) slog.Attr    { return slog.String(KeyRunner, name) }
func Target(kind string) slog.Attr    { return slog.String(KeyTarget, kind) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Fingerprint(fp string) slog.Attr { return slog.String(KeyFingerprint, fp) }
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func CacheState(s string) slog.Attr   { return slog.String(KeyCacheState, s) }
func Backend(b string) slog.Attr      { return slog.String(KeyBackend, b) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Bytes(n int) slog.Attr           { return slog.Int(KeyBytes, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
