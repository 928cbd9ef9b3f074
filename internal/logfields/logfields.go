package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyProvider   = "provider"
	KeyClientID   = "client_id"
	KeyEventID    = "event_id"
	KeyEventType  = "event_type"
	KeyContentID  = "content_id"
	KeyBatchID    = "batch_id"
	KeyBuildID    = "build_id"
	KeyStrategy   = "strategy"
	KeyReason     = "reason"
	KeyEventCount = "event_count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Provider(p string) slog.Attr     { return slog.String(KeyProvider, p) }
func ClientID(id string) slog.Attr    { return slog.String(KeyClientID, id) }
func EventID(id string) slog.Attr     { return slog.String(KeyEventID, id) }
func EventType(t string) slog.Attr    { return slog.String(KeyEventType, t) }
func ContentID(id string) slog.Attr   { return slog.String(KeyContentID, id) }
func BatchID(id string) slog.Attr     { return slog.String(KeyBatchID, id) }
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Strategy(s string) slog.Attr     { return slog.String(KeyStrategy, s) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func EventCount(n int) slog.Attr      { return slog.Int(KeyEventCount, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
