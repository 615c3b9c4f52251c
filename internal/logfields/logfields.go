package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyCorpus     = "corpus"
	KeyDocID      = "doc_id"
	KeyTitle      = "title"
	KeyKind       = "kind"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyHref       = "href"
	KeyEndpoint   = "endpoint"
	KeyStage      = "stage"
	KeyRule       = "rule"
	KeyCount      = "count"
	KeyAttempt    = "attempt"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Corpus(space string) slog.Attr   { return slog.String(KeyCorpus, space) }
func DocID(id string) slog.Attr       { return slog.String(KeyDocID, id) }
func Title(t string) slog.Attr        { return slog.String(KeyTitle, t) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Href(h string) slog.Attr         { return slog.String(KeyHref, h) }
func Endpoint(e string) slog.Attr     { return slog.String(KeyEndpoint, e) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Rule(r string) slog.Attr         { return slog.String(KeyRule, r) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
