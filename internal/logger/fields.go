package logger

import "log/slog"

// ============================================================================
// Structured field keys
//
// Grouped by the subsystem that produces them. Using typed constructors
// instead of bare strings keeps key names consistent across the host,
// registry, content store, and HTTP executor.
// ============================================================================

const (
	KeyTraceID   = "trace_id"
	KeyOperation = "operation"
	KeyDuration  = "duration_ms"
	KeyErr       = "error"
)

// TraceID returns a trace_id attribute
func TraceID(v string) slog.Attr { return slog.String(KeyTraceID, v) }

// Operation returns an operation attribute
func Operation(v string) slog.Attr { return slog.String(KeyOperation, v) }

// DurationMs returns a duration_ms attribute
func DurationMs(v float64) slog.Attr { return slog.Float64(KeyDuration, v) }

// Err returns an error attribute. Accepts nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyErr, err.Error())
}

// ============================================================================
// Extension Host / Registry fields
// ============================================================================

const (
	KeyExtensionID = "extension_id"
	KeySourceID    = "source_id"
	KeyVersion     = "version"
	KeyStoreType   = "store_type"
	KeyBaseURL     = "base_url"
	KeyTrusted     = "trusted"
	KeyForce       = "force_reinstall"
)

func ExtensionID(v string) slog.Attr { return slog.String(KeyExtensionID, v) }
func SourceID(v string) slog.Attr    { return slog.String(KeySourceID, v) }
func Version(v string) slog.Attr     { return slog.String(KeyVersion, v) }
func StoreType(v string) slog.Attr   { return slog.String(KeyStoreType, v) }
func BaseURL(v string) slog.Attr     { return slog.String(KeyBaseURL, v) }
func Trusted(v bool) slog.Attr       { return slog.Bool(KeyTrusted, v) }
func ForceReinstall(v bool) slog.Attr {
	return slog.Bool(KeyForce, v)
}

// ============================================================================
// Content Store fields
// ============================================================================

const (
	KeyNovelID    = "novel_id"
	KeyChapterURL = "chapter_url"
	KeyNovelURL   = "novel_url"
	KeyVolumeIdx  = "volume_index"
	KeyAssetID    = "asset_id"
	KeyBytes      = "bytes"
)

func NovelID(v string) slog.Attr    { return slog.String(KeyNovelID, v) }
func ChapterURL(v string) slog.Attr { return slog.String(KeyChapterURL, v) }
func NovelURL(v string) slog.Attr   { return slog.String(KeyNovelURL, v) }
func VolumeIndex(v int) slog.Attr   { return slog.Int(KeyVolumeIdx, v) }
func AssetID(v string) slog.Attr    { return slog.String(KeyAssetID, v) }
func Bytes(v int) slog.Attr         { return slog.Int(KeyBytes, v) }

// ============================================================================
// HTTP Executor / Cache fields
// ============================================================================

const (
	KeyMethod     = "method"
	KeyURL        = "url"
	KeyStatus     = "status"
	KeyCacheHit   = "cache_hit"
	KeyCacheTier  = "cache_tier" // "memory" or "disk"
	KeyCacheKey   = "cache_key"
	KeyTTLSeconds = "ttl_seconds"
)

func Method(v string) slog.Attr    { return slog.String(KeyMethod, v) }
func URL(v string) slog.Attr       { return slog.String(KeyURL, v) }
func Status(v int) slog.Attr       { return slog.Int(KeyStatus, v) }
func CacheHit(v bool) slog.Attr    { return slog.Bool(KeyCacheHit, v) }
func CacheTier(v string) slog.Attr { return slog.String(KeyCacheTier, v) }
func CacheKey(v string) slog.Attr  { return slog.String(KeyCacheKey, v) }
func TTLSeconds(v int64) slog.Attr { return slog.Int64(KeyTTLSeconds, v) }
