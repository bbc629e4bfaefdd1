package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"

	BrightGreen   = "\033[92m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"

	Red       = "\033[31m"
	BrightRed = "\033[91m"
)

// Cache-related log prefixes
const (
	LogCacheInit     = Blue + "[Cache:Init]" + Reset
	LogCache         = Blue + "[Cache]" + Reset
	LogCacheRedis    = Blue + "[Cache:Redis]" + Reset
	LogCacheBackup   = Blue + "[Cache:Backup]" + Reset
	LogCacheClear    = Blue + "[Cache:Clear]" + Reset
	LogCacheBackups  = Blue + "[Cache:Backups]" + Reset
	LogCacheRestore  = Blue + "[Cache:Restore]" + Reset
	LogCacheLyrics   = Green + "[Cache:Lyrics]" + Reset
	LogCacheNegative = Cyan + "[Cache:Negative]" + Reset
)

// Rate limiting log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogAPIKey    = Purple + "[APIKey]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// sessionColors rotate so concurrent sessions are easy to tell apart in logs
var sessionColors = []string{
	Green, Blue, Purple, Cyan, Red,
	BrightGreen, BrightBlue, BrightMagenta, BrightCyan, BrightRed,
}

// Session returns a colored session id for log messages.
// The same id always gets the same color.
func Session(id string) string {
	hash := 0
	for _, c := range id {
		hash += int(c)
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return sessionColors[hash%len(sessionColors)] + short + Reset
}

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogStats  = Blue + "[Stats]" + Reset

	LogNotifier = Yellow + "[Notifier]" + Reset
)

// Session log prefixes
const (
	LogSession = Green + "[Session]" + Reset
	LogLoader  = Cyan + "[Loader]" + Reset
	LogCursor  = Blue + "[Cursor]" + Reset
)

// Provider and parser log prefixes
const (
	LogRequest        = Purple + "[Request]" + Reset
	LogLocal          = Blue + "[Local]" + Reset
	LogEmbedded       = Blue + "[Embedded]" + Reset
	LogRemote         = Cyan + "[Remote]" + Reset
	LogHTTP           = Cyan + "[HTTP]" + Reset
	LogSuccess        = Green + "[Success]" + Reset
	LogFallback       = Cyan + "[Fallback]" + Reset
	LogCircuitBreaker = Purple + "[CircuitBreaker]" + Reset
	LogParserLRC      = Cyan + "[Parser:LRC]" + Reset
	LogParserTTML     = Cyan + "[Parser:TTML]" + Reset
	LogParserSubtitle = Cyan + "[Parser:Subtitle]" + Reset
	LogWarning        = Red + "[Warning]" + Reset
)
