package api

// Config holds server configuration.
type Config struct {
	Port           int
	JournalPath    string   // empty disables journaling
	MaxUploadBytes int64    // per-file upload limit (0 = default 50 MiB)
	AllowedOrigins []string // CORS allowed origins (empty = allow all)
}

const defaultMaxUploadBytes = 50 << 20
