package database

// History query limits
const (
	// DefaultHistoryLimit is used when a caller does not pass a limit.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps a single history page.
	MaxHistoryLimit = 500
)

// ClampHistoryLimit maps a requested limit into [1, MaxHistoryLimit].
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, MaxHistoryLimit)
}
