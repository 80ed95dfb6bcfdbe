package stepflow

// Config holds configuration for the orchestration engine.
type Config struct {
	// MaxRetries is the retry ceiling: the number of additional attempts
	// allowed after the first failure, so a step gets MaxRetries+1 total
	// attempts in ExecuteStepWithRetry.
	MaxRetries int

	// BackupRetention is how many rotating state backups file-based stores
	// keep before pruning the oldest.
	BackupRetention int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BackupRetention: 10,
	}
}
