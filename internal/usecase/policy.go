package usecase

import "github.com/naka-gawa/mrnag/internal/domain"

// Process exit codes.
const (
	ExitOK             = 0
	ExitConfigError    = 1
	ExitPartialFailure = 2
)

// ExitCode maps a completed run to a process exit code. Per-project failures
// are part of a normal report unless strict is set.
func ExitCode(result domain.AggregationResult, strict bool) int {
	if strict && result.FailedCount() > 0 {
		return ExitPartialFailure
	}
	return ExitOK
}
