// Package retry provides exponential backoff for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff and
// jitter, used for gateway connection attempts and for the supervisor's
// worker restart policy.
//
// # Core Functions
//
//   - Do: execute a function with retry and exponential backoff
//   - Backoff: the delay for a given attempt, for callers that own their
//     own restart loop (the supervisor does)
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (startup connections)
//   - Restart(): unbounded-feel restart schedule, 500ms-1m delay
//     (supervisor worker restarts)
//
// # Usage Examples
//
// Connect with quick retries during startup:
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return gw.Connect()
//	})
//
// Mark an error as not worth retrying:
//
//	return retry.NonRetryable(err)
package retry
