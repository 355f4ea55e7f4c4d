package manage

import "context"

// Worker is a long-running unit under supervision. Run executes until the
// context ends or the loop dies. Recoverable failures inside the loop go
// to a Reporter; a returned error means the loop itself stopped and the
// supervisor decides whether to restart it.
type Worker interface {
	ID() string
	Run(ctx context.Context) error
}

// Reporter receives failure reports from running workers.
type Reporter interface {
	Report(workerID string, err error)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(workerID string, err error)

// Report implements Reporter.
func (f ReporterFunc) Report(workerID string, err error) { f(workerID, err) }
