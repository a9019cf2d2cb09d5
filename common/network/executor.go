package network

// Executor runs units of work detached from the caller.
//
// Execute must return without waiting for task to finish and is safe for
// concurrent use. The result of task is never handed back to the submitter.
type Executor interface {
	Execute(task func() error)
}
