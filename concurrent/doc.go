// Package concurrent provides a bounded, structured-concurrency scope for
// fanning out independent read queries against a storage backend.
//
// A Queries scope tracks all work submitted to it, including work submitted
// recursively from running tasks, and its Wait method blocks until the whole
// tree is quiescent. Concurrency is bounded by the worker pool the scope
// executes on.
package concurrent
