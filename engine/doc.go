// Package engine implements the step orchestration engine: step and
// dependency registration, prerequisite resolution, single-attempt and
// retrying execution, rollback, failure recovery, and summary/health
// reporting over a durable progress store.
//
// One Engine drives one workflow run. The engine is synchronous and holds
// no internal locking; drive it from a single goroutine. Separate workflows
// may run concurrently as long as each has its own Engine and its own
// progress store namespace. Driving two engines against the same persisted
// workflow is undefined (last writer wins at the store).
//
// Execution faults never escape as errors or panics: every fault raised by
// a step's Execute or Validate is normalized into a failed step.Result.
// Bookkeeping operations (initialization, rollback, recovery) return errors
// carrying the underlying cause instead.
package engine
