// Package scheduler runs named background jobs on bounded worker pools.
//
// A job name is unique while the job is pending or running. Submitting a
// name that is already known either does nothing (KeepExisting) or cancels
// the known job and starts the new one (ReplacePending). Transient failures
// are retried with capped exponential backoff. Every job publishes its state
// to observers until it reaches a terminal state.
package scheduler
