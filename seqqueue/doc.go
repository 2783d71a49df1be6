/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package seqqueue provides per-key sequential execution of tasks with a global
// concurrency limit.
//
// Queue assigns every submitted task a per-key sequence number and guarantees that
// tasks sharing a key run one at a time, in submission order, no matter how many
// goroutines submit concurrently. Tasks for different keys run in parallel, bounded
// in aggregate by a fixed number of gate slots. Each submission returns a Result
// handle that is resolved exactly once with the task's value or a terminal error.
//
// Key features:
//   - Strict per-key ordering with lazily created, self-terminating key processors
//   - Global concurrency gate shared by all keys
//   - One-shot Result handles usable directly or through the blocking Submit
//   - Per-task isolation of errors and panics
//   - Prometheus metrics and service.Unit lifecycle integration
package seqqueue
