/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides per-key admission control based on a sliding window of
// admission timestamps.
//
// SlidingWindowLimiter keeps a log of admission times for each key and admits a request
// only while fewer than the configured rate of admissions happened within the trailing
// window. Stale entries are pruned lazily on every check, and a background sweep running
// with a period equal to the window removes windows left empty, so memory stays bounded
// even for keys that went idle.
//
// Key features:
//   - Exact sliding window admission log (no counter approximation)
//   - LRU-bounded per-key state
//   - Dry-run mode for evaluating limits before enforcing them
//   - Glob patterns for excluding or including keys
//   - Prometheus metrics and service.Unit lifecycle integration for the sweep
package ratelimit
