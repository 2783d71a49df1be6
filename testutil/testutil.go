/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil provides helpers for checking errors and Prometheus metrics in tests.
package testutil

type tHelper interface {
	Helper()
}
