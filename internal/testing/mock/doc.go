// Package mock provides test doubles shared by runboat's package tests.
//
// MockClock is a controllable clock. Components that take a
// `func() time.Time` accept clock.Now, so tests can advance time through idle
// timeouts, deploy timeouts and retry delays without sleeping.
package mock
