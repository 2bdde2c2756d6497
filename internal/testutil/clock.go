// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"time"

	"github.com/roach88/dinnermatch/internal/clock"
)

// Friday is the reference "now" for tests: a Friday afternoon before dinner.
var Friday = time.Date(2025, 1, 3, 15, 0, 0, 0, time.UTC)

// NewClock returns a fake clock set to Friday.
func NewClock() *clock.Fake {
	return clock.NewFake(Friday)
}

// NewIDs returns a sequence generator so ids in assertions are stable.
func NewIDs(prefix string) *clock.SequenceGenerator {
	return clock.NewSequenceGenerator(prefix)
}
