package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions runs every assertion against the harness's store and
// returns the failure messages.
func EvaluateAssertions(ctx context.Context, assertions []Assertion, h *Harness) []string {
	var failures []string
	for i, a := range assertions {
		if err := h.check(ctx, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (h *Harness) check(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertMatchStatus:
		return h.assertMatchStatus(ctx, a)
	case AssertRemaining:
		return h.assertRemaining(ctx, a)
	case AssertNotificationCount:
		return h.assertNotificationCount(ctx, a)
	case AssertActivityOrder:
		return h.assertActivityOrder(ctx, a)
	case AssertCapacityConsistent:
		return h.assertCapacityConsistent(ctx)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func (h *Harness) assertMatchStatus(ctx context.Context, a Assertion) error {
	m, err := h.store.GetMatch(ctx, a.Match)
	if domain.IsNotFound(err) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s %s", a.Match, a.Status), Actual: "no such match"}
	}
	if err != nil {
		return err
	}
	if string(m.Status) != a.Status {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s %s", a.Match, a.Status), Actual: string(m.Status)}
	}
	return nil
}

func (h *Harness) assertRemaining(ctx context.Context, a Assertion) error {
	rem, err := h.remaining(ctx, a.Host)
	if err != nil {
		return err
	}
	if rem != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d seats left at %s", a.Count, a.Host),
			Actual:   fmt.Sprintf("%d", rem),
		}
	}
	return nil
}

func (h *Harness) assertNotificationCount(ctx context.Context, a Assertion) error {
	ns, err := h.store.ListNotifications(ctx, store.NotificationFilter{
		Template: domain.Template(a.Template),
		MatchID:  a.Match,
		HostID:   a.Host,
	})
	if err != nil {
		return err
	}
	if len(ns) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s", a.Count, a.Template),
			Actual:   fmt.Sprintf("%d", len(ns)),
		}
	}
	return nil
}

// assertActivityOrder checks that the actions appear in the target's
// activity log in the given order. Other entries may come between them.
func (h *Harness) assertActivityOrder(ctx context.Context, a Assertion) error {
	log, err := h.store.ListActivity(ctx, a.Target, 0)
	if err != nil {
		return err
	}
	var seen []string
	next := 0
	for _, entry := range log {
		seen = append(seen, entry.Type)
		if next < len(a.Actions) && entry.Type == a.Actions[next] {
			next++
		}
	}
	if next < len(a.Actions) {
		return &AssertionError{
			Type:     a.Type,
			Expected: "[" + strings.Join(a.Actions, " ") + "]",
			Actual:   "[" + strings.Join(seen, " ") + "]",
		}
	}
	return nil
}

func (h *Harness) assertCapacityConsistent(ctx context.Context) error {
	drift, err := h.svc.VerifyCapacity(ctx)
	if err != nil {
		return err
	}
	if len(drift) > 0 {
		parts := make([]string, 0, len(drift))
		for _, d := range drift {
			parts = append(parts, fmt.Sprintf("%s counter %d recomputed %d", d.HostID, d.Counter, d.Recomputed))
		}
		return &AssertionError{Type: "capacity_consistent", Expected: "no drift", Actual: strings.Join(parts, ", ")}
	}
	return nil
}
