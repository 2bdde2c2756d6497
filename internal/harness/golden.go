package harness

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden form of a run: the step log and the final store
// state. Timestamps and scores are left out so snapshots survive tuning.
type Snapshot struct {
	Scenario string     `json:"scenario"`
	Steps    []Step     `json:"steps"`
	Final    FinalState `json:"final"`
}

// MarshalSnapshot renders the golden bytes for a run.
func MarshalSnapshot(name string, r *Result) ([]byte, error) {
	data, err := json.MarshalIndent(Snapshot{Scenario: name, Steps: r.Steps, Final: r.Final}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario in a temporary database, fails the
// test on any scenario error and compares the run with
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), s, filepath.Join(t.TempDir(), "scenario.db"))
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", s.Name, msg)
	}
	return result, AssertGolden(t, s.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
