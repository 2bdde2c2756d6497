package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/ledger"
)

// Scenario is a workflow test case.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Policy is the reservation policy; empty means proposal.
	Policy string `yaml:"policy,omitempty"`

	Hosts  []HostSpec  `yaml:"hosts"`
	Guests []GuestSpec `yaml:"guests"`

	Flow       []FlowStep  `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// HostSpec seeds a host. Unset fields take the fixture defaults: four
// seats on the Upper West Side, English, fully kosher, middle vibes.
type HostSpec struct {
	ID           string   `yaml:"id"`
	Seats        int      `yaml:"seats,omitempty"`
	Neighborhood string   `yaml:"neighborhood,omitempty"`
	Kosher       string   `yaml:"kosher,omitempty"`
	Languages    []string `yaml:"languages,omitempty"`
	Vibe         []int    `yaml:"vibe,omitempty"`
}

// GuestSpec seeds a guest. Unset fields take the fixture defaults.
type GuestSpec struct {
	ID            string   `yaml:"id"`
	PartySize     int      `yaml:"party_size,omitempty"`
	Neighborhood  string   `yaml:"neighborhood,omitempty"`
	MaxTravelTime int      `yaml:"max_travel_time,omitempty"`
	Kosher        string   `yaml:"kosher,omitempty"`
	Languages     []string `yaml:"languages,omitempty"`
	Vibe          []int    `yaml:"vibe,omitempty"`

	// NoShows flags the guest with this many past no-shows.
	NoShows int `yaml:"no_shows,omitempty"`
}

// LinkRef names the notification whose action link a step follows.
type LinkRef struct {
	Template string `yaml:"template"`
	Match    string `yaml:"match,omitempty"`
	Host     string `yaml:"host,omitempty"`
}

// FlowStep is one workflow operation.
type FlowStep struct {
	Op string `yaml:"op"`

	Match      string   `yaml:"match,omitempty"`
	Host       string   `yaml:"host,omitempty"`
	Action     string   `yaml:"action,omitempty"`
	Link       *LinkRef `yaml:"link,omitempty"`
	Matches    []string `yaml:"matches,omitempty"`
	Regenerate bool     `yaml:"regenerate,omitempty"`
	Duration   string   `yaml:"duration,omitempty"`

	// Expect is a subset of the step's result that must match. An
	// expected error is written as {error: CODE}.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion checks the store after the flow.
type Assertion struct {
	Type     string   `yaml:"type"`
	Match    string   `yaml:"match,omitempty"`
	Host     string   `yaml:"host,omitempty"`
	Status   string   `yaml:"status,omitempty"`
	Template string   `yaml:"template,omitempty"`
	Count    int      `yaml:"count,omitempty"`
	Target   string   `yaml:"target,omitempty"`
	Actions  []string `yaml:"actions,omitempty"`
}

// Flow operations.
const (
	OpGenerate      = "generate"
	OpSendRequest   = "send_request"
	OpFinalize      = "finalize"
	OpEdit          = "edit"
	OpDelete        = "delete"
	OpRemind        = "remind"
	OpHostSummary   = "host_summary"
	OpNoShowRequest = "noshow_request"
	OpRespond       = "respond"
	OpConfirm       = "confirm"
	OpNoShowForm    = "noshow_form"
	OpNoShowSubmit  = "noshow_submit"
	OpSweep         = "sweep"
	OpAdvance       = "advance"
)

// Assertion types.
const (
	AssertMatchStatus        = "match_status"
	AssertRemaining          = "remaining"
	AssertNotificationCount  = "notification_count"
	AssertActivityOrder      = "activity_order"
	AssertCapacityConsistent = "capacity_consistent"
)

// LoadScenario reads a scenario file. Unknown fields are rejected so a
// typo never silently disables a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadDir loads every .yaml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Strings(paths)
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Policy != "" {
		if _, err := ledger.ParsePolicy(s.Policy); err != nil {
			return err
		}
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	ids := map[string]bool{}
	for i, h := range s.Hosts {
		if h.ID == "" || ids[h.ID] {
			return fmt.Errorf("hosts[%d]: id is required and must be unique", i)
		}
		ids[h.ID] = true
		if h.Vibe != nil && len(h.Vibe) != 3 {
			return fmt.Errorf("hosts[%d]: vibe needs three axes", i)
		}
	}
	for i, g := range s.Guests {
		if g.ID == "" || ids[g.ID] {
			return fmt.Errorf("guests[%d]: id is required and must be unique", i)
		}
		ids[g.ID] = true
		if g.Vibe != nil && len(g.Vibe) != 3 {
			return fmt.Errorf("guests[%d]: vibe needs three axes", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step FlowStep) error {
	switch step.Op {
	case OpGenerate, OpSweep:
	case OpSendRequest, OpFinalize, OpDelete, OpRemind:
		if step.Match == "" {
			return fmt.Errorf("flow[%d]: match is required for %s", i, step.Op)
		}
	case OpEdit:
		if step.Match == "" || step.Host == "" {
			return fmt.Errorf("flow[%d]: match and host are required for edit", i)
		}
	case OpHostSummary, OpNoShowRequest:
		if step.Host == "" {
			return fmt.Errorf("flow[%d]: host is required for %s", i, step.Op)
		}
	case OpRespond, OpConfirm, OpNoShowForm, OpNoShowSubmit:
		if step.Link == nil || step.Link.Template == "" {
			return fmt.Errorf("flow[%d]: link.template is required for %s", i, step.Op)
		}
		if !domain.Template(step.Link.Template).LinkBearing() {
			return fmt.Errorf("flow[%d]: %s messages carry no link", i, step.Link.Template)
		}
		if (step.Link.Match == "") == (step.Link.Host == "") {
			return fmt.Errorf("flow[%d]: link needs exactly one of match or host", i)
		}
		if step.Op == OpRespond && step.Action == "" {
			return fmt.Errorf("flow[%d]: action is required for respond", i)
		}
	case OpAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("flow[%d]: advance needs a duration: %w", i, err)
		}
	case "":
		return fmt.Errorf("flow[%d]: op is required", i)
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertMatchStatus:
		if a.Match == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: match and status are required for match_status", i)
		}
		if _, err := domain.ParseStatus(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	case AssertRemaining:
		if a.Host == "" {
			return fmt.Errorf("assertions[%d]: host is required for remaining", i)
		}
	case AssertNotificationCount:
		if a.Template == "" || a.Count < 0 {
			return fmt.Errorf("assertions[%d]: template and a non-negative count are required", i)
		}
	case AssertActivityOrder:
		if a.Target == "" || len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: target and actions are required for activity_order", i)
		}
	case AssertCapacityConsistent:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
