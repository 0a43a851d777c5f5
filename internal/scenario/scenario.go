package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/teamtask/internal/domain"
)

// Scenario is a scripted session against a fresh task service.
// A scenario seeds a directory, opens recording connections, runs steps as
// named actors and checks the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixtures is an optional path to a fixtures file, relative to the
	// scenario file. Its teams and users are seeded before Teams and Users.
	Fixtures string `yaml:"fixtures,omitempty"`

	// Teams and Users seed the directory.
	Teams []TeamFixture `yaml:"teams,omitempty"`
	Users []UserFixture `yaml:"users,omitempty"`

	// Connections are recording clients registered with the hub before the
	// first step. Their deliveries appear in the trace.
	Connections []Connection `yaml:"connections,omitempty"`

	// Steps run in order, each as one actor.
	Steps []Step `yaml:"steps"`

	// Assertions check the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Connection is a recording client subscribed to rooms.
type Connection struct {
	ID    string   `yaml:"id"`
	Rooms []string `yaml:"rooms"`
}

// Step is one request made by an actor.
type Step struct {
	// Actor is the user ID performing the step. The actor's role and team
	// come from the seeded directory.
	Actor string `yaml:"actor"`

	// Action is create, read, update, delete or list.
	Action string `yaml:"action"`

	// Ref names the task the step acts on. For create it is the name the
	// new task is saved under.
	Ref string `yaml:"ref,omitempty"`

	Task  *TaskInput  `yaml:"task,omitempty"`
	Patch *PatchInput `yaml:"patch,omitempty"`
	Query *QueryInput `yaml:"query,omitempty"`

	// Expect checks the step's outcome. Without it the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// TaskInput is a create request.
type TaskInput struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Priority    string `yaml:"priority,omitempty"`
	DueDate     string `yaml:"due_date,omitempty"`
	AssignedTo  string `yaml:"assigned_to,omitempty"`
	IsPersonal  bool   `yaml:"is_personal,omitempty"`
}

// PatchInput is an update request. Absent fields are left unchanged.
type PatchInput struct {
	Title       *string `yaml:"title,omitempty"`
	Description *string `yaml:"description,omitempty"`
	Status      *string `yaml:"status,omitempty"`
	Priority    *string `yaml:"priority,omitempty"`
	DueDate     *string `yaml:"due_date,omitempty"`
	AssignedTo  *string `yaml:"assigned_to,omitempty"`
}

// QueryInput is a list request.
type QueryInput struct {
	View       string `yaml:"view,omitempty"`
	Status     string `yaml:"status,omitempty"`
	Priority   string `yaml:"priority,omitempty"`
	AssignedTo string `yaml:"assigned_to,omitempty"`
	IsPersonal *bool  `yaml:"is_personal,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Error is the expected error code, e.g. AUTHORIZATION_DENIED.
	// Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Status is the expected task status after a successful step.
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of tasks returned by a list step.
	Count *int `yaml:"count,omitempty"`
}

// Assertion checks the final trace and state.
type Assertion struct {
	// Type is one of event_count, delivered, counter, final_status.
	Type string `yaml:"type"`

	// Event is the event type counted by event_count.
	Event string `yaml:"event,omitempty"`

	// Connection and Events are checked by delivered: the connection must
	// have received exactly Events, in order.
	Connection string   `yaml:"connection,omitempty"`
	Events     []string `yaml:"events,omitempty"`

	// Key is the analytics counter checked by counter.
	Key string `yaml:"key,omitempty"`

	// Ref and Status are checked by final_status. An empty Status asserts
	// the task no longer exists.
	Ref    string `yaml:"ref,omitempty"`
	Status string `yaml:"status,omitempty"`

	// Count is the expected number for event_count and counter.
	Count int64 `yaml:"count,omitempty"`
}

// Step actions beyond the authorization actions.
const ActionList = "list"

// Assertion type constants.
const (
	AssertEventCount  = "event_count"
	AssertDelivered   = "delivered"
	AssertCounter     = "counter"
	AssertFinalStatus = "final_status"
)

// Load reads and parses a scenario YAML file.
// Unknown fields are rejected, and a fixtures path is resolved relative to
// the scenario file and loaded into the scenario.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if s.Fixtures != "" {
		fixturesPath := s.Fixtures
		if !filepath.IsAbs(fixturesPath) {
			fixturesPath = filepath.Join(filepath.Dir(path), fixturesPath)
		}
		f, err := LoadFixtures(fixturesPath)
		if err != nil {
			return nil, err
		}
		s.Teams = append(f.Teams, s.Teams...)
		s.Users = append(f.Users, s.Users...)
	}

	if err := validateScenario(s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}

// Parse decodes a scenario without resolving fixtures or validating it.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if err := validateFixtures(s.Teams, s.Users); err != nil {
		return err
	}

	conns := make(map[string]bool, len(s.Connections))
	for i, c := range s.Connections {
		if c.ID == "" {
			return fmt.Errorf("connections[%d]: id is required", i)
		}
		if conns[c.ID] {
			return fmt.Errorf("connections[%d]: duplicate id %q", i, c.ID)
		}
		conns[c.ID] = true
	}

	refs := make(map[string]bool)
	for i, step := range s.Steps {
		if step.Actor == "" {
			return fmt.Errorf("steps[%d]: actor is required", i)
		}
		switch step.Action {
		case string(domain.ActionCreate):
			if step.Task == nil {
				return fmt.Errorf("steps[%d]: task is required for create", i)
			}
			if step.Ref != "" {
				refs[step.Ref] = true
			}
		case string(domain.ActionRead), string(domain.ActionDelete):
			if step.Ref == "" {
				return fmt.Errorf("steps[%d]: ref is required for %s", i, step.Action)
			}
		case string(domain.ActionUpdate):
			if step.Ref == "" {
				return fmt.Errorf("steps[%d]: ref is required for update", i)
			}
			if step.Patch == nil {
				return fmt.Errorf("steps[%d]: patch is required for update", i)
			}
		case ActionList:
		default:
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, conns); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion, conns map[string]bool) error {
	switch a.Type {
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
	case AssertDelivered:
		if !conns[a.Connection] {
			return fmt.Errorf("assertions[%d]: unknown connection %q", index, a.Connection)
		}
	case AssertCounter:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for counter", index)
		}
	case AssertFinalStatus:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for final_status", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
