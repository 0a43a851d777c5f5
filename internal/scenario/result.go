package scenario

import (
	"fmt"
	"strings"
)

// Entry is the trace of one step.
type Entry struct {
	Seq    int    `json:"seq"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Ref    string `json:"ref,omitempty"`

	// Outcome is "ok" or the error code the step failed with.
	Outcome string `json:"outcome"`

	// Status and AssignedTo describe the task after a successful create,
	// read or update.
	Status     string `json:"status,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`

	// Count and Tasks describe a successful list. Tasks holds refs, or IDs
	// for tasks created without one.
	Count *int     `json:"count,omitempty"`
	Tasks []string `json:"tasks,omitempty"`

	// Events are the event types archived by the step, in order.
	Events []string `json:"events,omitempty"`

	// Deliveries are the notifications received by recording connections.
	Deliveries []Delivery `json:"deliveries,omitempty"`
}

// Delivery is one notification received by a connection.
type Delivery struct {
	Connection string `json:"connection"`
	Event      string `json:"event"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []Entry  `json:"trace"`
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []Entry{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AssertionError is a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s", e.Actual)
	return buf.String()
}
