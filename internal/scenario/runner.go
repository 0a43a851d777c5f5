package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/teamtask/internal/analytics"
	"github.com/roach88/teamtask/internal/cache"
	"github.com/roach88/teamtask/internal/coordinator"
	"github.com/roach88/teamtask/internal/dispatch"
	"github.com/roach88/teamtask/internal/domain"
	"github.com/roach88/teamtask/internal/eventlog"
	"github.com/roach88/teamtask/internal/notify"
	"github.com/roach88/teamtask/internal/store"
	"github.com/roach88/teamtask/internal/testutil"
)

// outcomeOK is the outcome of a step that succeeded.
const outcomeOK = "ok"

// maxEventScan bounds the event log read used by event_count assertions.
const maxEventScan = 10000

// runner holds the services for one scenario run.
//
// Every side effect runs inline, so when a step returns its events are
// archived and its notifications delivered.
type runner struct {
	store   *store.Store
	hub     *notify.Hub
	agg     *analytics.Aggregator
	coord   *coordinator.Coordinator
	capture *captureSink

	conns []namedConn
	seen  map[string]int // connection ID -> messages already traced

	refs  map[string]string // ref -> task ID
	names map[string]string // task ID -> ref
}

type namedConn struct {
	id   string
	conn *testutil.RecordingConn
}

// captureSink collects the types of archived events until drained.
type captureSink struct {
	mu     sync.Mutex
	events []string
}

func (c *captureSink) AppendEvent(_ context.Context, rec domain.EventRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, string(rec.EventType))
	return nil
}

func (c *captureSink) drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

// Run executes a scenario against a fresh in-memory store and returns the
// result. An error means the scenario could not be run; failed expectations
// and assertions are reported in the result.
//
// Runs are deterministic: the clock starts at testutil.Epoch and advances
// one second per reading, and IDs are sequential.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	clock := testutil.NewClock(testutil.Epoch, time.Second)

	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := Seed(ctx, st, s.Teams, s.Users, nil); err != nil {
		return nil, err
	}

	r := &runner{
		store:   st,
		hub:     notify.NewHub(notify.WithClock(clock.Current)),
		agg:     analytics.New(cache.NewMemoryStore(), analytics.WithClock(clock.Current)),
		capture: &captureSink{},
		seen:    make(map[string]int),
		refs:    make(map[string]string),
		names:   make(map[string]string),
	}
	defer r.hub.Close()

	for _, c := range s.Connections {
		conn := testutil.NewRecordingConn()
		r.hub.Register(c.ID, conn)
		for _, room := range c.Rooms {
			if err := r.hub.Join(c.ID, room); err != nil {
				return nil, fmt.Errorf("connection %s: %w", c.ID, err)
			}
		}
		r.conns = append(r.conns, namedConn{id: c.ID, conn: conn})
	}

	r.coord, err = coordinator.New(st, st,
		coordinator.WithNotifier(r.hub),
		coordinator.WithRecorder(r.agg),
		coordinator.WithEventSink(eventlog.Multi{st, r.capture}),
		coordinator.WithSubmitter(dispatch.Inline{}),
		coordinator.WithIDs(testutil.NewSequentialIDs("id")),
		coordinator.WithClock(clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	result := NewResult()
	for i, step := range s.Steps {
		entry, err := r.runStep(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.Trace = append(result.Trace, entry)
		checkExpect(result, i+1, step, entry)
	}

	for _, a := range s.Assertions {
		if err := r.evaluate(ctx, a); err != nil {
			result.AddError(err.Error())
		}
	}

	slog.Debug("scenario finished",
		"scenario", s.Name,
		"steps", len(s.Steps),
		"pass", result.Pass)
	return result, nil
}

func (r *runner) runStep(ctx context.Context, seq int, step Step) (Entry, error) {
	user, err := r.store.FindUserByID(ctx, step.Actor)
	if err != nil {
		return Entry{}, fmt.Errorf("unknown actor %q: %w", step.Actor, err)
	}
	actor := domain.AuthContextFor(user)

	entry := Entry{Seq: seq, Actor: step.Actor, Action: step.Action, Ref: step.Ref}

	var task *domain.Task
	switch step.Action {
	case string(domain.ActionCreate):
		draft, derr := step.Task.draft()
		if derr != nil {
			return Entry{}, derr
		}
		var t domain.Task
		t, err = r.coord.Create(ctx, actor, draft)
		if err == nil {
			task = &t
			if step.Ref != "" {
				r.refs[step.Ref] = t.ID
				r.names[t.ID] = step.Ref
			}
		}

	case string(domain.ActionRead):
		var t domain.Task
		t, err = r.coord.Get(ctx, actor, r.taskID(step.Ref))
		task = &t

	case string(domain.ActionUpdate):
		patch, perr := step.Patch.patch()
		if perr != nil {
			return Entry{}, perr
		}
		var t domain.Task
		t, err = r.coord.Update(ctx, actor, r.taskID(step.Ref), patch)
		task = &t

	case string(domain.ActionDelete):
		err = r.coord.Delete(ctx, actor, r.taskID(step.Ref))

	case ActionList:
		var tasks []domain.Task
		tasks, err = r.coord.List(ctx, actor, step.Query.query())
		if err == nil {
			count := len(tasks)
			entry.Count = &count
			for _, t := range tasks {
				entry.Tasks = append(entry.Tasks, r.refFor(t.ID))
			}
		}
	}

	if err != nil {
		code := coordinator.CodeOf(err)
		if code == "" {
			return Entry{}, err
		}
		entry.Outcome = string(code)
	} else {
		entry.Outcome = outcomeOK
		if task != nil {
			entry.Status = string(task.Status)
			entry.AssignedTo = task.AssignedTo
		}
	}

	entry.Events = r.capture.drain()
	entry.Deliveries = r.collectDeliveries()
	return entry, nil
}

// collectDeliveries returns messages received since the previous step,
// grouped by connection in declaration order.
func (r *runner) collectDeliveries() []Delivery {
	var out []Delivery
	for _, nc := range r.conns {
		events := nc.conn.Events()
		for _, e := range events[r.seen[nc.id]:] {
			out = append(out, Delivery{Connection: nc.id, Event: e})
		}
		r.seen[nc.id] = len(events)
	}
	return out
}

// taskID resolves a ref. Unknown refs are used as raw task IDs so that
// scenarios can address tasks that do not exist.
func (r *runner) taskID(ref string) string {
	if id, ok := r.refs[ref]; ok {
		return id
	}
	return ref
}

func (r *runner) refFor(id string) string {
	if ref, ok := r.names[id]; ok {
		return ref
	}
	return id
}

func checkExpect(result *Result, seq int, step Step, entry Entry) {
	want := outcomeOK
	if step.Expect != nil && step.Expect.Error != "" {
		want = step.Expect.Error
	}
	if entry.Outcome != want {
		result.AddError(fmt.Sprintf("step %d (%s %s): expected %s, got %s",
			seq, step.Actor, step.Action, want, entry.Outcome))
		return
	}
	if step.Expect == nil {
		return
	}
	if step.Expect.Status != "" && entry.Status != step.Expect.Status {
		result.AddError(fmt.Sprintf("step %d (%s %s): expected status %s, got %s",
			seq, step.Actor, step.Action, step.Expect.Status, entry.Status))
	}
	if step.Expect.Count != nil {
		got := 0
		if entry.Count != nil {
			got = *entry.Count
		}
		if got != *step.Expect.Count {
			result.AddError(fmt.Sprintf("step %d (%s %s): expected %d tasks, got %d",
				seq, step.Actor, step.Action, *step.Expect.Count, got))
		}
	}
}

func (r *runner) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		events, err := r.store.ReadEvents(ctx, domain.EventFilter{EventType: domain.EventType(a.Event)}, maxEventScan)
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}
		if int64(len(events)) != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d %s events", a.Count, a.Event),
				Actual:   fmt.Sprintf("%d", len(events)),
			}
		}

	case AssertDelivered:
		for _, nc := range r.conns {
			if nc.id != a.Connection {
				continue
			}
			got := nc.conn.Events()
			if !slices.Equal(got, a.Events) {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("%s received [%s]", a.Connection, strings.Join(a.Events, " ")),
					Actual:   fmt.Sprintf("[%s]", strings.Join(got, " ")),
				}
			}
		}

	case AssertCounter:
		if got := r.agg.GetCounter(ctx, a.Key); got != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s = %d", a.Key, a.Count),
				Actual:   fmt.Sprintf("%d", got),
			}
		}

	case AssertFinalStatus:
		task, err := r.store.FindTaskByID(ctx, r.taskID(a.Ref))
		switch {
		case errors.Is(err, store.ErrNotFound):
			if a.Status != "" {
				return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s is %s", a.Ref, a.Status), Actual: "not found"}
			}
		case err != nil:
			return fmt.Errorf("find task %s: %w", a.Ref, err)
		case string(task.Status) != a.Status:
			expected := fmt.Sprintf("%s is %s", a.Ref, a.Status)
			if a.Status == "" {
				expected = a.Ref + " is deleted"
			}
			return &AssertionError{Type: a.Type, Expected: expected, Actual: string(task.Status)}
		}
	}
	return nil
}

func (in *TaskInput) draft() (domain.TaskDraft, error) {
	d := domain.TaskDraft{
		Title:       in.Title,
		Description: in.Description,
		Priority:    domain.Priority(strings.ToUpper(in.Priority)),
		AssignedTo:  in.AssignedTo,
		IsPersonal:  in.IsPersonal,
	}
	if in.DueDate != "" {
		due, err := parseDate(in.DueDate)
		if err != nil {
			return domain.TaskDraft{}, err
		}
		d.DueDate = &due
	}
	return d, nil
}

func (in *PatchInput) patch() (domain.TaskPatch, error) {
	p := domain.TaskPatch{
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
	}
	if in.Status != nil {
		s := domain.Status(strings.ToUpper(*in.Status))
		p.Status = &s
	}
	if in.Priority != nil {
		pr := domain.Priority(strings.ToUpper(*in.Priority))
		p.Priority = &pr
	}
	if in.DueDate != nil {
		due, err := parseDate(*in.DueDate)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		p.DueDate = &due
	}
	return p, nil
}

func (in *QueryInput) query() domain.TaskQuery {
	if in == nil {
		return domain.TaskQuery{}
	}
	return domain.TaskQuery{
		View:       domain.TaskView(in.View),
		Status:     domain.Status(strings.ToUpper(in.Status)),
		Priority:   domain.Priority(strings.ToUpper(in.Priority)),
		AssignedTo: in.AssignedTo,
		IsPersonal: in.IsPersonal,
	}
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
