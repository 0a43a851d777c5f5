// Package schema validates task payloads before they reach the coordinator.
//
// Shapes are declared in task.cue and checked with the CUE evaluator.
// Free text is trimmed and NFC-normalized first, so "é" typed as one code
// point or as e + combining accent is stored and compared the same way.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/teamtask/internal/domain"
)

//go:embed task.cue
var taskSchema string

// FieldError describes the first field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator checks create and update payloads.
//
// cue values are not safe for concurrent evaluation, so all checks are
// serialized through mu.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	create cue.Value
	update cue.Value
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(taskSchema, cue.Filename("task.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile task schema: %w", flatten(err))
	}
	return &Validator{
		ctx:    ctx,
		create: v.LookupPath(cue.ParsePath("#CreateTask")),
		update: v.LookupPath(cue.ParsePath("#UpdateTask")),
	}, nil
}

// MustNew is New for package initialization; it panics on a broken schema.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// NormalizeText trims surrounding whitespace and applies NFC.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Draft normalizes and validates a create payload. The returned draft is
// the normalized copy.
func (v *Validator) Draft(d domain.TaskDraft) (domain.TaskDraft, error) {
	d.Title = NormalizeText(d.Title)
	d.Description = NormalizeText(d.Description)
	d.AssignedTo = strings.TrimSpace(d.AssignedTo)

	doc := map[string]any{"title": d.Title}
	if d.Description != "" {
		doc["description"] = d.Description
	}
	if d.Priority != "" {
		doc["priority"] = string(d.Priority)
	}
	if d.DueDate != nil {
		doc["due_date"] = d.DueDate.UTC().Format(time.RFC3339)
	}
	if d.AssignedTo != "" {
		doc["assigned_to"] = d.AssignedTo
	}
	if d.IsPersonal {
		doc["is_personal"] = true
	}

	if err := v.check(v.create, doc); err != nil {
		return domain.TaskDraft{}, err
	}
	return d, nil
}

// Patch normalizes and validates an update payload.
func (v *Validator) Patch(p domain.TaskPatch) (domain.TaskPatch, error) {
	doc := map[string]any{}
	if p.Title != nil {
		s := NormalizeText(*p.Title)
		p.Title = &s
		doc["title"] = s
	}
	if p.Description != nil {
		s := NormalizeText(*p.Description)
		p.Description = &s
		doc["description"] = s
	}
	if p.Status != nil {
		doc["status"] = string(*p.Status)
	}
	if p.Priority != nil {
		doc["priority"] = string(*p.Priority)
	}
	if p.DueDate != nil {
		doc["due_date"] = p.DueDate.UTC().Format(time.RFC3339)
	}
	if p.AssignedTo != nil {
		s := strings.TrimSpace(*p.AssignedTo)
		p.AssignedTo = &s
		doc["assigned_to"] = s
	}

	if err := v.check(v.update, doc); err != nil {
		return domain.TaskPatch{}, err
	}
	return p, nil
}

func (v *Validator) check(schema cue.Value, doc map[string]any) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return &FieldError{Message: err.Error()}
	}
	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return flatten(err)
	}
	return nil
}

// flatten reduces a CUE error list to the first error, keyed by field path.
func flatten(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	format, args := first.Msg()
	return &FieldError{
		Field:   strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}
