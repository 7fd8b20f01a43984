// Package flow defines the multi-step conversation machines as pure
// transition functions over (step, fields, input). Machines never talk to the
// chat transport; a thin adapter persists the (step, fields) pair per session
// and renders outputs.
package flow

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/shop/domain"
)

// Step names one state of a conversation machine.
type Step string

// StepDone is the terminal pseudo-step: the adapter clears the session.
const StepDone Step = "done"

// Fields is the bag of values collected so far. Values accumulate strictly
// forward: later steps may read anything set earlier, nothing is revalidated
// retroactively.
type Fields map[string]string

// Clone copies the bag so transitions never mutate persisted state in place.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Int64 reads a field as int64.
func (f Fields) Int64(key string) (int64, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Decimal reads a field as a decimal amount.
func (f Fields) Decimal(key string) (decimal.Decimal, bool) {
	v, ok := f[key]
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// SetInt64 stores an int64 field.
func (f Fields) SetInt64(key string, v int64) {
	f[key] = strconv.FormatInt(v, 10)
}

// SetDecimal stores a decimal field.
func (f Fields) SetDecimal(key string, d decimal.Decimal) {
	f[key] = d.String()
}

// Int64List reads a comma-separated int64 list field.
func (f Fields) Int64List(key string) ([]int64, bool) {
	v, ok := f[key]
	if !ok || v == "" {
		return nil, false
	}
	parts := strings.Split(v, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

// SetInt64List stores a comma-separated int64 list field.
func (f Fields) SetInt64List(key string, ids []int64) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	f[key] = strings.Join(parts, ",")
}

// Input is one inbound user message routed to an active flow.
type Input struct {
	UserID int64
	Text   string
}

// Output is what a transition wants shown to the user.
type Output struct {
	Text string
	// Order is set when a settlement committed inside the flow, so the
	// transport layer can notify administrators.
	Order *domain.Order
	// ConflictCodes lists cart lines lost to a concurrent buyer, so the
	// transport layer re-renders the cart instead of silently dropping them.
	ConflictCodes []string
}

// Result is the outcome of one transition.
type Result struct {
	Next   Step
	Fields Fields
	Output Output
}

// Machine is a closed set of named steps driven by a transition function.
type Machine interface {
	// Name identifies the machine; session states are encoded as name/step.
	Name() string
	// Begin seeds the session and returns the first step with its prompt.
	Begin(ctx context.Context, seed Fields) (Result, error)
	// Transition consumes one input at the given step. A ValidationError
	// keeps the session at the same step (the adapter re-prompts); any other
	// error resets the session to idle after reporting.
	Transition(ctx context.Context, step Step, fields Fields, in Input) (Result, error)
}

// ParseLocations reads the admin's multi-line "Name=Qty" stock input.
// Invalid lines are skipped; an input with no valid line at all is a
// validation error.
func ParseLocations(text string) (map[string]int, error) {
	out := make(map[string]int)
	for _, line := range strings.Split(text, "\n") {
		name, qtyRaw, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		qty, err := strconv.Atoi(strings.TrimSpace(qtyRaw))
		if err != nil || name == "" || qty <= 0 {
			continue
		}
		out[name] += qty
	}
	if len(out) == 0 {
		return nil, &domain.ValidationError{
			Field:  "locations",
			Reason: "expected lines like Moscow=5",
		}
	}
	return out, nil
}
