package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/remediation-kit/remediation-kit/internal/richerr"
)

// Registry is a sync.RWMutex-guarded map plus an insertion-order slice,
// generalized from the teacher's package-level var block into a
// struct so multiple registries can coexist in tests without the
// global Clear() the teacher relies on.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]Spec
	order         []string
	schemas       map[string]*jsonschema.Schema
	outputSchemas map[string]*jsonschema.Schema
	domain        string
}

// New creates an empty registry for the given error domain tag.
func New(domain string) *Registry {
	return &Registry{
		tools:         make(map[string]Spec),
		schemas:       make(map[string]*jsonschema.Schema),
		outputSchemas: make(map[string]*jsonschema.Schema),
		domain:        domain,
	}
}

// Register makes a tool discoverable by name. Panics on duplicate
// registration, matching the teacher's init()-time registration
// convention where a duplicate is a programmer error, not runtime data.
func (r *Registry) Register(spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.tools[spec.Name]; dup {
		panic(fmt.Sprintf("registry: duplicate tool registration: %s", spec.Name))
	}

	if err := validateInvariants(spec); err != nil {
		return richerr.SchemaErrorf(r.domain, "tool %s: %v", spec.Name, err)
	}

	if len(spec.InputSchema) > 0 {
		compiled, err := compileSchema(spec.Name+".in", spec.InputSchema)
		if err != nil {
			return richerr.SchemaErrorf(r.domain, "tool %s: invalid input schema: %v", spec.Name, err)
		}
		r.schemas[spec.Name] = compiled
	}

	if len(spec.OutputSchema) > 0 {
		compiled, err := compileSchema(spec.Name+".out", spec.OutputSchema)
		if err != nil {
			return richerr.SchemaErrorf(r.domain, "tool %s: invalid output schema: %v", spec.Name, err)
		}
		r.outputSchemas[spec.Name] = compiled
	}

	r.tools[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// validateInvariants enforces spec §3's ToolSpec invariants: a
// Scanner must be Safe-risk and never approval-gated.
func validateInvariants(spec Spec) error {
	if spec.Category != CategoryScanner {
		return nil
	}
	if spec.Risk != "" && spec.Risk != RiskSafe {
		return fmt.Errorf("category=Scanner requires risk=Safe, got %q", spec.Risk)
	}
	if spec.RequiresApproval {
		return fmt.Errorf("category=Scanner requires requires_approval=false")
	}
	return nil
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name+".json", bytesReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(name + ".json")
}

// All returns the registered specs in registration order.
func (r *Registry) All() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Spec, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}
	return out
}

// ByCategory filters All() to one category.
func (r *Registry) ByCategory(cat Category) []Spec {
	var out []Spec
	for _, s := range r.All() {
		if s.Category == cat {
			out = append(out, s)
		}
	}
	return out
}

// Names returns the registered tool names, sorted for deterministic display.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// Get returns a specific tool's spec by name.
func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.tools[name]
	return s, ok
}

// Execute implements the four-step contract from §4.1:
//  1. validate input against the tool's declared schema
//  2. dispatch to the tool's Handler under the given timeout
//  3. normalize the result against the tool's declared output schema
//  4. classify any error into the canonical Rich error kinds
func (r *Registry) Execute(ctx context.Context, name string, input []byte, timeout time.Duration) (Result, error) {
	spec, ok := r.Get(name)
	if !ok {
		return Result{}, richerr.ToolUnavailableErr(r.domain, name, nil)
	}

	if schema, ok := r.schemaFor(name); ok {
		var doc any
		if err := unmarshalJSON(input, &doc); err != nil {
			return Result{}, richerr.SchemaErrorf(r.domain, "tool %s: input is not valid JSON: %v", name, err)
		}
		if err := schema.Validate(doc); err != nil {
			return Result{}, richerr.SchemaErrorf(r.domain, "tool %s: input violates schema: %v", name, err)
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := spec.Handler(runCtx, input)
	if err != nil {
		if runCtx.Err() != nil {
			return Result{}, richerr.TimeoutErr(r.domain, name, err)
		}
		return Result{}, classifyHandlerError(r.domain, name, err)
	}

	if schema, ok := r.outputSchemaFor(name); ok {
		if err := validateOutput(schema, result.Data); err != nil {
			return Result{}, richerr.NormalizationErr(r.domain, fmt.Errorf("tool %s: %w", name, err))
		}
	}
	return result, nil
}

// validateOutput re-encodes data (the Handler's native Go value) as
// JSON and validates the decoded document against schema, so a tool's
// OutputSchema constrains the same wire shape the caller will see,
// not the Go type's exported fields.
func validateOutput(schema *jsonschema.Schema, data any) error {
	raw, err := marshalJSON(data)
	if err != nil {
		return fmt.Errorf("result is not JSON-encodable: %w", err)
	}
	var doc any
	if err := unmarshalJSON(raw, &doc); err != nil {
		return fmt.Errorf("result did not round-trip through JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("result violates output schema: %w", err)
	}
	return nil
}

func (r *Registry) schemaFor(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

func (r *Registry) outputSchemaFor(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.outputSchemas[name]
	return s, ok
}

// classifyHandlerError passes through an already-Rich error untouched,
// otherwise wraps an opaque handler failure as a ToolFailure.
func classifyHandlerError(domain, tool string, err error) error {
	if _, ok := err.(*richerr.Rich); ok {
		return err
	}
	return richerr.ToolFailureErr(domain, tool, -1, err.Error(), false)
}
