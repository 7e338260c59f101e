// Package schema notices when the remote service changes the shape of a JSON
// response.
//
// The share flow depends on an undocumented API, so a renamed field usually
// surfaces as a confusing protocol error several steps later.  A Watcher
// records the field layout of the first response it sees from each endpoint
// and reports every later structural difference, which the session client
// logs next to the failure.
//
// Nested keys are dot-separated ("props.pageProps"); the elements of an array
// are described once under "field[]" using the first element.
//
// # Thread safety
//
// Validator and Watcher are safe for concurrent use.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DriftKind classifies a structural difference.
type DriftKind string

const (
	// DriftMissing: a field present in the baseline is absent now.
	DriftMissing DriftKind = "MISSING_FIELD"

	// DriftAdded: a field absent from the baseline appeared.
	DriftAdded DriftKind = "ADDED_FIELD"

	// DriftTypeChange: the JSON type of a field changed.
	DriftTypeChange DriftKind = "TYPE_CHANGE"
)

// Drift describes one difference between the baseline and a response.
type Drift struct {
	Kind DriftKind

	// Field is the dot-separated path of the affected field.
	Field string

	// Was is the baseline JSON type; empty for DriftAdded.
	Was string

	// Now is the current JSON type; empty for DriftMissing.
	Now string
}

func (d Drift) String() string {
	switch d.Kind {
	case DriftMissing:
		return fmt.Sprintf("field %q missing (was %s)", d.Field, d.Was)
	case DriftAdded:
		return fmt.Sprintf("field %q added (%s)", d.Field, d.Now)
	case DriftTypeChange:
		return fmt.Sprintf("field %q changed %s -> %s", d.Field, d.Was, d.Now)
	default:
		return fmt.Sprintf("field %q %s", d.Field, d.Kind)
	}
}

// layout maps field paths to JSON type names.
type layout map[string]string

// Validator holds the baseline layout of one endpoint's responses.
type Validator struct {
	mu       sync.RWMutex
	baseline layout
}

// NewValidator returns a Validator with no baseline.
func NewValidator() *Validator {
	return &Validator{}
}

// Learn replaces the baseline with the layout of data.
func (v *Validator) Learn(data []byte) error {
	l, err := extract(data)
	if err != nil {
		return fmt.Errorf("schema: learn: %w", err)
	}
	v.mu.Lock()
	v.baseline = l
	v.mu.Unlock()
	return nil
}

// HasBaseline reports whether a baseline has been recorded.
func (v *Validator) HasBaseline() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.baseline != nil
}

// Check compares data with the baseline.  Without a baseline, data becomes
// the baseline and no drift is reported.
func (v *Validator) Check(data []byte) ([]Drift, error) {
	current, err := extract(data)
	if err != nil {
		return nil, fmt.Errorf("schema: check: %w", err)
	}
	v.mu.Lock()
	if v.baseline == nil {
		v.baseline = current
		v.mu.Unlock()
		return nil, nil
	}
	baseline := v.baseline
	v.mu.Unlock()
	return diff(baseline, current), nil
}

// Fields returns the sorted baseline field paths.
func (v *Validator) Fields() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.baseline))
	for k := range v.baseline {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Watcher keeps one Validator per endpoint name.
type Watcher struct {
	mu         sync.Mutex
	validators map[string]*Validator
}

// NewWatcher returns an empty Watcher.
func NewWatcher() *Watcher {
	return &Watcher{validators: make(map[string]*Validator)}
}

// Observe checks data against the baseline recorded for endpoint.
func (w *Watcher) Observe(endpoint string, data []byte) ([]Drift, error) {
	w.mu.Lock()
	v, ok := w.validators[endpoint]
	if !ok {
		v = NewValidator()
		w.validators[endpoint] = v
	}
	w.mu.Unlock()
	return v.Check(data)
}

// Format renders drifts one per line.
func Format(drifts []Drift) string {
	lines := make([]string, len(drifts))
	for i, d := range drifts {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

func extract(data []byte) (layout, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", typeName(raw))
	}
	l := make(layout)
	flatten(obj, "", l)
	return l, nil
}

func flatten(obj map[string]interface{}, prefix string, l layout) {
	for k, v := range obj {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		describe(path, v, l)
	}
}

func describe(path string, v interface{}, l layout) {
	l[path] = typeName(v)
	switch val := v.(type) {
	case map[string]interface{}:
		flatten(val, path, l)
	case []interface{}:
		if len(val) > 0 {
			describe(path+"[]", val[0], l)
		}
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func diff(baseline, current layout) []Drift {
	var out []Drift
	for field, was := range baseline {
		now, ok := current[field]
		switch {
		case !ok:
			// An empty array this time says nothing about its elements.
			if strings.HasSuffix(field, "[]") || strings.Contains(field, "[].") {
				if emptyArrayAncestor(field, current) {
					continue
				}
			}
			out = append(out, Drift{Kind: DriftMissing, Field: field, Was: was})
		case now != was:
			out = append(out, Drift{Kind: DriftTypeChange, Field: field, Was: was, Now: now})
		}
	}
	for field, now := range current {
		if _, ok := baseline[field]; !ok {
			out = append(out, Drift{Kind: DriftAdded, Field: field, Now: now})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// emptyArrayAncestor reports whether the array holding field is present in
// current but has no elements described.
func emptyArrayAncestor(field string, current layout) bool {
	i := strings.Index(field, "[]")
	arr := field[:i]
	if current[arr] != "array" {
		return false
	}
	_, described := current[arr+"[]"]
	return !described
}
