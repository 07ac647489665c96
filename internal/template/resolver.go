// Package template resolves {{scope.path}} markers in pattern step arguments.
//
// The marker language is deliberately tiny: dotted-path lookup into a fixed
// set of scopes, nothing else. No arithmetic, no conditionals, no code
// execution. A marker that occupies an entire string is replaced by the typed
// value it points at; a marker embedded in a larger string is interpolated as
// text.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Scopes maps a scope name ("inputs", "ctx", "state", or a step alias) to the
// value lookups are rooted at. Resolution never mutates the scope values.
type Scopes map[string]any

// ResolutionError reports an unresolvable template reference. The orchestrator
// treats it as an authoring bug in the pattern, never as missing data.
type ResolutionError struct {
	Ref     string // full dotted reference, e.g. "series.observations.0.value"
	Segment string // the segment that failed to resolve
	Reason  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("template: cannot resolve %q at segment %q: %s", e.Ref, e.Segment, e.Reason)
}

var markerRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_][A-Za-z0-9_.\-]*)\s*\}\}`)

// wholeRe matches strings that consist of exactly one marker and nothing
// else, not even surrounding whitespace. " {{x}} " is interpolated as text.
var wholeRe = regexp.MustCompile(`^\{\{\s*([A-Za-z0-9_][A-Za-z0-9_.\-]*)\s*\}\}$`)

// Resolve walks a JSON-like value (scalars, []any, map[string]any) and
// substitutes every marker. Lists and maps are rebuilt element-wise; inputs
// are never mutated. An absent path fails loudly rather than resolving to nil.
func Resolve(v any, scopes Scopes) (any, error) {
	switch t := v.(type) {
	case string:
		return resolveString(t, scopes)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			resolved, err := Resolve(elem, scopes)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			resolved, err := Resolve(elem, scopes)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveString(s string, scopes Scopes) (any, error) {
	if m := wholeRe.FindStringSubmatch(s); m != nil {
		return Lookup(m[1], scopes)
	}
	if !markerRe.MatchString(s) {
		return s, nil
	}
	var firstErr error
	out := markerRe.ReplaceAllStringFunc(s, func(marker string) string {
		if firstErr != nil {
			return marker
		}
		ref := markerRe.FindStringSubmatch(marker)[1]
		val, err := Lookup(ref, scopes)
		if err != nil {
			firstErr = err
			return marker
		}
		return stringify(val)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// Lookup resolves a single dotted reference against the scopes. The first
// segment selects the scope; the remainder indexes into maps by key and into
// lists by decimal position.
func Lookup(ref string, scopes Scopes) (any, error) {
	segments := strings.Split(ref, ".")
	root, ok := scopes[segments[0]]
	if !ok {
		return nil, &ResolutionError{Ref: ref, Segment: segments[0], Reason: "unknown scope"}
	}
	cur := root
	for _, seg := range segments[1:] {
		switch container := cur.(type) {
		case map[string]any:
			next, ok := container[seg]
			if !ok {
				return nil, &ResolutionError{Ref: ref, Segment: seg, Reason: "key not present"}
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, &ResolutionError{Ref: ref, Segment: seg, Reason: "list index must be numeric"}
			}
			if idx < 0 || idx >= len(container) {
				return nil, &ResolutionError{Ref: ref, Segment: seg, Reason: fmt.Sprintf("index out of range (len %d)", len(container))}
			}
			cur = container[idx]
		default:
			return nil, &ResolutionError{Ref: ref, Segment: seg, Reason: fmt.Sprintf("cannot index into %T", cur)}
		}
	}
	return cur, nil
}

// Refs returns every dotted reference appearing anywhere in a template value.
// Pattern validation uses this to reject forward references at load time.
func Refs(v any) []string {
	var refs []string
	collectRefs(v, &refs)
	return refs
}

func collectRefs(v any, refs *[]string) {
	switch t := v.(type) {
	case string:
		for _, m := range markerRe.FindAllStringSubmatch(t, -1) {
			*refs = append(*refs, m[1])
		}
	case map[string]any:
		for _, elem := range t {
			collectRefs(elem, refs)
		}
	case []any:
		for _, elem := range t {
			collectRefs(elem, refs)
		}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64, float32, int, int64, int32, bool:
		return fmt.Sprint(t)
	default:
		// Containers interpolate as compact JSON.
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
