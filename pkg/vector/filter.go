package vector

import (
	"fmt"
	"strconv"
)

// Filter constrains search results by metadata. A scalar value means
// equality (membership for the list-valued tags/relations fields); a
// nested map applies comparison operators to the field:
//
//	Filter{"type": "fact"}
//	Filter{"importance": map[string]any{"$gte": 0.7}}
//	Filter{"type": map[string]any{"$in": []any{"fact", "skill"}}}
type Filter map[string]any

// Matches reports whether md satisfies every clause of the filter.
func (f Filter) Matches(md Metadata) (bool, error) {
	for field, cond := range f {
		val, list, ok := metadataField(md, field)
		if ops, isOps := cond.(map[string]any); isOps {
			matched, err := matchOperators(field, val, list, ok, ops)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
			continue
		}
		if !ok {
			return false, nil
		}
		if list != nil {
			if !containsValue(list, cond) {
				return false, nil
			}
			continue
		}
		if !valuesEqual(val, cond) {
			return false, nil
		}
	}
	return true, nil
}

// Validate checks operator names and operand shapes without a record.
func (f Filter) Validate() error {
	for field, cond := range f {
		ops, isOps := cond.(map[string]any)
		if !isOps {
			continue
		}
		for op, operand := range ops {
			switch op {
			case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
			case "$in", "$nin":
				if _, ok := toSlice(operand); !ok {
					return fmt.Errorf("%w: %s on %q needs a list operand", ErrBadFilter, op, field)
				}
			default:
				return fmt.Errorf("%w: unknown operator %q on field %q", ErrBadFilter, op, field)
			}
		}
	}
	return nil
}

func matchOperators(field string, val any, list []string, present bool, ops map[string]any) (bool, error) {
	for op, operand := range ops {
		switch op {
		case "$eq":
			if !present || list != nil || !valuesEqual(val, operand) {
				return false, nil
			}
		case "$ne":
			if present && list == nil && valuesEqual(val, operand) {
				return false, nil
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !present || list != nil {
				return false, nil
			}
			cmp, err := compareValues(val, operand)
			if err != nil {
				return false, fmt.Errorf("%w: %s on %q: %v", ErrBadFilter, op, field, err)
			}
			switch op {
			case "$gt":
				if cmp <= 0 {
					return false, nil
				}
			case "$gte":
				if cmp < 0 {
					return false, nil
				}
			case "$lt":
				if cmp >= 0 {
					return false, nil
				}
			case "$lte":
				if cmp > 0 {
					return false, nil
				}
			}
		case "$in":
			allowed, ok := toSlice(operand)
			if !ok {
				return false, fmt.Errorf("%w: $in on %q needs a list operand", ErrBadFilter, field)
			}
			if !present {
				return false, nil
			}
			if list != nil {
				if !anyOverlap(list, allowed) {
					return false, nil
				}
			} else if !sliceContains(allowed, val) {
				return false, nil
			}
		case "$nin":
			denied, ok := toSlice(operand)
			if !ok {
				return false, fmt.Errorf("%w: $nin on %q needs a list operand", ErrBadFilter, field)
			}
			if present {
				if list != nil {
					if anyOverlap(list, denied) {
						return false, nil
					}
				} else if sliceContains(denied, val) {
					return false, nil
				}
			}
		default:
			return false, fmt.Errorf("%w: unknown operator %q on field %q", ErrBadFilter, op, field)
		}
	}
	return true, nil
}

// metadataField resolves a filterable field. List-valued fields return a
// non-nil list; unknown names fall through to the Extra map.
func metadataField(md Metadata, name string) (val any, list []string, ok bool) {
	switch name {
	case "type":
		return string(md.Type), nil, md.Type != ""
	case "importance":
		return md.Importance, nil, true
	case "confidence":
		return md.Confidence, nil, true
	case "session_id", "sessionId":
		return md.SessionID, nil, md.SessionID != ""
	case "tags":
		return nil, md.Tags, len(md.Tags) > 0
	case "relations":
		return nil, md.Relations, len(md.Relations) > 0
	default:
		v, found := md.Extra[name]
		return v, nil, found
	}
}

func valuesEqual(a, b any) bool {
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			return fa == fb
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues orders numerically when both sides parse as numbers,
// lexically otherwise.
func compareValues(a, b any) (int, error) {
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	sa, sb := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case sa < sb:
		return -1, nil
	case sa > sb:
		return 1, nil
	default:
		return 0, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}

func sliceContains(s []any, v any) bool {
	for _, e := range s {
		if valuesEqual(e, v) {
			return true
		}
	}
	return false
}

func anyOverlap(list []string, allowed []any) bool {
	for _, item := range list {
		if sliceContains(allowed, item) {
			return true
		}
	}
	return false
}

func containsValue(list []string, v any) bool {
	return sliceContains(toAnySlice(list), v)
}

func toAnySlice(list []string) []any {
	out := make([]any, len(list))
	for i, e := range list {
		out[i] = e
	}
	return out
}
