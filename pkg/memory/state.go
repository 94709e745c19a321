package memory

import "fmt"

// State operation names accepted by UpdateRuntimeState and UpdateFormData.
const (
	StateOpSet    = "set"
	StateOpAppend = "append"
	StateOpMerge  = "merge"
	StateOpDelete = "delete"
)

// applyStateOps applies ops to a copy of state and returns the copy.
// The input map is never mutated, so callers can retry on error without
// observing partial writes.
func applyStateOps(state map[string]any, ops []StateOp) (map[string]any, error) {
	next := cloneStateMap(state)
	for i, op := range ops {
		if op.Key == "" {
			return nil, fmt.Errorf("op %d: empty key", i)
		}
		switch op.Op {
		case StateOpSet:
			next[op.Key] = op.Value
		case StateOpAppend:
			// A non-array current value is replaced with a fresh single
			// element array rather than erroring.
			if existing, ok := next[op.Key].([]any); ok {
				next[op.Key] = append(existing, op.Value)
			} else {
				next[op.Key] = []any{op.Value}
			}
		case StateOpMerge:
			// Shallow merge applies only when both sides are objects.
			// Any other combination overwrites the key.
			patch, ok := op.Value.(map[string]any)
			if !ok {
				next[op.Key] = op.Value
				break
			}
			base, ok := next[op.Key].(map[string]any)
			if !ok {
				base = map[string]any{}
			} else {
				base = cloneStateMap(base)
			}
			for k, v := range patch {
				base[k] = v
			}
			next[op.Key] = base
		case StateOpDelete:
			delete(next, op.Key)
		default:
			return nil, fmt.Errorf("op %d (%s): unknown operation %q", i, op.Key, op.Op)
		}
	}
	return next, nil
}
