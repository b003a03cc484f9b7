package crm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solarvest/platform/internal/model"
)

// lookup resolves a dotted path ("contact.status") in nested maps.
func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// MatchConditions reports whether every condition holds for data.
// An empty list always matches.
func MatchConditions(conds []model.Condition, data map[string]any) bool {
	for _, c := range conds {
		if !matchCondition(c, data) {
			return false
		}
	}
	return true
}

func matchCondition(c model.Condition, data map[string]any) bool {
	v, ok := lookup(data, c.Field)

	switch c.Operator {
	case model.OpExists:
		return ok && !isEmpty(v)
	case model.OpNeq:
		return !ok || !equalValues(v, c.Value)
	}
	if !ok {
		return false
	}

	switch c.Operator {
	case model.OpEq:
		return equalValues(v, c.Value)
	case model.OpContains:
		return contains(v, c.Value)
	case model.OpGt, model.OpLt:
		a, errA := toFloat(v)
		b, errB := toFloat(c.Value)
		if errA != nil || errB != nil {
			return false
		}
		if c.Operator == model.OpGt {
			return a > b
		}
		return a < b
	case model.OpIn:
		for _, candidate := range toList(c.Value) {
			if equalValues(v, candidate) {
				return true
			}
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

// equalValues compares numerically when both sides are numbers and
// case-insensitively as strings otherwise.
func equalValues(a, b any) bool {
	fa, errA := toFloat(a)
	fb, errB := toFloat(b)
	if errA == nil && errB == nil {
		return fa == fb
	}
	return strings.EqualFold(fmt.Sprint(a), fmt.Sprint(b))
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(strings.ToLower(h), strings.ToLower(fmt.Sprint(needle)))
	case []string, []any:
		for _, item := range toList(h) {
			if equalValues(item, needle) {
				return true
			}
		}
	}
	return false
}

// toList accepts JSON arrays, string slices and comma-separated strings.
func toList(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case string:
		parts := strings.Split(x, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out
	}
	return []any{v}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}
