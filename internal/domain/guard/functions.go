package guard

import (
	"fmt"
	"math"
	"strings"
)

// library is the fixed set of callables visible to guards.
var library = map[string]any{
	"has":         builtin{name: "has", fn: fnHas},
	"equals":      builtin{name: "equals", fn: fnEquals},
	"notEquals":   builtin{name: "notEquals", fn: fnNotEquals},
	"greaterThan": builtin{name: "greaterThan", fn: fnGreaterThan},
	"lessThan":    builtin{name: "lessThan", fn: fnLessThan},
	"contains":    builtin{name: "contains", fn: fnContains},
	"isEmpty":     builtin{name: "isEmpty", fn: fnIsEmpty},
	"Math": map[string]any{
		"abs":   builtin{name: "Math.abs", fn: fnAbs},
		"max":   builtin{name: "Math.max", fn: fnMax},
		"min":   builtin{name: "Math.min", fn: fnMin},
		"round": builtin{name: "Math.round", fn: fnRound},
	},
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return undefined{}
}

func fnHas(args []any) (any, error) {
	obj, ok := arg(args, 0).(map[string]any)
	if !ok {
		return false, nil
	}
	key, ok := arg(args, 1).(string)
	if !ok {
		return false, nil
	}
	_, exists := obj[key]
	return exists, nil
}

func fnEquals(args []any) (any, error) {
	return strictEquals(arg(args, 0), arg(args, 1)), nil
}

func fnNotEquals(args []any) (any, error) {
	return !strictEquals(arg(args, 0), arg(args, 1)), nil
}

func fnGreaterThan(args []any) (any, error) {
	return compare(">", toNumber(arg(args, 0)), toNumber(arg(args, 1))), nil
}

func fnLessThan(args []any) (any, error) {
	return compare("<", toNumber(arg(args, 0)), toNumber(arg(args, 1))), nil
}

func fnContains(args []any) (any, error) {
	switch haystack := arg(args, 0).(type) {
	case string:
		needle, ok := arg(args, 1).(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(haystack, needle), nil
	case []any:
		needle := arg(args, 1)
		for _, item := range haystack {
			if strictEquals(normalize(item), needle) {
				return true, nil
			}
		}
	}
	return false, nil
}

func fnIsEmpty(args []any) (any, error) {
	switch v := arg(args, 0).(type) {
	case nil, undefined:
		return true, nil
	case string:
		return strings.TrimSpace(v) == "", nil
	case []any:
		return len(v) == 0, nil
	case map[string]any:
		return len(v) == 0, nil
	}
	return false, nil
}

func fnAbs(args []any) (any, error) {
	return math.Abs(toNumber(arg(args, 0))), nil
}

func fnMax(args []any) (any, error) {
	result := math.Inf(-1)
	for _, a := range args {
		n := toNumber(a)
		if math.IsNaN(n) {
			return n, nil
		}
		result = math.Max(result, n)
	}
	return result, nil
}

func fnMin(args []any) (any, error) {
	result := math.Inf(1)
	for _, a := range args {
		n := toNumber(a)
		if math.IsNaN(n) {
			return n, nil
		}
		result = math.Min(result, n)
	}
	return result, nil
}

// fnRound rounds half up, so -2.5 rounds to -2
func fnRound(args []any) (any, error) {
	n := toNumber(arg(args, 0))
	if len(args) > 1 {
		return nil, fmt.Errorf("Math.round expects 1 argument, got %d", len(args))
	}
	return math.Floor(n + 0.5), nil
}
