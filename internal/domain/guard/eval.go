package guard

import (
	"fmt"
	"math"
	"strconv"
)

// scope holds the only identifiers an expression can reach
type scope map[string]any

func eval(n node, s scope) (any, error) {
	switch n := n.(type) {
	case literalNode:
		return n.value, nil

	case identNode:
		v, ok := s[n.name]
		if !ok {
			return nil, fmt.Errorf("unknown identifier: %s", n.name)
		}
		return normalize(v), nil

	case memberNode:
		obj, err := eval(n.object, s)
		if err != nil {
			return nil, err
		}
		key := n.name
		if n.index != nil {
			idx, err := eval(n.index, s)
			if err != nil {
				return nil, err
			}
			key = propertyKey(idx)
		}
		return member(obj, key)

	case callNode:
		callee, err := eval(n.callee, s)
		if err != nil {
			return nil, err
		}
		fn, ok := callee.(builtin)
		if !ok {
			return nil, fmt.Errorf("%s is not a function", describe(callee))
		}
		args := make([]any, len(n.args))
		for i, a := range n.args {
			if args[i], err = eval(a, s); err != nil {
				return nil, err
			}
		}
		return fn.fn(args)

	case unaryNode:
		v, err := eval(n.operand, s)
		if err != nil {
			return nil, err
		}
		if n.op == "!" {
			return !truthy(v), nil
		}
		return -toNumber(v), nil

	case binaryNode:
		return evalBinary(n, s)
	}
	return nil, fmt.Errorf("unsupported expression node %T", n)
}

func evalBinary(n binaryNode, s scope) (any, error) {
	left, err := eval(n.left, s)
	if err != nil {
		return nil, err
	}

	// && and || short-circuit and yield an operand
	switch n.op {
	case "&&":
		if !truthy(left) {
			return left, nil
		}
		return eval(n.right, s)
	case "||":
		if truthy(left) {
			return left, nil
		}
		return eval(n.right, s)
	}

	right, err := eval(n.right, s)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return looseEquals(left, right), nil
	case "!=":
		return !looseEquals(left, right), nil
	case "===":
		return strictEquals(left, right), nil
	case "!==":
		return !strictEquals(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, left, right), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", n.op)
}

func member(obj any, key string) (any, error) {
	switch o := obj.(type) {
	case nil, undefined:
		return nil, fmt.Errorf("cannot read property '%s' of %s", key, describe(obj))
	case map[string]any:
		v, ok := o[key]
		if !ok {
			return undefined{}, nil
		}
		return normalize(v), nil
	case []any:
		if key == "length" {
			return float64(len(o)), nil
		}
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(o) {
			return undefined{}, nil
		}
		return normalize(o[i]), nil
	case string:
		if key == "length" {
			return float64(len([]rune(o))), nil
		}
	}
	return undefined{}, nil
}

func propertyKey(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return describe(v)
}
