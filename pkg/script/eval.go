package script

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

func (n *literalNode) eval(Scope) (interface{}, error) {
	return n.value, nil
}

func (n *identNode) eval(sc Scope) (interface{}, error) {
	if sc == nil {
		return nil, fmt.Errorf("unknown identifier %q", n.name)
	}
	v, ok, err := sc.Lookup(n.name)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", n.name, err)
	}
	if !ok {
		return nil, fmt.Errorf("unknown identifier %q", n.name)
	}
	return normalize(v), nil
}

func (n *unaryNode) eval(sc Scope) (interface{}, error) {
	v, err := n.operand.eval(sc)
	if err != nil {
		return nil, err
	}
	if n.op == "!" {
		return !truthy(v), nil
	}
	switch x := v.(type) {
	case int64:
		return -x, nil
	case float64:
		return -x, nil
	}
	return nil, fmt.Errorf("cannot negate %T", v)
}

func (n *ternaryNode) eval(sc Scope) (interface{}, error) {
	c, err := n.cond.eval(sc)
	if err != nil {
		return nil, err
	}
	if truthy(c) {
		return n.then.eval(sc)
	}
	return n.otherwise.eval(sc)
}

func (n *binaryNode) eval(sc Scope) (interface{}, error) {
	left, err := n.left.eval(sc)
	if err != nil {
		return nil, err
	}

	// short-circuit operators only evaluate the right side when needed
	switch n.op {
	case "&&":
		if !truthy(left) {
			return false, nil
		}
		right, err := n.right.eval(sc)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case "||":
		if truthy(left) {
			return true, nil
		}
		right, err := n.right.eval(sc)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	right, err := n.right.eval(sc)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "+":
		_, ls := left.(string)
		_, rs := right.(string)
		if ls || rs {
			return Format(left) + Format(right), nil
		}
		return arith(n.op, left, right)
	case "-", "*", "/", "%":
		return arith(n.op, left, right)
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, left, right)
	}
	return nil, fmt.Errorf("unsupported operator %q", n.op)
}

func arith(op string, left, right interface{}) (interface{}, error) {
	li, lInt := left.(int64)
	ri, rInt := right.(int64)
	if lInt && rInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			if li%ri == 0 {
				return li / ri, nil
			}
			return float64(li) / float64(ri), nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li % ri, nil
		}
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q not defined for %T and %T", op, left, right)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unsupported operator %q", op)
}

func compare(op string, left, right interface{}) (interface{}, error) {
	var c int
	ls, lStr := left.(string)
	rs, rStr := right.(string)
	switch {
	case lStr && rStr:
		switch {
		case ls < rs:
			c = -1
		case ls > rs:
			c = 1
		}
	default:
		lf, lok := toFloat(left)
		rf, rok := toFloat(right)
		if !lok || !rok {
			return nil, fmt.Errorf("cannot compare %T with %T", left, right)
		}
		switch {
		case lf < rf:
			c = -1
		case lf > rf:
			c = 1
		}
	}

	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func equal(left, right interface{}) bool {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		return lf == rf
	}
	switch l := left.(type) {
	case nil:
		return right == nil
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	}
	return Format(left) == Format(right)
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// normalize folds Go numeric kinds into int64/float64 so operators only
// deal with a handful of types.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case fmt.Stringer:
		if _, isTime := v.(time.Time); !isTime {
			return x.String()
		}
	}
	return v
}

// Format renders a value the way it is substituted into statement text.
func Format(v interface{}) string {
	switch x := normalize(v).(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999999")
	default:
		return fmt.Sprint(x)
	}
}
