package alerts

import (
	"strconv"
	"strings"

	"github.com/sensorrelay/sensorrelay/server/internal/store"
)

// condition is a parsed "<field> <op> <value>" rule expression.
type condition struct {
	field string
	op    string
	rhs   string
}

func parseCondition(s string) (condition, bool) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return condition{}, false
	}
	return condition{field: parts[0], op: parts[1], rhs: parts[2]}, true
}

// eval tests the condition against fields.
//
// Numeric fields compare numerically when rhs parses as a number; strings and
// booleans support == and != against the literal rhs. A missing field never
// fires. The returned string is the field's value as shown in messages.
func (c condition) eval(fields store.Fields) (bool, string) {
	v, ok := fields[c.field]
	if !ok {
		return false, ""
	}

	switch v.Kind() {
	case store.KindNumber:
		n, _ := v.Float64()
		threshold, err := strconv.ParseFloat(c.rhs, 64)
		if err != nil {
			return false, ""
		}
		return compareFloat(n, c.op, threshold), strconv.FormatFloat(n, 'f', -1, 64)

	case store.KindString:
		s, _ := v.Str()
		return compareString(s, c.op, c.rhs), s

	case store.KindBool:
		b, _ := v.Boolean()
		s := strconv.FormatBool(b)
		return compareString(s, c.op, c.rhs), s

	default:
		return false, ""
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

func compareString(v, op, rhs string) bool {
	switch op {
	case "==":
		return v == rhs
	case "!=":
		return v != rhs
	default:
		return false
	}
}
