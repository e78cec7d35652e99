package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind tags the closed set of types a rule context value may carry.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueBool
	ValueDate
)

// Value is a tagged union for rule context entries. Rule conditions compare
// against the string form; the expression evaluator only sees numeric
// values.
type Value struct {
	kind ValueKind
	str  string
	num  decimal.Decimal
	b    bool
	date time.Time
}

func StringValue(s string) Value { return Value{kind: ValueString, str: s} }

func NumberValue(d decimal.Decimal) Value { return Value{kind: ValueNumber, num: d} }

func IntValue(n int64) Value { return NumberValue(decimal.NewFromInt(n)) }

func BoolValue(b bool) Value { return Value{kind: ValueBool, b: b} }

func DateValue(t time.Time) Value { return Value{kind: ValueDate, date: t} }

// Kind returns the tag.
func (v Value) Kind() ValueKind { return v.kind }

// String returns the canonical string form used by condition matching.
func (v Value) String() string {
	switch v.kind {
	case ValueNumber:
		return v.num.String()
	case ValueBool:
		if v.b {
			return "true"
		}
		return "false"
	case ValueDate:
		return v.date.Format("2006-01-02")
	default:
		return v.str
	}
}

// Number returns the numeric interpretation of the value. Strings are
// parsed; booleans and dates have none.
func (v Value) Number() (decimal.Decimal, bool) {
	switch v.kind {
	case ValueNumber:
		return v.num, true
	case ValueString:
		d, err := decimal.NewFromString(v.str)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// Context is the set of named values available to condition matching and
// expression evaluation during one country pricing pass.
type Context map[string]Value

// NumericBindings extracts every numerically interpretable entry as an
// expression binding.
func (c Context) NumericBindings() map[string]decimal.Decimal {
	bindings := make(map[string]decimal.Decimal, len(c))
	for name, v := range c {
		if d, ok := v.Number(); ok {
			bindings[name] = d
		}
	}
	return bindings
}

// Clone returns a shallow copy; Values are immutable so shallow is enough.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
