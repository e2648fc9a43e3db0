package jsvm

import (
	"github.com/dop251/goja"
	"github.com/shopspring/decimal"
)

// decKey is the property carrying the host-side decimal of a BigNumber
// instance. Contract code can read it but only ever observes a value.
const decKey = "__dec"

// registerBigNumber installs the arbitrary-precision decimal type in the
// scope. Contract code uses it for fee and balance arithmetic where binary
// floating point would diverge between readers.
func registerBigNumber(rt *goja.Runtime) error {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		if len(call.Arguments) == 0 {
			panic(rt.NewTypeError("BigNumber requires a value"))
		}

		return newBigNumber(rt, toDecimal(rt, call.Arguments[0]))
	}

	return rt.Set("BigNumber", ctor)
}

// toDecimal converts a scope value into a decimal. It accepts a string, a
// number, or another BigNumber instance.
func toDecimal(rt *goja.Runtime, val goja.Value) decimal.Decimal {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		panic(rt.NewTypeError("not a BigNumber value"))
	}

	if obj, ok := val.(*goja.Object); ok {
		if inner := obj.Get(decKey); inner != nil {
			if d, ok := inner.Export().(decimal.Decimal); ok {
				return d
			}
		}
	}

	switch exported := val.Export().(type) {
	case string:
		d, err := decimal.NewFromString(exported)
		if err != nil {
			panic(rt.NewTypeError("invalid decimal string '%s'", exported))
		}
		return d
	case int64:
		return decimal.NewFromInt(exported)
	case float64:
		return decimal.NewFromFloat(exported)
	}

	panic(rt.NewTypeError("not a BigNumber value"))
}

func newBigNumber(rt *goja.Runtime, d decimal.Decimal) *goja.Object {
	obj := rt.NewObject()
	obj.Set(decKey, d)

	arg := func(call goja.FunctionCall) decimal.Decimal {
		return toDecimal(rt, call.Argument(0))
	}

	obj.Set("plus", func(call goja.FunctionCall) goja.Value {
		return newBigNumber(rt, d.Add(arg(call)))
	})
	obj.Set("minus", func(call goja.FunctionCall) goja.Value {
		return newBigNumber(rt, d.Sub(arg(call)))
	})
	obj.Set("times", func(call goja.FunctionCall) goja.Value {
		return newBigNumber(rt, d.Mul(arg(call)))
	})
	obj.Set("dividedBy", func(call goja.FunctionCall) goja.Value {
		other := arg(call)
		if other.IsZero() {
			panic(rt.NewTypeError("division by zero"))
		}
		return newBigNumber(rt, d.Div(other))
	})
	obj.Set("comparedTo", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(d.Cmp(arg(call)))
	})
	obj.Set("isNegative", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(d.IsNegative())
	})
	obj.Set("isZero", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(d.IsZero())
	})
	obj.Set("toString", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(d.String())
	})
	obj.Set("toFixed", func(call goja.FunctionCall) goja.Value {
		places := int32(0)
		if len(call.Arguments) > 0 {
			places = int32(call.Argument(0).ToInteger())
		}
		return rt.ToValue(d.StringFixed(places))
	})
	obj.Set("toNumber", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(d.InexactFloat64())
	})

	return obj
}
