package service

import (
	"fmt"

	"github.com/roach88/nodom/internal/cache"
	"github.com/roach88/nodom/internal/value"
)

// NameAddition selects Addition.
const NameAddition = "addition"

// Addition keeps op1_plus_op2 equal to op1 + op2.
type Addition struct{}

func (Addition) Derive(change cache.Change, data Data) ([]Update, error) {
	if change.Key != "op1" && change.Key != "op2" {
		return nil, nil
	}
	if _, ok := data.Get("op1_plus_op2"); !ok {
		return nil, nil
	}

	op1, _ := data.Get("op1")
	op2, _ := data.Get("op2")
	sum, err := add(op1, op2)
	if err != nil {
		return nil, err
	}
	return []Update{{Key: "op1_plus_op2", Value: sum}}, nil
}

func add(a, b value.Value) (value.Value, error) {
	ai, aInt := a.(value.Int)
	bi, bInt := b.(value.Int)
	if aInt && bInt {
		return ai + bi, nil
	}
	af, ok := number(a)
	if !ok {
		return nil, fmt.Errorf("op1 is %s, want number", value.Kind(a))
	}
	bf, ok := number(b)
	if !ok {
		return nil, fmt.Errorf("op2 is %s, want number", value.Kind(b))
	}
	return value.Float(af + bf), nil
}

func number(v value.Value) (float64, bool) {
	switch n := v.(type) {
	case value.Int:
		return float64(n), true
	case value.Float:
		return float64(n), true
	}
	return 0, false
}
